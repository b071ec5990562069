package config

import (
	"log/slog"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "PROFIT_CURRENCY", "IGNORED_ASSETS",
		"COUNT_PROFIT_FOR_SETTLEMENTS", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "PRICE_API_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Port)
	}
	if cfg.ProfitCurrency != "EUR" {
		t.Errorf("profit currency = %s, want EUR", cfg.ProfitCurrency)
	}
	if len(cfg.IgnoredAssets) != 1 || cfg.IgnoredAssets[0] != "DAO" {
		t.Errorf("ignored assets = %v, want [DAO]", cfg.IgnoredAssets)
	}
	if cfg.CountProfitForSettlements {
		t.Error("settlement profit counting should default to false")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PROFIT_CURRENCY", "USD")
	t.Setenv("IGNORED_ASSETS", "DAO, XYZ ,")
	t.Setenv("COUNT_PROFIT_FOR_SETTLEMENTS", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Errorf("port = %s, want 9999", cfg.Port)
	}
	if cfg.ProfitCurrency != "USD" {
		t.Errorf("profit currency = %s, want USD", cfg.ProfitCurrency)
	}
	if len(cfg.IgnoredAssets) != 2 || cfg.IgnoredAssets[1] != "XYZ" {
		t.Errorf("ignored assets = %v, want [DAO XYZ]", cfg.IgnoredAssets)
	}
	if !cfg.CountProfitForSettlements {
		t.Error("expected settlement profit counting enabled")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.LogLevel)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
