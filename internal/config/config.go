// Package config loads service configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	PriceAPIURL string

	// ProfitCurrency is the fiat currency reports are denominated in.
	ProfitCurrency string

	// IgnoredAssets are excluded from processing entirely.
	IgnoredAssets []string

	// CountProfitForSettlements also counts settlement disposals toward
	// the trade profit/loss totals.
	CountProfitForSettlements bool

	LogLevel slog.Level
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		PriceAPIURL:    os.Getenv("PRICE_API_URL"),
		ProfitCurrency: envOr("PROFIT_CURRENCY", "EUR"),
		LogLevel:       parseLevel(envOr("LOG_LEVEL", "info")),
	}

	for _, a := range strings.Split(envOr("IGNORED_ASSETS", "DAO"), ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			cfg.IgnoredAssets = append(cfg.IgnoredAssets, a)
		}
	}

	if v := os.Getenv("COUNT_PROFIT_FOR_SETTLEMENTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid COUNT_PROFIT_FOR_SETTLEMENTS, using false", "value", v)
		}
		cfg.CountProfitForSettlements = b
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
