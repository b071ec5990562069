// Package asset handles trading pair parsing and currency classification.
//
// Exchange trade history identifies markets as "{base}_{quote}" pairs
// (e.g. "BTC_EUR"). The quote side of a pair is the cost currency; the
// other side is what was actually bought or sold. The profit currency the
// engine reports in must be one of the supported fiat currencies.
package asset

import (
	"errors"
	"fmt"
	"regexp"
)

// pairRegex matches: {base}_{quote}, both upper-case asset symbols.
// Example: BTC_EUR, ETH_BTC, XMR_USDT
var pairRegex = regexp.MustCompile(`^([A-Z0-9]{2,10})_([A-Z0-9]{2,10})$`)

var (
	ErrInvalidPair = errors.New("asset: invalid trading pair format")

	// ErrAssetNotInPair is returned when the cost currency named by a trade
	// is not one of the pair's two sides.
	ErrAssetNotInPair = errors.New("asset: asset is not part of the pair")

	ErrUnsupportedProfitCurrency = errors.New("asset: profit currency must be a supported fiat currency")
)

// fiatCurrencies are the currencies the engine may report profits in, and
// the only pair sides that do not imply a crypto counter-leg.
var fiatCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"JPY": true,
	"CNY": true,
	"CAD": true,
}

// ParsePair splits a "{base}_{quote}" pair into its two assets.
func ParsePair(pair string) (base, quote string, err error) {
	matches := pairRegex.FindStringSubmatch(pair)
	if matches == nil {
		return "", "", fmt.Errorf("%w: %q (expected {base}_{quote})", ErrInvalidPair, pair)
	}
	return matches[1], matches[2], nil
}

// OtherPair returns the side of the pair that is not the given asset.
// Used to resolve which asset a trade actually bought or sold given its
// cost currency.
func OtherPair(pair, currency string) (string, error) {
	base, quote, err := ParsePair(pair)
	if err != nil {
		return "", err
	}
	switch currency {
	case quote:
		return base, nil
	case base:
		return quote, nil
	}
	return "", fmt.Errorf("%w: %q not in %q", ErrAssetNotInPair, currency, pair)
}

// IsFiat reports whether the asset is a supported fiat currency.
func IsFiat(a string) bool {
	return fiatCurrencies[a]
}

// ValidateProfitCurrency checks that the currency may be used as the
// engine's reporting currency.
func ValidateProfitCurrency(currency string) error {
	if !fiatCurrencies[currency] {
		return fmt.Errorf("%w: %q", ErrUnsupportedProfitCurrency, currency)
	}
	return nil
}
