// Package currencypkg provides common currency and market symbol rules for apps.
package currencypkg

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Symbol length limits for a single currency.
const (
	MinSymbolLen = 2
	MaxSymbolLen = 10
)

// MarketSymbol returns the symbol of the market trading base for quote, e.g. BTCUSDT.
func MarketSymbol(base, quote string) string {
	return strings.ToUpper(base) + strings.ToUpper(quote)
}

// IsValidSymbol returns true if s consists of upper case latin letters and digits
// and is not longer than a pair of currency symbols.
func IsValidSymbol(s string) bool {
	if len(s) < MinSymbolLen || len(s) > 2*MaxSymbolLen {
		return false
	}

	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}

	return true
}

// ValidSymbol validates whether the field holds a well formed symbol.
var ValidSymbol validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return IsValidSymbol(s)
	}

	return false
}
