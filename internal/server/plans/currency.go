package plans

import (
	"fmt"
	"math"
	"strings"
)

// currencyExponents maps ISO 4217 codes to the number of minor-unit digits.
var currencyExponents = map[string]int{
	"INR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"AED": 2,
	"SGD": 2,
	"AUD": 2,
	"CAD": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
	"OMR": 3,
}

// Exponent returns the minor-unit exponent for currency.
func Exponent(currency string) (int, error) {
	exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}
	return exp, nil
}

// ToMinor converts a whole major-unit amount to minor units, e.g. 5666 INR
// to 566600 paise.
func ToMinor(major int64, currency string) (int64, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return 0, err
	}
	factor := int64(1)
	for i := 0; i < exp; i++ {
		factor *= 10
	}
	if major > math.MaxInt64/factor || major < math.MinInt64/factor {
		return 0, fmt.Errorf("amount %d %s overflows minor units", major, currency)
	}
	return major * factor, nil
}

// SameCurrency compares ISO codes case-insensitively.
func SameCurrency(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
