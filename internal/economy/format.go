package economy

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency returns the coin denomination a unit string is quoted in.
func Currency(unit string) string {
	switch {
	case strings.Contains(unit, "gp"):
		return "gp"
	case strings.Contains(unit, "sp"):
		return "sp"
	default:
		return "cp"
	}
}

// FormatPrice renders a price with two decimals in the unit's currency,
// e.g. "1.35 gp".
func FormatPrice(price float64, unit string) string {
	return decimal.NewFromFloat(price).StringFixed(2) + " " + Currency(unit)
}
