package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Hard-coded default rates, the terminal safety net when both the vendor and
// the rates table are unavailable. Deliberately coarse; corrections happen
// after the fact via the retroactive tax update.
var defaultCountryRates = map[string]decimal.Decimal{
	"US": decimal.Zero, // state-level, see defaultUSStateRates
	"CA": decimal.NewFromFloat(0.05),
	"GB": decimal.NewFromFloat(0.20),
	"DE": decimal.NewFromFloat(0.19),
	"FR": decimal.NewFromFloat(0.20),
	"AU": decimal.NewFromFloat(0.10),
}

var defaultUSStateRates = map[string]decimal.Decimal{
	"CA": decimal.NewFromFloat(0.0825),
	"NY": decimal.NewFromFloat(0.08),
	"TX": decimal.NewFromFloat(0.0625),
	"FL": decimal.NewFromFloat(0.06),
	"WA": decimal.NewFromFloat(0.065),
	"IL": decimal.NewFromFloat(0.0625),
	// No-sales-tax states resolve to zero through the country default.
}

// defaultRate returns the built-in rate for the jurisdiction and whether one
// was found. A miss means "tax wholly unknown", which callers treat as zero.
func defaultRate(country, state string) (decimal.Decimal, bool) {
	country = strings.ToUpper(strings.TrimSpace(country))
	state = strings.ToUpper(strings.TrimSpace(state))

	if country == "US" {
		if rate, ok := defaultUSStateRates[state]; ok {
			return rate, true
		}
		return decimal.Zero, true
	}
	if rate, ok := defaultCountryRates[country]; ok {
		return rate, true
	}
	return decimal.Zero, false
}
