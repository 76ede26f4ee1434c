package extractor

import (
	"strings"

	"fjacquet/statement-ingest/internal/formats"

	"github.com/shopspring/decimal"
)

var currencyTokens = strings.NewReplacer(
	"₹", "", "$", "", "€", "", "£", "",
	"INR", "", "AED", "", "USD", "", "EUR", "", "GBP", "",
	"Rs.", "", "Rs", "",
)

// parseAmount parses a statement amount in the format's number style.
// Parentheses, a leading or trailing minus and a DR suffix make it negative;
// a CR suffix is dropped.
func parseAmount(raw string, format formats.Format) (decimal.Decimal, error) {
	s := strings.TrimSpace(currencyTokens.Replace(strings.TrimSpace(raw)))

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}

	thousands := string(format.ThousandsSeparator())
	s = strings.NewReplacer(thousands, "", " ", "", "'", "", "\u00a0", "").Replace(s)
	if format.DecimalSeparator == ',' {
		s = strings.Replace(s, ",", ".", 1)
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}
