package models

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the closed set of ISO 4217 codes a statement can be denominated in.
type Currency string

const (
	INR Currency = "INR"
	USD Currency = "USD"
	EUR Currency = "EUR"
	AED Currency = "AED"
	GBP Currency = "GBP"
)

// Currencies lists every supported currency.
var Currencies = []Currency{INR, USD, EUR, AED, GBP}

// ParseCurrency validates a currency code, case-insensitively.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

// Valid reports whether c belongs to the supported set.
func (c Currency) Valid() bool {
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// Fraction returns the number of minor-unit digits of c (2 for every
// supported currency today, taken from the go-money currency table).
func (c Currency) Fraction() int {
	if cur := gomoney.GetCurrency(string(c)); cur != nil {
		return cur.Fraction
	}
	return 2
}

// MinorUnit returns one minor unit of c as a decimal, e.g. 0.01 for USD.
func (c Currency) MinorUnit() decimal.Decimal {
	return decimal.New(1, -int32(c.Fraction()))
}

func (c Currency) String() string {
	return string(c)
}
