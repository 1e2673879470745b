// Package currency normalises display currencies and converts amounts into
// the USD settlement currency used by the ledger.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Settlement is the internal currency all cost bases are normalised to.
const Settlement = "USD"

var supported = []string{"USD", "EUR", "AUD"}

// Normalise upper-cases a currency code and falls back to USD for anything
// outside the supported set.
func Normalise(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, s := range supported {
		if c == s {
			return c
		}
	}
	return Settlement
}

// Supported reports whether code is an accepted display currency.
func Supported(code string) bool {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, s := range supported {
		if c == s {
			return true
		}
	}
	return false
}

// Converter translates amounts between display currencies using a USD-base
// rate table (units of currency per USD).
type Converter struct {
	rates map[string]decimal.Decimal
}

func NewConverter(rates map[string]float64) *Converter {
	table := map[string]decimal.Decimal{Settlement: decimal.NewFromInt(1)}
	for code, rate := range rates {
		if rate > 0 {
			table[Normalise(code)] = decimal.NewFromFloat(rate)
		}
	}
	return &Converter{rates: table}
}

// Convert translates amount from one currency to another. Unknown currencies
// are treated as USD, so a missing rate never loses the amount.
func (c *Converter) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	from, to = Normalise(from), Normalise(to)
	if from == to {
		return amount
	}
	fromRate, ok := c.rates[from]
	if !ok || fromRate.IsZero() {
		fromRate = decimal.NewFromInt(1)
	}
	toRate, ok := c.rates[to]
	if !ok {
		toRate = decimal.NewFromInt(1)
	}
	return amount.Div(fromRate).Mul(toRate)
}

// ToSettlement converts an amount into the settlement currency.
func (c *Converter) ToSettlement(amount decimal.Decimal, from string) decimal.Decimal {
	return c.Convert(amount, from, Settlement)
}
