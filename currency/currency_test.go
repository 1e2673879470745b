package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalise(t *testing.T) {
	assert.Equal(t, "USD", Normalise("usd"))
	assert.Equal(t, "EUR", Normalise(" eur "))
	assert.Equal(t, "AUD", Normalise("AUD"))
	assert.Equal(t, "USD", Normalise("gbp"))
	assert.Equal(t, "USD", Normalise(""))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("usd"))
	assert.True(t, Supported("EUR"))
	assert.False(t, Supported("GBP"))
	assert.False(t, Supported(""))
}

func TestConverter(t *testing.T) {
	c := NewConverter(map[string]float64{"EUR": 0.5, "AUD": 2})

	// 10 EUR at 0.5 EUR/USD is 20 USD.
	got := c.ToSettlement(decimal.NewFromInt(10), "EUR")
	assert.True(t, decimal.NewFromInt(20).Equal(got), "got %s", got)

	// 20 USD at 2 AUD/USD is 40 AUD.
	got = c.Convert(decimal.NewFromInt(20), "USD", "AUD")
	assert.True(t, decimal.NewFromInt(40).Equal(got), "got %s", got)

	// Same currency is the identity.
	got = c.Convert(decimal.NewFromInt(7), "USD", "usd")
	assert.True(t, decimal.NewFromInt(7).Equal(got))

	// Unknown currencies are treated as USD.
	got = c.ToSettlement(decimal.NewFromInt(5), "GBP")
	assert.True(t, decimal.NewFromInt(5).Equal(got))
}
