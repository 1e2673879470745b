package marketdata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"integer", "5", 5, true},
		{"float", "42.5", 42.5, true},
		{"negative", "-0.001", -0.001, true},
		{"zero", "0", 0, true},
		{"exponent", "1.5e3", 1500, true},
		{"null", "null", 0, false},
		{"true", "true", 0, false},
		{"false", "false", 0, false},
		{"string", `"42.5"`, 0, false},
		{"empty", "", 0, false},
		{"overflow to inf", "1e999", 0, false},
		{"garbage", "abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := asNumber(json.RawMessage(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSparklineFiltersNonNumbers(t *testing.T) {
	var s Sparkline
	err := json.Unmarshal([]byte(`{"price":[100.5,true,null,"oops",false,101.25]}`), &s)
	assert.NoError(t, err)
	assert.Equal(t, []float64{100.5, 101.25}, s.Price)
}

func TestChartPointRoundTrip(t *testing.T) {
	var p ChartPoint
	err := json.Unmarshal([]byte(`[1700000000000, 42000.5]`), &p)
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000000000), p.Timestamp)
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 42000.5, v)

	out, err := json.Marshal(p)
	assert.NoError(t, err)

	var back ChartPoint
	assert.NoError(t, json.Unmarshal(out, &back))
	bv, ok := back.Value()
	assert.True(t, ok)
	assert.Equal(t, v, bv)
}

func TestChartPointNullValue(t *testing.T) {
	var p ChartPoint
	err := json.Unmarshal([]byte(`[1700000000000, null]`), &p)
	assert.NoError(t, err)
	_, ok := p.Value()
	assert.False(t, ok)

	out, err := json.Marshal(p)
	assert.NoError(t, err)
	assert.JSONEq(t, `[1700000000000, null]`, string(out))
}
