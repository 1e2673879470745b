package marketdata

import "encoding/json"

// Sparkline is the 7-day price series attached to a market listing entry.
// Decoding drops every value that is not a finite JSON number.
type Sparkline struct {
	Price []float64 `json:"price"`
}

func (s *Sparkline) UnmarshalJSON(b []byte) error {
	var wrapper struct {
		Price []json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return err
	}
	filtered := make([]float64, 0, len(wrapper.Price))
	for _, raw := range wrapper.Price {
		if v, ok := asNumber(raw); ok {
			filtered = append(filtered, v)
		}
	}
	s.Price = filtered
	return nil
}

// MarketCoin is one row of the /coins/markets listing.
type MarketCoin struct {
	ID                       string     `json:"id"`
	Symbol                   string     `json:"symbol"`
	Name                     string     `json:"name"`
	Image                    string     `json:"image,omitempty"`
	CurrentPrice             float64    `json:"current_price"`
	MarketCap                float64    `json:"market_cap"`
	MarketCapRank            int        `json:"market_cap_rank,omitempty"`
	TotalVolume              float64    `json:"total_volume,omitempty"`
	PriceChangePercentage1h  *float64   `json:"price_change_percentage_1h_in_currency,omitempty"`
	PriceChangePercentage24h *float64   `json:"price_change_percentage_24h,omitempty"`
	PriceChangePercentage7d  *float64   `json:"price_change_percentage_7d_in_currency,omitempty"`
	Sparkline                *Sparkline `json:"sparkline_in_7d,omitempty"`
}

// ChartPoint is a [timestamp_ms, price] pair from a market chart. The price
// side is kept raw so non-numeric points survive a cache round-trip but never
// count as candidates.
type ChartPoint struct {
	Timestamp int64
	raw       json.RawMessage
}

// NewChartPoint builds a numeric point; used by tests and backfill paths.
func NewChartPoint(tsMillis int64, value float64) ChartPoint {
	raw, _ := json.Marshal(value)
	return ChartPoint{Timestamp: tsMillis, raw: raw}
}

// Value returns the point's price when it is a finite number.
func (p ChartPoint) Value() (float64, bool) {
	return asNumber(p.raw)
}

func (p *ChartPoint) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	if len(parts) > 0 {
		if ts, ok := asNumber(parts[0]); ok {
			p.Timestamp = int64(ts)
		}
	}
	if len(parts) > 1 {
		p.raw = append(json.RawMessage(nil), parts[1]...)
	}
	return nil
}

func (p ChartPoint) MarshalJSON() ([]byte, error) {
	if v, ok := p.Value(); ok {
		return json.Marshal([2]float64{float64(p.Timestamp), v})
	}
	return json.Marshal([2]interface{}{p.Timestamp, nil})
}

// MarketChart is the /coins/{id}/market_chart response.
type MarketChart struct {
	Prices []ChartPoint `json:"prices"`
}

// MarketData is the nested market_data block of a coin detail response, with
// the optional fields modelled explicitly.
type MarketData struct {
	CurrentPrice             map[string]float64 `json:"current_price,omitempty"`
	MarketCap                map[string]float64 `json:"market_cap,omitempty"`
	TotalVolume              map[string]float64 `json:"total_volume,omitempty"`
	PriceChangePercentage24h *float64           `json:"price_change_percentage_24h,omitempty"`
}

// CoinDetails is the subset of /coins/{id} the application consumes.
type CoinDetails struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol,omitempty"`
	Name       string      `json:"name,omitempty"`
	MarketData *MarketData `json:"market_data,omitempty"`
}

// GlobalMarketCaps is the aggregated top-N market-cap series. Timestamps are
// sparkline point indices (0..N-1), not wall-clock times.
type GlobalMarketCaps struct {
	Timestamps []int     `json:"timestamps"`
	MarketCaps []float64 `json:"market_caps"`
}

// MarketsParams selects a page of the market listing.
type MarketsParams struct {
	Currency              string
	PerPage               int
	Page                  int
	Sparkline             bool
	IDs                   []string
	PriceChangePercentage string
}
