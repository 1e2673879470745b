// Package marketdata talks to a CoinGecko-compatible API, absorbing upstream
// unavailability behind per-operation fallback chains. Every method returns a
// value or nil; transport errors never reach the caller.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxSparklineBackfill = 5

// Config carries the upstream connection settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	CacheTTL      time.Duration
	DegradedTTL   time.Duration
	BackfillDelay time.Duration
}

// Client is an explicitly constructed upstream client; nothing in it is
// global, so tests can point it at a fake server with a MemoryCache.
type Client struct {
	baseURL       string
	apiKey        string
	http          *http.Client
	cache         Cache
	ttl           time.Duration
	degradedTTL   time.Duration
	backfillDelay time.Duration
	log           zerolog.Logger
}

func New(cfg Config, cache Cache, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.DegradedTTL <= 0 {
		cfg.DegradedTTL = time.Minute
	}
	if cfg.BackfillDelay <= 0 {
		cfg.BackfillDelay = 500 * time.Millisecond
	}
	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		http:          &http.Client{Timeout: cfg.Timeout},
		cache:         cache,
		ttl:           cfg.CacheTTL,
		degradedTTL:   cfg.DegradedTTL,
		backfillDelay: cfg.BackfillDelay,
		log:           log.With().Str("component", "marketdata").Logger(),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// CurrentPrices returns a coin→currency→price map. Fallback order: fresh
// cache, /simple/price, prices derived from the markets listing, stale cache.
// Nil means every rung failed.
func (c *Client) CurrentPrices(ctx context.Context, coinIDs []string, currency string) map[string]map[string]float64 {
	if len(coinIDs) == 0 {
		return map[string]map[string]float64{}
	}
	currency = strings.ToLower(currency)
	// Key on the sorted id set so reordered requests share one entry.
	sorted := append([]string(nil), coinIDs...)
	sort.Strings(sorted)
	key := fmt.Sprintf("prices_%s_%s", strings.Join(sorted, ","), currency)

	var cached map[string]map[string]float64
	if c.cache.Get(ctx, key, &cached) {
		return cached
	}

	query := url.Values{
		"ids":           {strings.Join(coinIDs, ",")},
		"vs_currencies": {currency},
	}
	var data map[string]map[string]float64
	if err := c.getJSON(ctx, "/simple/price", query, &data); err == nil {
		c.cache.Set(ctx, key, data, c.ttl)
		return data
	} else {
		c.log.Warn().Err(err).Msg("primary price fetch failed")
	}

	if markets := c.Markets(ctx, MarketsParams{Currency: currency, IDs: coinIDs}); markets != nil {
		derived := make(map[string]map[string]float64, len(markets))
		for _, coin := range markets {
			derived[coin.ID] = map[string]float64{currency: coin.CurrentPrice}
		}
		c.cache.Set(ctx, key, derived, c.ttl)
		return derived
	}

	if c.cache.GetStale(ctx, key, &cached) {
		c.log.Info().Str("key", key).Msg("returning stale cached prices")
		return cached
	}
	return nil
}

// CoinDetails combines /simple/price and /coins/{id}; the lightweight price
// always overwrites the detail record's nested current price, which may lag.
// When the detail call fails the lightweight shape is cached for a shorter
// TTL so the fuller shape is retried soon.
func (c *Client) CoinDetails(ctx context.Context, coinID, currency string) *CoinDetails {
	if coinID == "" {
		return nil
	}
	currency = strings.ToLower(currency)
	key := fmt.Sprintf("coin_details_%s_%s", coinID, currency)

	var cached CoinDetails
	if c.cache.Get(ctx, key, &cached) {
		return &cached
	}

	lightQuery := url.Values{
		"ids":                 {coinID},
		"vs_currencies":       {currency},
		"include_24hr_change": {"true"},
	}
	var prices map[string]map[string]float64
	if err := c.getJSON(ctx, "/simple/price", lightQuery, &prices); err == nil {
		detailQuery := url.Values{
			"localization":   {"false"},
			"tickers":        {"true"},
			"market_data":    {"true"},
			"community_data": {"true"},
			"developer_data": {"true"},
			"sparkline":      {"true"},
		}
		var details CoinDetails
		if err := c.getJSON(ctx, "/coins/"+coinID, detailQuery, &details); err == nil {
			if cp, ok := prices[coinID]; ok {
				if details.MarketData == nil {
					details.MarketData = &MarketData{}
				}
				details.MarketData.CurrentPrice = cp
				if chg, ok := cp[currency+"_24h_change"]; ok {
					v := chg
					details.MarketData.PriceChangePercentage24h = &v
				}
			}
			c.cache.Set(ctx, key, details, c.ttl)
			return &details
		} else {
			c.log.Warn().Err(err).Str("coin", coinID).Msg("detail fetch failed, trying fallback")
		}
	}

	fallbackQuery := url.Values{
		"ids":                 {coinID},
		"vs_currencies":       {currency},
		"include_24hr_change": {"true"},
		"include_market_cap":  {"true"},
		"include_24hr_vol":    {"true"},
	}
	var priceData map[string]map[string]float64
	if err := c.getJSON(ctx, "/simple/price", fallbackQuery, &priceData); err != nil {
		c.log.Error().Err(err).Str("coin", coinID).Msg("detail and fallback fetch both failed")
		return nil
	}
	cp, ok := priceData[coinID]
	if !ok {
		return nil
	}
	basic := CoinDetails{
		ID: coinID,
		MarketData: &MarketData{
			CurrentPrice: map[string]float64{currency: cp[currency]},
			MarketCap:    map[string]float64{currency: cp[currency+"_market_cap"]},
			TotalVolume:  map[string]float64{currency: cp[currency+"_24h_vol"]},
		},
	}
	if chg, ok := cp[currency+"_24h_change"]; ok {
		v := chg
		basic.MarketData.PriceChangePercentage24h = &v
	}
	c.cache.Set(ctx, key, basic, c.degradedTTL)
	return &basic
}

// Markets fetches a page of the market listing. Sparklines are filtered to
// finite numbers at decode time; up to five coins whose series came back
// empty get backfilled from individual 7-day hourly charts, throttled to
// respect upstream rate limits. Nil only on outright request failure.
func (c *Client) Markets(ctx context.Context, params MarketsParams) []MarketCoin {
	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = "usd"
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	ids := strings.Join(params.IDs, ",")
	key := fmt.Sprintf("markets_%s_%d_%t_%s", currency, perPage, params.Sparkline, ids)

	var cached []MarketCoin
	if c.cache.Get(ctx, key, &cached) {
		return cached
	}

	changes := params.PriceChangePercentage
	if changes == "" {
		changes = "1h,24h,7d"
	}
	query := url.Values{
		"vs_currency":             {currency},
		"order":                   {"market_cap_desc"},
		"per_page":                {strconv.Itoa(perPage)},
		"page":                    {strconv.Itoa(page)},
		"sparkline":               {strconv.FormatBool(params.Sparkline)},
		"price_change_percentage": {changes},
		"localization":            {"false"},
	}
	if ids != "" {
		query.Set("ids", ids)
	}

	var coins []MarketCoin
	if err := c.getJSON(ctx, "/coins/markets", query, &coins); err != nil {
		c.log.Error().Err(err).Msg("markets fetch failed")
		return nil
	}

	if params.Sparkline {
		var missing []int
		for i := range coins {
			if coins[i].Sparkline == nil || len(coins[i].Sparkline.Price) == 0 {
				missing = append(missing, i)
			}
		}
		if len(missing) > 0 {
			c.log.Warn().Int("coins", len(missing)).Msg("missing sparkline, fetching fallback data")
			for n, i := range missing {
				if n == maxSparklineBackfill {
					break
				}
				time.Sleep(c.backfillDelay)
				chart := c.CoinMarketChart(ctx, coins[i].ID, currency, 7, "hourly")
				if chart == nil {
					continue
				}
				prices := make([]float64, 0, len(chart.Prices))
				for _, p := range chart.Prices {
					if v, ok := p.Value(); ok {
						prices = append(prices, v)
					}
				}
				coins[i].Sparkline = &Sparkline{Price: prices}
				c.log.Info().Str("coin", coins[i].ID).Int("points", len(prices)).Msg("filled sparkline from market chart")
			}
		}
	}

	c.cache.Set(ctx, key, coins, c.ttl)
	return coins
}

// CoinMarketChart is a cached passthrough of /coins/{id}/market_chart. The
// cache key deliberately omits the interval, matching upstream granularity
// rules for a given day span.
func (c *Client) CoinMarketChart(ctx context.Context, coinID, currency string, days int, interval string) *MarketChart {
	if coinID == "" {
		return nil
	}
	currency = strings.ToLower(currency)
	key := fmt.Sprintf("market_chart_%s_%s_%d", coinID, currency, days)

	var cached MarketChart
	if c.cache.Get(ctx, key, &cached) {
		return &cached
	}

	query := url.Values{
		"vs_currency": {currency},
		"days":        {strconv.Itoa(days)},
	}
	if interval != "" {
		query.Set("interval", interval)
	}
	var chart MarketChart
	if err := c.getJSON(ctx, "/coins/"+coinID+"/market_chart", query, &chart); err != nil {
		c.log.Error().Err(err).Str("coin", coinID).Msg("market chart fetch failed")
		return nil
	}
	c.cache.Set(ctx, key, chart, c.ttl)
	return &chart
}

// PriceAtTimestamp fetches a ±2h window around the instant and returns the
// numeric point nearest to it, first-encountered winning ties.
func (c *Client) PriceAtTimestamp(ctx context.Context, coinID, currency string, at time.Time) (float64, bool) {
	if coinID == "" || at.IsZero() {
		return 0, false
	}
	currency = strings.ToLower(currency)
	ts := at.UTC().Unix()
	from, to := ts-2*3600, ts+2*3600
	key := fmt.Sprintf("price_at_%s_%s_%d_%d", coinID, currency, from, to)

	var points []ChartPoint
	if !c.cache.Get(ctx, key, &points) {
		query := url.Values{
			"vs_currency": {currency},
			"from":        {strconv.FormatInt(from, 10)},
			"to":          {strconv.FormatInt(to, 10)},
		}
		var data struct {
			Prices []ChartPoint `json:"prices"`
		}
		if err := c.getJSON(ctx, "/coins/"+coinID+"/market_chart/range", query, &data); err != nil {
			c.log.Error().Err(err).Str("coin", coinID).Msg("price range fetch failed")
			return 0, false
		}
		points = data.Prices
		c.cache.Set(ctx, key, points, c.ttl)
	}

	targetMs := ts * 1000
	var best float64
	var bestDist int64
	found := false
	for _, p := range points {
		v, ok := p.Value()
		if !ok {
			continue
		}
		dist := p.Timestamp - targetMs
		if dist < 0 {
			dist = -dist
		}
		if !found || dist < bestDist {
			best, bestDist, found = v, dist, true
		}
	}
	return best, found
}

// GlobalMarketCaps reconstructs an aggregate market-cap series for the top N
// coins by scaling each sparkline so its last point reproduces the coin's
// current market cap, then summing per index. The timestamp axis is the point
// index, not wall-clock time.
func (c *Client) GlobalMarketCaps(ctx context.Context, currency string, days, topN int) *GlobalMarketCaps {
	currency = strings.ToLower(currency)
	if currency == "" {
		currency = "usd"
	}
	if days <= 0 {
		days = 7
	}
	if topN <= 0 {
		topN = 100
	}
	key := fmt.Sprintf("global_market_caps_%s_%d_%d", currency, days, topN)

	var cached GlobalMarketCaps
	if c.cache.Get(ctx, key, &cached) {
		return &cached
	}

	markets := c.Markets(ctx, MarketsParams{Currency: currency, PerPage: topN, Page: 1, Sparkline: true})
	if markets == nil {
		return nil
	}

	var caps []float64
	for _, coin := range markets {
		if coin.Sparkline == nil || len(coin.Sparkline.Price) == 0 {
			continue
		}
		series := coin.Sparkline.Price
		last := series[len(series)-1]
		if last == 0 {
			continue
		}
		factor := coin.MarketCap / last
		for len(caps) < len(series) {
			caps = append(caps, 0)
		}
		for j, p := range series {
			caps[j] += p * factor
		}
	}

	timestamps := make([]int, len(caps))
	for i := range timestamps {
		timestamps[i] = i
	}
	out := GlobalMarketCaps{Timestamps: timestamps, MarketCaps: caps}
	c.cache.Set(ctx, key, out, c.ttl)
	return &out
}
