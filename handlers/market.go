package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/database"
	"cryptofolio/marketdata"
	"cryptofolio/models"
)

// CurrentPrices serves live prices with the stored price rows as the
// last-resort fallback when the upstream and its caches are all unavailable.
func (a *API) CurrentPrices(c *gin.Context) {
	idsParam := strings.TrimSpace(c.Query("ids"))
	if idsParam == "" {
		badRequest(c, "ids is required")
		return
	}
	coinIDs := splitIDs(idsParam)
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))

	prices := a.market.CurrentPrices(c.Request.Context(), coinIDs, cur)
	if prices != nil {
		a.storePriceFallbacks(prices, cur)
		ok(c, prices)
		return
	}

	var rows []models.CurrentPrice
	err := config.DB.Where("coin_id IN ? AND currency = ?", coinIDs, cur).Find(&rows).Error
	if err != nil || len(rows) == 0 {
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "price data unavailable", nil)
		return
	}
	stored := make(map[string]map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		stored[row.CoinID] = map[string]decimal.Decimal{cur: row.Price}
	}
	ok(c, gin.H{"prices": stored, "source": "stored"})
}

// storePriceFallbacks refreshes the stored rows backing the DB fallback.
// Failures are logged and ignored; serving the response comes first.
func (a *API) storePriceFallbacks(prices map[string]map[string]float64, cur string) {
	for coinID, byCurrency := range prices {
		price, found := byCurrency[cur]
		if !found {
			continue
		}
		row := models.CurrentPrice{CoinID: coinID, Currency: cur}
		err := config.DB.Where(models.CurrentPrice{CoinID: coinID, Currency: cur}).
			Assign(map[string]interface{}{"price": decimal.NewFromFloat(price)}).
			FirstOrCreate(&row).Error
		if err != nil {
			a.log.Warn().Err(err).Str("coin", coinID).Msg("failed to store fallback price")
		}
		if cur == "usd" {
			config.DB.Model(&models.Coin{}).Where("id = ?", coinID).Update("current_price", price)
		}
	}
}

// Markets serves the paginated market listing.
func (a *API) Markets(c *gin.Context) {
	params := marketdata.MarketsParams{
		Currency:  strings.ToLower(c.DefaultQuery("currency", "usd")),
		PerPage:   queryInt(c, "per_page", 100),
		Page:      queryInt(c, "page", 1),
		Sparkline: c.DefaultQuery("sparkline", "true") == "true",
		IDs:       splitIDs(c.Query("ids")),
	}

	coins := a.market.Markets(c.Request.Context(), params)
	if coins == nil {
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "market data unavailable", nil)
		return
	}
	ok(c, coins)
}

// CoinDetail serves the combined detail shape and refreshes the coin row's
// metadata as a side effect.
func (a *API) CoinDetail(c *gin.Context) {
	coinID := c.Param("id")
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))

	details := a.market.CoinDetails(c.Request.Context(), coinID, cur)
	if details == nil {
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "coin details unavailable", nil)
		return
	}

	if details.MarketData != nil {
		updates := map[string]interface{}{}
		if details.Symbol != "" {
			updates["symbol"] = strings.ToUpper(details.Symbol)
		}
		if details.Name != "" {
			updates["name"] = details.Name
		}
		if price, found := details.MarketData.CurrentPrice["usd"]; found {
			updates["current_price"] = price
		}
		if mcap, found := details.MarketData.MarketCap["usd"]; found {
			updates["market_cap"] = mcap
		}
		coin := models.Coin{ID: coinID}
		if err := config.DB.Where(models.Coin{ID: coinID}).Assign(updates).FirstOrCreate(&coin).Error; err != nil {
			a.log.Warn().Err(err).Str("coin", coinID).Msg("failed to refresh coin metadata")
		}
	}
	ok(c, details)
}

// MarketChart serves a coin's price series and persists the numeric points as
// historical price rows.
func (a *API) MarketChart(c *gin.Context) {
	coinID := c.Param("id")
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))
	days := queryInt(c, "days", 7)
	interval := c.Query("interval")

	chart := a.market.CoinMarketChart(c.Request.Context(), coinID, cur, days, interval)
	if chart == nil {
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "market chart unavailable", nil)
		return
	}

	stored, err := database.PersistChartPoints(c.Request.Context(), config.DB, coinID, cur, chart)
	if err != nil {
		a.log.Warn().Err(err).Str("coin", coinID).Msg("failed to persist chart points")
	}
	ok(c, gin.H{"prices": chart.Prices, "stored_points": stored})
}

// PriceHistory serves persisted historical price rows for a coin.
func (a *API) PriceHistory(c *gin.Context) {
	coinID := c.Param("id")
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))

	q := config.DB.Where("coin_id = ? AND currency = ?", coinID, cur)
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			q = q.Where("price_date >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			q = q.Where("price_date <= ?", t)
		}
	}

	var rows []models.PriceCache
	if err := q.Order("price_date ASC").Limit(2000).Find(&rows).Error; err != nil {
		internalError(c, "error loading price history")
		return
	}
	ok(c, rows)
}

// PriceAt resolves the price of a coin nearest to a requested instant.
func (a *API) PriceAt(c *gin.Context) {
	coinID := c.Param("id")
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))
	at, err := time.Parse(time.RFC3339, c.Query("at"))
	if err != nil {
		badRequest(c, "at must be an RFC3339 timestamp")
		return
	}

	price, found := a.market.PriceAtTimestamp(c.Request.Context(), coinID, cur, at)
	if !found {
		notFound(c, "no price near the requested time")
		return
	}
	ok(c, gin.H{"coin_id": coinID, "currency": cur, "at": at.UTC(), "price": price})
}

// GlobalMarketCap serves the aggregated top-N market cap series.
func (a *API) GlobalMarketCap(c *gin.Context) {
	cur := strings.ToLower(c.DefaultQuery("currency", "usd"))
	days := queryInt(c, "days", 7)
	topN := queryInt(c, "top_n", 100)

	caps := a.market.GlobalMarketCaps(c.Request.Context(), cur, days, topN)
	if caps == nil {
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "global market data unavailable", nil)
		return
	}
	ok(c, caps)
}

// Proxy forwards a GET to the upstream API verbatim, adding the API key. Only
// reads pass through.
func (a *API) Proxy(c *gin.Context) {
	path := c.Param("path")
	if path == "" || strings.Contains(path, "..") {
		badRequest(c, "invalid proxy path")
		return
	}

	target := strings.TrimSuffix(config.Settings.CoinGeckoBaseURL, "/") + path
	if raw := c.Request.URL.RawQuery; raw != "" {
		target += "?" + raw
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		badRequest(c, "invalid proxy path")
		return
	}
	req.Header.Set("Accept", "application/json")
	if config.Settings.CoinGeckoAPIKey != "" {
		req.Header.Set("x-cg-demo-api-key", config.Settings.CoinGeckoAPIKey)
	}

	client := &http.Client{Timeout: config.Settings.UpstreamTimeout}
	resp, err := client.Do(req)
	if err != nil {
		respond(c, http.StatusBadGateway, CodeUpstream, "upstream unavailable", nil)
		return
	}
	defer resp.Body.Close()

	c.Status(resp.StatusCode)
	c.Header("Content-Type", resp.Header.Get("Content-Type"))
	io.Copy(c.Writer, resp.Body)
}

// Health reports DB and Redis reachability.
func (a *API) Health(c *gin.Context) {
	status := gin.H{"status": "ok", "database": "ok", "redis": "ok"}
	healthy := true

	if sqlDB, err := config.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status["database"] = "down"
		healthy = false
	}
	if err := config.Rdb.Ping(c.Request.Context()).Err(); err != nil {
		status["redis"] = "down"
		healthy = false
	}
	if !healthy {
		status["status"] = "degraded"
		respond(c, http.StatusServiceUnavailable, CodeUpstream, "degraded", status)
		return
	}
	ok(c, status)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
