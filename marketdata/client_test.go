package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, cfg Config) (*Client, *MemoryCache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.BackfillDelay == 0 {
		cfg.BackfillDelay = time.Millisecond
	}
	cache := NewMemoryCache()
	return New(cfg, cache, zerolog.Nop()), cache
}

func TestCurrentPricesEmptyIDs(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}), Config{})

	prices := client.CurrentPrices(context.Background(), nil, "usd")
	assert.NotNil(t, prices)
	assert.Empty(t, prices)
}

func TestCurrentPricesFetchesAndCaches(t *testing.T) {
	var calls int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"bitcoin":{"usd":50000},"ethereum":{"usd":3000}}`)
	})
	client, _ := newTestClient(t, handler, Config{})

	prices := client.CurrentPrices(context.Background(), []string{"bitcoin", "ethereum"}, "usd")
	require.NotNil(t, prices)
	assert.Equal(t, 50000.0, prices["bitcoin"]["usd"])
	assert.Equal(t, 3000.0, prices["ethereum"]["usd"])

	// Second call must come from the cache.
	client.CurrentPrices(context.Background(), []string{"bitcoin", "ethereum"}, "usd")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCurrentPricesCacheKeyIgnoresIDOrder(t *testing.T) {
	var calls int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"bitcoin":{"usd":50000},"ethereum":{"usd":3000}}`)
	})
	client, _ := newTestClient(t, handler, Config{})

	first := client.CurrentPrices(context.Background(), []string{"ethereum", "bitcoin"}, "usd")
	require.NotNil(t, first)

	second := client.CurrentPrices(context.Background(), []string{"bitcoin", "ethereum"}, "usd")
	require.NotNil(t, second)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCurrentPricesMarketsFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			w.WriteHeader(http.StatusInternalServerError)
		case "/coins/markets":
			fmt.Fprint(w, `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":49500,"market_cap":1000000}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler, Config{})

	prices := client.CurrentPrices(context.Background(), []string{"bitcoin"}, "usd")
	require.NotNil(t, prices)
	assert.Equal(t, 49500.0, prices["bitcoin"]["usd"])
}

func TestCurrentPricesStaleFallback(t *testing.T) {
	var failing atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Path == "/simple/price" {
			fmt.Fprint(w, `{"bitcoin":{"usd":48000}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	// A nanosecond TTL makes every fresh entry immediately stale.
	client, _ := newTestClient(t, handler, Config{CacheTTL: time.Nanosecond})

	first := client.CurrentPrices(context.Background(), []string{"bitcoin"}, "usd")
	require.NotNil(t, first)

	failing.Store(true)
	time.Sleep(time.Millisecond)

	stale := client.CurrentPrices(context.Background(), []string{"bitcoin"}, "usd")
	require.NotNil(t, stale)
	assert.Equal(t, 48000.0, stale["bitcoin"]["usd"])
}

func TestCurrentPricesAllRungsFail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, handler, Config{})

	assert.Nil(t, client.CurrentPrices(context.Background(), []string{"bitcoin"}, "usd"))
}

func TestCoinDetailsLightPriceWins(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			fmt.Fprint(w, `{"bitcoin":{"usd":50001,"usd_24h_change":2.5}}`)
		case "/coins/bitcoin":
			fmt.Fprint(w, `{"id":"bitcoin","symbol":"btc","name":"Bitcoin","market_data":{"current_price":{"usd":49000},"market_cap":{"usd":950000}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler, Config{})

	details := client.CoinDetails(context.Background(), "bitcoin", "usd")
	require.NotNil(t, details)
	require.NotNil(t, details.MarketData)
	assert.Equal(t, 50001.0, details.MarketData.CurrentPrice["usd"])
	require.NotNil(t, details.MarketData.PriceChangePercentage24h)
	assert.Equal(t, 2.5, *details.MarketData.PriceChangePercentage24h)
}

func TestCoinDetailsDegradedFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/price":
			fmt.Fprint(w, `{"bitcoin":{"usd":50001,"usd_24h_change":-1.5,"usd_market_cap":900000,"usd_24h_vol":12345}}`)
		case "/coins/bitcoin":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler, Config{})

	details := client.CoinDetails(context.Background(), "bitcoin", "usd")
	require.NotNil(t, details)
	assert.Equal(t, "bitcoin", details.ID)
	require.NotNil(t, details.MarketData)
	assert.Equal(t, 50001.0, details.MarketData.CurrentPrice["usd"])
	assert.Equal(t, 900000.0, details.MarketData.MarketCap["usd"])
}

func TestMarketsSparklineBackfill(t *testing.T) {
	var chartCalls int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/markets":
			fmt.Fprint(w, `[
				{"id":"bitcoin","current_price":50000,"market_cap":1000,"sparkline_in_7d":{"price":[1,true,null,2]}},
				{"id":"ethereum","current_price":3000,"market_cap":500,"sparkline_in_7d":{"price":[]}}
			]`)
		case "/coins/ethereum/market_chart":
			atomic.AddInt64(&chartCalls, 1)
			fmt.Fprint(w, `{"prices":[[1000,10],[2000,null],[3000,30]]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, handler, Config{})

	coins := client.Markets(context.Background(), MarketsParams{Currency: "usd", Sparkline: true})
	require.Len(t, coins, 2)

	// Non-numeric points are dropped at decode time.
	assert.Equal(t, []float64{1, 2}, coins[0].Sparkline.Price)

	// The empty series is backfilled from the individual chart.
	require.NotNil(t, coins[1].Sparkline)
	assert.Equal(t, []float64{10, 30}, coins[1].Sparkline.Price)
	assert.Equal(t, int64(1), atomic.LoadInt64(&chartCalls))
}

func TestMarketsRequestFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, handler, Config{})

	assert.Nil(t, client.Markets(context.Background(), MarketsParams{Currency: "usd"}))
}

func TestPriceAtTimestampNearestPoint(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/bitcoin/market_chart/range", r.URL.Path)
		fmt.Fprintf(w, `{"prices":[[%d,100],[%d,200],[%d,null]]}`,
			(at.Unix()-3600)*1000, (at.Unix()-60)*1000, at.Unix()*1000)
	})
	client, _ := newTestClient(t, handler, Config{})

	price, found := client.PriceAtTimestamp(context.Background(), "bitcoin", "usd", at)
	require.True(t, found)
	assert.Equal(t, 200.0, price)
}

func TestPriceAtTimestampNoData(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[]}`)
	})
	client, _ := newTestClient(t, handler, Config{})

	_, found := client.PriceAtTimestamp(context.Background(), "bitcoin", "usd", time.Now())
	assert.False(t, found)
}

func TestGlobalMarketCaps(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/markets", r.URL.Path)
		fmt.Fprint(w, `[
			{"id":"bitcoin","current_price":100,"market_cap":1000,"sparkline_in_7d":{"price":[50,75,100]}},
			{"id":"ethereum","current_price":10,"market_cap":500,"sparkline_in_7d":{"price":[5,8,10]}}
		]`)
	})
	client, _ := newTestClient(t, handler, Config{})

	caps := client.GlobalMarketCaps(context.Background(), "usd", 7, 2)
	require.NotNil(t, caps)
	require.Len(t, caps.MarketCaps, 3)
	assert.Equal(t, []int{0, 1, 2}, caps.Timestamps)

	// Each series is scaled so its last point equals the coin's market cap.
	assert.InDelta(t, 1500, caps.MarketCaps[2], 0.0001)
	assert.InDelta(t, 500+250, caps.MarketCaps[0], 0.0001)
}

func TestGlobalMarketCapsSkipsZeroLastPoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"bitcoin","current_price":100,"market_cap":1000,"sparkline_in_7d":{"price":[50,100]}},
			{"id":"dust","current_price":0,"market_cap":10,"sparkline_in_7d":{"price":[0,0]}}
		]`)
	})
	client, _ := newTestClient(t, handler, Config{})

	caps := client.GlobalMarketCaps(context.Background(), "usd", 7, 2)
	require.NotNil(t, caps)
	require.Len(t, caps.MarketCaps, 2)
	assert.InDelta(t, 1000, caps.MarketCaps[1], 0.0001)
}
