package valuation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cryptofolio/currency"
	"cryptofolio/models"
)

type stubPrices struct {
	prices map[string]float64

	// last currency the aggregator asked for
	requestedCurrency string
}

func (s *stubPrices) CurrentPrices(ctx context.Context, coinIDs []string, currency string) map[string]map[string]float64 {
	s.requestedCurrency = currency
	out := make(map[string]map[string]float64)
	for _, id := range coinIDs {
		if p, ok := s.prices[id]; ok {
			out[id] = map[string]float64{currency: p}
		}
	}
	return out
}

func newTestAggregator(t *testing.T, source PriceSource) (*Aggregator, *gorm.DB) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Coin{},
		&models.Holding{},
		&models.Transaction{},
		&models.Simulation{},
	))
	converter := currency.NewConverter(map[string]float64{"EUR": 0.5, "AUD": 2})
	return NewAggregator(db, source, converter, zerolog.Nop()), db
}

func createUser(t *testing.T, db *gorm.DB, preferredCurrency string) string {
	t.Helper()
	user := models.User{
		Email:             fmt.Sprintf("%s@example.com", uuid.NewString()),
		PreferredCurrency: preferredCurrency,
		IsActive:          true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func entry(coinID, txType, qty, price string) models.Transaction {
	return models.Transaction{
		CoinID:   coinID,
		Type:     txType,
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
	}
}

func TestInvested(t *testing.T) {
	entries := []models.Transaction{
		entry("bitcoin", models.TxBuy, "2", "100"),
		entry("bitcoin", models.TxSell, "1", "150"),
		entry("ethereum", models.TxBuy, "10", "20.555"),
	}
	// 200 - 150 + 205.55
	assert.True(t, dec(t, "255.55").Equal(Invested(entries)), "got %s", Invested(entries))
}

func TestUnitsFloorAtZero(t *testing.T) {
	entries := []models.Transaction{
		entry("bitcoin", models.TxBuy, "1", "100"),
		entry("bitcoin", models.TxSell, "3", "100"),
		entry("ethereum", models.TxBuy, "2.12345", "10"),
	}
	units := Units(entries)
	assert.True(t, decimal.Zero.Equal(units["bitcoin"]), "got %s", units["bitcoin"])
	assert.True(t, dec(t, "2.1235").Equal(units["ethereum"]), "got %s", units["ethereum"])
}

func TestCurrentValueSkipsUnpricedCoins(t *testing.T) {
	units := map[string]decimal.Decimal{
		"bitcoin":  dec(t, "2"),
		"obscure":  dec(t, "100"),
		"ethereum": dec(t, "0.5"),
	}
	prices := map[string]decimal.Decimal{
		"bitcoin":  dec(t, "50000"),
		"ethereum": dec(t, "3000"),
	}
	got := CurrentValue(units, prices)
	assert.True(t, dec(t, "101500").Equal(got), "got %s", got)
}

func TestPortfolioSummary(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{prices: map[string]float64{"bitcoin": 60000}})
	user := uuid.NewString()

	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"}).Error)
	require.NoError(t, db.Create(&models.Holding{
		UserID:           user,
		CoinID:           "bitcoin",
		Quantity:         dec(t, "0.5"),
		AvgPrice:         dec(t, "40000"),
		AvgPriceCurrency: "USD",
	}).Error)
	require.NoError(t, db.Create(&models.Transaction{
		UserID:         user,
		CoinID:         "bitcoin",
		Type:           models.TxSell,
		Quantity:       dec(t, "0.1"),
		Price:          dec(t, "55000"),
		RealisedProfit: dec(t, "1500"),
	}).Error)

	summary, err := agg.PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 1)

	h := summary.Holdings[0]
	assert.True(t, dec(t, "60000").Equal(h.CurrentPrice))
	assert.True(t, dec(t, "30000").Equal(h.CurrentValue), "got %s", h.CurrentValue)
	assert.True(t, dec(t, "10000").Equal(h.ProfitLoss), "got %s", h.ProfitLoss)
	assert.True(t, dec(t, "50").Equal(h.ProfitLossPercent), "got %s", h.ProfitLossPercent)
	assert.True(t, dec(t, "1500").Equal(summary.RealisedTotal))
}

func TestPortfolioSummaryStaticFallback(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{})
	user := uuid.NewString()

	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin", CurrentPrice: 45000}).Error)
	require.NoError(t, db.Create(&models.Holding{
		UserID:   user,
		CoinID:   "bitcoin",
		Quantity: dec(t, "1"),
		AvgPrice: dec(t, "40000"),
	}).Error)

	summary, err := agg.PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 1)
	assert.True(t, dec(t, "45000").Equal(summary.Holdings[0].CurrentPrice))
}

func TestSimulationSummary(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{prices: map[string]float64{"bitcoin": 50000}})
	user := uuid.NewString()

	sim := models.Simulation{UserID: user, Name: "paper", StartDate: time.Now().Add(-48 * time.Hour), Status: models.SimulationActive}
	require.NoError(t, db.Create(&sim).Error)
	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin"}).Error)

	for _, e := range []models.Transaction{
		{UserID: user, SimulationID: &sim.ID, CoinID: "bitcoin", Type: models.TxBuy, Quantity: dec(t, "2"), Price: dec(t, "40000")},
		{UserID: user, SimulationID: &sim.ID, CoinID: "bitcoin", Type: models.TxSell, Quantity: dec(t, "1"), Price: dec(t, "45000")},
	} {
		e := e
		require.NoError(t, db.Create(&e).Error)
	}

	summary, err := agg.SimulationSummary(context.Background(), &sim)
	require.NoError(t, err)
	// 80000 - 45000
	assert.True(t, dec(t, "35000").Equal(summary.Invested), "got %s", summary.Invested)
	assert.True(t, dec(t, "1").Equal(summary.Units["bitcoin"]))
	assert.True(t, dec(t, "50000").Equal(summary.CurrentValue), "got %s", summary.CurrentValue)
	assert.Equal(t, 2, summary.TransactionCount)
}

func TestSimulationSummaryUsesPreferredCurrency(t *testing.T) {
	source := &stubPrices{prices: map[string]float64{"bitcoin": 40000}}
	agg, db := newTestAggregator(t, source)
	user := createUser(t, db, "EUR")

	sim := models.Simulation{UserID: user, Name: "paper", StartDate: time.Now().Add(-48 * time.Hour), Status: models.SimulationActive}
	require.NoError(t, db.Create(&sim).Error)
	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin"}).Error)
	require.NoError(t, db.Create(&models.Transaction{
		UserID: user, SimulationID: &sim.ID, CoinID: "bitcoin",
		Type: models.TxBuy, Quantity: dec(t, "1"), Price: dec(t, "40000"),
	}).Error)

	summary, err := agg.SimulationSummary(context.Background(), &sim)
	require.NoError(t, err)
	assert.Equal(t, "eur", source.requestedCurrency)
	assert.Equal(t, "EUR", summary.Currency)
	assert.True(t, dec(t, "40000").Equal(summary.CurrentValue), "got %s", summary.CurrentValue)
}

func TestPortfolioSummaryUsesPreferredCurrency(t *testing.T) {
	source := &stubPrices{prices: map[string]float64{"bitcoin": 30000}}
	agg, db := newTestAggregator(t, source)
	user := createUser(t, db, "EUR")

	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin"}).Error)
	require.NoError(t, db.Create(&models.Holding{
		UserID:   user,
		CoinID:   "bitcoin",
		Quantity: dec(t, "1"),
		AvgPrice: dec(t, "40000"),
	}).Error)

	summary, err := agg.PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "eur", source.requestedCurrency)
	assert.Equal(t, "EUR", summary.Currency)
	require.Len(t, summary.Holdings, 1)

	h := summary.Holdings[0]
	assert.True(t, dec(t, "30000").Equal(h.CurrentPrice))
	// The USD cost basis is converted before comparing: 40000 USD is 20000 EUR.
	assert.True(t, dec(t, "10000").Equal(h.ProfitLoss), "got %s", h.ProfitLoss)
}

func TestStaticFallbackConvertsSettlementPrice(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{})
	user := createUser(t, db, "EUR")

	// Stored coin prices are in the settlement currency.
	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin", CurrentPrice: 100}).Error)
	require.NoError(t, db.Create(&models.Holding{
		UserID:   user,
		CoinID:   "bitcoin",
		Quantity: dec(t, "2"),
		AvgPrice: dec(t, "40"),
	}).Error)

	summary, err := agg.PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 1)
	assert.True(t, dec(t, "50").Equal(summary.Holdings[0].CurrentPrice), "got %s", summary.Holdings[0].CurrentPrice)
	assert.True(t, dec(t, "100").Equal(summary.Holdings[0].CurrentValue))
}

func TestPortfolioSummaryOrdersByRecentUpdate(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{prices: map[string]float64{"bitcoin": 1, "ethereum": 1}})
	user := uuid.NewString()

	older := models.Holding{UserID: user, CoinID: "bitcoin", Quantity: dec(t, "1"), AvgPrice: dec(t, "1")}
	require.NoError(t, db.Create(&older).Error)
	newer := models.Holding{UserID: user, CoinID: "ethereum", Quantity: dec(t, "1"), AvgPrice: dec(t, "1")}
	require.NoError(t, db.Create(&newer).Error)
	require.NoError(t, db.Model(&older).UpdateColumn("updated_at", time.Now().Add(time.Hour)).Error)

	summary, err := agg.PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, summary.Holdings, 2)
	assert.Equal(t, "bitcoin", summary.Holdings[0].CoinID)
	assert.Equal(t, "ethereum", summary.Holdings[1].CoinID)
}

func TestAdminMetrics(t *testing.T) {
	agg, db := newTestAggregator(t, &stubPrices{})

	require.NoError(t, db.Create(&models.User{Email: "a@example.com", IsActive: true}).Error)
	inactive := models.User{Email: "b@example.com", IsActive: true}
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)
	require.NoError(t, db.Create(&models.Coin{ID: "bitcoin"}).Error)
	require.NoError(t, db.Create(&models.Transaction{
		UserID: uuid.NewString(), CoinID: "bitcoin", Type: models.TxBuy,
		Quantity: dec(t, "2"), Price: dec(t, "100"),
	}).Error)

	m, err := agg.AdminMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalUsers)
	assert.Equal(t, int64(1), m.ActiveUsers)
	assert.Equal(t, int64(1), m.TotalTransactions)
	assert.Equal(t, int64(1), m.TotalCoins)
	assert.True(t, dec(t, "200").Equal(m.TotalVolume), "got %s", m.TotalVolume)
}
