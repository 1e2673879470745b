package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cryptofolio/marketdata"
	"cryptofolio/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Coin{}, &models.PriceCache{}))
	return db
}

func TestPersistChartPointsSkipsNonNumeric(t *testing.T) {
	db := newTestDB(t)

	chart := &marketdata.MarketChart{Prices: []marketdata.ChartPoint{
		marketdata.NewChartPoint(1000, 10.5),
		marketdata.NewChartPoint(2000, 11.25),
	}}
	// A null-valued point survives decoding but must not be stored.
	var withNull marketdata.MarketChart
	require.NoError(t, json.Unmarshal([]byte(`{"prices":[[3000,null]]}`), &withNull))
	chart.Prices = append(chart.Prices, withNull.Prices...)

	stored, err := PersistChartPoints(context.Background(), db, "bitcoin", "usd", chart)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	var rows []models.PriceCache
	require.NoError(t, db.Order("price_date ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "bitcoin", rows[0].CoinID)
	assert.Equal(t, "usd", rows[0].Currency)
	assert.Equal(t, int64(1000), rows[0].PriceDate.UnixMilli())
}

func TestPersistChartPointsDeduplicates(t *testing.T) {
	db := newTestDB(t)

	chart := &marketdata.MarketChart{Prices: []marketdata.ChartPoint{
		marketdata.NewChartPoint(1000, 10),
		marketdata.NewChartPoint(2000, 20),
	}}
	stored, err := PersistChartPoints(context.Background(), db, "bitcoin", "usd", chart)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	// Same chart plus one new point: only the new one lands.
	chart.Prices = append(chart.Prices, marketdata.NewChartPoint(3000, 30))
	stored, err = PersistChartPoints(context.Background(), db, "bitcoin", "usd", chart)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	var count int64
	require.NoError(t, db.Model(&models.PriceCache{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestPersistChartPointsEmpty(t *testing.T) {
	db := newTestDB(t)

	stored, err := PersistChartPoints(context.Background(), db, "bitcoin", "usd", nil)
	require.NoError(t, err)
	assert.Zero(t, stored)

	stored, err = PersistChartPoints(context.Background(), db, "bitcoin", "usd", &marketdata.MarketChart{})
	require.NoError(t, err)
	assert.Zero(t, stored)
}
