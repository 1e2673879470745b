package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptofolio/marketdata"
	"cryptofolio/models"
)

const insertBatchSize = 500

// PersistChartPoints stores the numeric points of a fetched market chart as
// historical price rows. Non-numeric points are skipped. Points already
// stored for the same coin, currency and instant are left alone.
func PersistChartPoints(ctx context.Context, db *gorm.DB, coinID, currency string, chart *marketdata.MarketChart) (int, error) {
	if chart == nil || len(chart.Prices) == 0 {
		return 0, nil
	}

	rows := make([]models.PriceCache, 0, len(chart.Prices))
	for _, point := range chart.Prices {
		value, ok := point.Value()
		if !ok {
			continue
		}
		rows = append(rows, models.PriceCache{
			CoinID:    coinID,
			Price:     decimal.NewFromFloat(value),
			Currency:  currency,
			PriceDate: time.UnixMilli(point.Timestamp).UTC(),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.PriceCache
		first := rows[0].PriceDate
		last := rows[len(rows)-1].PriceDate
		if err := tx.Select("price_date").
			Where("coin_id = ? AND currency = ? AND price_date BETWEEN ? AND ?", coinID, currency, first, last).
			Find(&existing).Error; err != nil {
			return err
		}
		seen := make(map[int64]bool, len(existing))
		for _, row := range existing {
			seen[row.PriceDate.UnixMilli()] = true
		}

		fresh := rows[:0]
		for _, row := range rows {
			if !seen[row.PriceDate.UnixMilli()] {
				fresh = append(fresh, row)
			}
		}
		rows = fresh
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
