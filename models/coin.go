package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Coin mirrors the upstream listing. The ID is the upstream-assigned
// identifier (e.g. "bitcoin"); rows are created lazily on first reference.
type Coin struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	CurrentPrice   float64   `json:"current_price"`
	PriceChange24h float64   `json:"price_change_24h"`
	MarketCap      float64   `json:"market_cap"`
	LastUpdated    time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}

// CurrentPrice is the stored per-currency price used as a last-resort
// fallback when the upstream and its cache are both unavailable.
type CurrentPrice struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	CoinID      string `gorm:"index;not null"`
	Coin        Coin
	Price       decimal.Decimal `gorm:"type:decimal(30,10)"`
	Currency    string          `gorm:"size:10"`
	LastUpdated time.Time       `gorm:"autoUpdateTime"`
}

func (p *CurrentPrice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PriceCache is a persisted historical price point, batch-inserted whenever a
// market chart is fetched from upstream.
type PriceCache struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	CoinID    string `gorm:"index;not null"`
	Coin      Coin
	Price     decimal.Decimal `gorm:"type:decimal(30,10)"`
	Currency  string          `gorm:"size:10"`
	PriceDate time.Time       `gorm:"index"`
	FetchedAt time.Time       `gorm:"autoCreateTime"`
	Source    string          `gorm:"default:coingecko"`
}

func (p *PriceCache) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
