package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TxBuy  = "BUY"
	TxSell = "SELL"
)

// Holding is the materialized position for a (user, simulation, coin) key.
// Quantity is always positive: a holding that reaches zero is deleted.
type Holding struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"holding_id"`
	UserID           string          `gorm:"type:uuid;uniqueIndex:idx_holding_key;not null" json:"-"`
	SimulationID     *string         `gorm:"type:uuid;uniqueIndex:idx_holding_key" json:"simulation_id,omitempty"`
	CoinID           string          `gorm:"uniqueIndex:idx_holding_key;not null" json:"coin_id"`
	Coin             Coin            `json:"-"`
	Quantity         decimal.Decimal `gorm:"type:decimal(40,20)" json:"quantity"`
	AvgPrice         decimal.Decimal `gorm:"type:decimal(30,10)" json:"avg_price"`
	AvgPriceCurrency string          `gorm:"size:3;default:USD" json:"avg_price_currency"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

// Transaction is an immutable ledger entry. The only permitted mutation is
// back-filling Time right after creation when a historical time was requested.
type Transaction struct {
	ID                     string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 string          `gorm:"type:uuid;index;not null" json:"-"`
	SimulationID           *string         `gorm:"type:uuid;index" json:"simulation_id,omitempty"`
	CoinID                 string          `gorm:"index;not null" json:"coin_id"`
	Coin                   Coin            `json:"coin"`
	Type                   string          `gorm:"size:4;not null" json:"type"`
	Quantity               decimal.Decimal `gorm:"type:decimal(40,20)" json:"quantity"`
	Price                  decimal.Decimal `gorm:"type:decimal(30,10)" json:"price"`
	PriceCurrency          string          `gorm:"size:3;default:USD" json:"price_currency"`
	Time                   time.Time       `gorm:"index" json:"time"`
	Fee                    decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"fee"`
	CostBasis              decimal.Decimal `gorm:"type:decimal(30,10)" json:"cost_basis"`
	RealisedProfit         decimal.Decimal `gorm:"type:decimal(30,10);default:0" json:"realised_profit"`
	RealisedProfitCurrency string          `gorm:"size:3;default:USD" json:"realised_profit_currency"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Time.IsZero() {
		t.Time = time.Now().UTC()
	}
	return nil
}
