package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SimulationActive   = "ACTIVE"
	SimulationPaused   = "PAUSED"
	SimulationEnded    = "ENDED"
	SimulationArchived = "ARCHIVED"
)

// ValidSimulationStatus reports whether s is one of the lifecycle states.
func ValidSimulationStatus(s string) bool {
	switch s {
	case SimulationActive, SimulationPaused, SimulationEnded, SimulationArchived:
		return true
	}
	return false
}

// Simulation scopes a sandboxed ledger separate from the user's real
// portfolio. Names are unique per user, case-insensitively (enforced in the
// ledger, not the schema).
type Simulation struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string     `gorm:"type:uuid;index;not null" json:"-"`
	User        User       `json:"-"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Status      string     `gorm:"default:ACTIVE" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *Simulation) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// WatchlistItem is a (user, coin, optional simulation) marker with no
// lifecycle beyond create/delete.
type WatchlistItem struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;uniqueIndex:idx_watchlist_key;not null" json:"-"`
	CoinID       string    `gorm:"uniqueIndex:idx_watchlist_key;not null" json:"coin_id"`
	Coin         Coin      `json:"coin"`
	SimulationID *string   `gorm:"type:uuid;uniqueIndex:idx_watchlist_key" json:"simulation_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (w *WatchlistItem) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
