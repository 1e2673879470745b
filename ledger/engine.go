// Package ledger owns holdings and the transaction history. Buys and sells
// on the same (user, simulation, coin) key are mutually exclusive; price
// resolution must happen before calling in, so no network waits ever hold a
// holding lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptofolio/currency"
	"cryptofolio/models"
	"cryptofolio/pricing"
)

// PageSize is the user-facing transaction page size.
const PageSize = 20

// AdminPageSize caps administrative listings.
const AdminPageSize = 200

type Engine struct {
	db        *gorm.DB
	locks     *keyedLocks
	converter *currency.Converter
	log       zerolog.Logger
}

func NewEngine(db *gorm.DB, converter *currency.Converter, log zerolog.Logger) *Engine {
	return &Engine{
		db:        db,
		locks:     newKeyedLocks(),
		converter: converter,
		log:       log.With().Str("component", "ledger").Logger(),
	}
}

// weightedAverage recomputes a position after a buy. The average is quantised
// to the persisted price precision.
func weightedAverage(oldQty, oldAvg, qty, price decimal.Decimal) (newQty, newAvg decimal.Decimal) {
	newQty = oldQty.Add(qty)
	if newQty.IsZero() {
		return newQty, decimal.Zero
	}
	totalCost := oldQty.Mul(oldAvg).Add(qty.Mul(price))
	return newQty, pricing.Quantize(totalCost.Div(newQty))
}

func scopeQuery(tx *gorm.DB, userID string, simulationID *string, coinID string) *gorm.DB {
	q := tx.Where("user_id = ? AND coin_id = ?", userID, coinID)
	if simulationID == nil {
		return q.Where("simulation_id IS NULL")
	}
	return q.Where("simulation_id = ?", *simulationID)
}

// Buy creates or grows a holding at the weighted-average cost and appends an
// immutable BUY transaction. The price is converted to the settlement
// currency before any state changes.
func (e *Engine) Buy(ctx context.Context, userID string, simulationID *string, coinID string, quantity, price decimal.Decimal, cur string) error {
	if !quantity.IsPositive() || !price.IsPositive() {
		return fmt.Errorf("%w: quantity and price must be positive", ErrValidation)
	}
	priceUSD := pricing.Quantize(e.converter.ToSettlement(price, cur))

	m := e.locks.lock(holdingKey(userID, simulationID, coinID))
	defer m.Unlock()

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCoin(tx, coinID); err != nil {
			return err
		}

		var holding models.Holding
		err := scopeQuery(tx, userID, simulationID, coinID).First(&holding).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			holding = models.Holding{
				UserID:           userID,
				SimulationID:     simulationID,
				CoinID:           coinID,
				Quantity:         quantity,
				AvgPrice:         priceUSD,
				AvgPriceCurrency: currency.Settlement,
			}
			if err := tx.Create(&holding).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			newQty, newAvg := weightedAverage(holding.Quantity, holding.AvgPrice, quantity, priceUSD)
			if err := tx.Model(&holding).Updates(map[string]interface{}{
				"quantity":  newQty,
				"avg_price": newAvg,
			}).Error; err != nil {
				return err
			}
		}

		entry := models.Transaction{
			UserID:                 userID,
			SimulationID:           simulationID,
			CoinID:                 coinID,
			Type:                   models.TxBuy,
			Quantity:               quantity,
			Price:                  priceUSD,
			PriceCurrency:          currency.Settlement,
			Fee:                    decimal.Zero,
			CostBasis:              quantity.Mul(priceUSD),
			RealisedProfit:         decimal.Zero,
			RealisedProfitCurrency: currency.Settlement,
		}
		return tx.Create(&entry).Error
	})
}

// Sell shrinks or removes a holding and appends a SELL transaction carrying
// the realised profit, computed against the average cost before mutation.
// The average cost itself is never changed by a sell.
func (e *Engine) Sell(ctx context.Context, userID string, simulationID *string, coinID string, quantity, price decimal.Decimal, cur string) error {
	if !quantity.IsPositive() || !price.IsPositive() {
		return fmt.Errorf("%w: quantity and price must be positive", ErrValidation)
	}
	priceUSD := pricing.Quantize(e.converter.ToSettlement(price, cur))

	m := e.locks.lock(holdingKey(userID, simulationID, coinID))
	defer m.Unlock()

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holding models.Holding
		if err := scopeQuery(tx, userID, simulationID, coinID).First(&holding).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHoldingNotFound
			}
			return err
		}
		if holding.Quantity.LessThan(quantity) {
			return ErrInsufficientQuantity
		}

		realised := quantity.Mul(priceUSD.Sub(holding.AvgPrice))
		costBasis := quantity.Mul(holding.AvgPrice)

		if holding.Quantity.Equal(quantity) {
			if err := tx.Delete(&holding).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&holding).Update("quantity", holding.Quantity.Sub(quantity)).Error; err != nil {
				return err
			}
		}

		entry := models.Transaction{
			UserID:                 userID,
			SimulationID:           simulationID,
			CoinID:                 coinID,
			Type:                   models.TxSell,
			Quantity:               quantity,
			Price:                  priceUSD,
			PriceCurrency:          currency.Settlement,
			Fee:                    decimal.Zero,
			CostBasis:              costBasis,
			RealisedProfit:         realised,
			RealisedProfitCurrency: currency.Settlement,
		}
		return tx.Create(&entry).Error
	})
}

// EntryParams describes a raw ledger entry. This path records history without
// touching holdings; simulation summaries are computed from transactions.
type EntryParams struct {
	UserID       string
	SimulationID *string
	CoinID       string
	Type         string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Currency     string
	Time         *time.Time
	Fee          decimal.Decimal
}

// CreateEntry appends an immutable transaction. When a historical time is
// requested, the timestamp is back-filled immediately after creation. That is
// the only mutation a transaction ever sees.
func (e *Engine) CreateEntry(ctx context.Context, p EntryParams) (*models.Transaction, error) {
	if p.Type != models.TxBuy && p.Type != models.TxSell {
		return nil, fmt.Errorf("%w: invalid type %q", ErrValidation, p.Type)
	}
	if !p.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	if !p.Price.IsPositive() {
		return nil, fmt.Errorf("%w: no price resolved and none supplied", ErrPriceUnavailable)
	}
	if p.CoinID == "" {
		return nil, fmt.Errorf("%w: coin_id is required", ErrValidation)
	}

	cur := currency.Normalise(p.Currency)
	entry := models.Transaction{
		UserID:                 p.UserID,
		SimulationID:           p.SimulationID,
		CoinID:                 p.CoinID,
		Type:                   p.Type,
		Quantity:               p.Quantity,
		Price:                  pricing.Quantize(p.Price),
		PriceCurrency:          cur,
		Fee:                    p.Fee,
		CostBasis:              p.Quantity.Mul(pricing.Quantize(p.Price)),
		RealisedProfit:         decimal.Zero,
		RealisedProfitCurrency: cur,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCoin(tx, p.CoinID); err != nil {
			return err
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if p.Time != nil {
			entry.Time = p.Time.UTC()
			return tx.Model(&models.Transaction{}).Where("id = ?", entry.ID).
				Update("time", entry.Time).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTransactions returns one newest-first page plus the total row count.
func (e *Engine) ListTransactions(ctx context.Context, userID string, simulationID *string, page, pageSize int) ([]models.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	q := e.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if simulationID != nil {
		q = q.Where("simulation_id = ?", *simulationID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.Transaction
	err := q.Preload("Coin").
		Order("time DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&entries).Error
	return entries, total, err
}

// DeleteTransaction hard-deletes an entry owned by userID. Holdings are not
// recomputed; the ledger is write-once and holdings are a separate
// materialized view.
func (e *Engine) DeleteTransaction(ctx context.Context, id, userID string) error {
	res := e.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Transaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPortfolio removes all non-simulation holdings and transactions for a
// user.
func (e *Engine) ClearPortfolio(ctx context.Context, userID string) error {
	e.log.Info().Str("user", userID).Msg("clearing portfolio")
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND simulation_id IS NULL", userID).Delete(&models.Holding{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND simulation_id IS NULL", userID).Delete(&models.Transaction{}).Error
	})
}

// CreateSimulation validates and creates a sandboxed ledger scope. Names are
// unique per user case-insensitively and the start date may not be in the
// future.
func (e *Engine) CreateSimulation(ctx context.Context, userID, name, description string, startDate time.Time, endDate *time.Time) (*models.Simulation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if startDate.UTC().Truncate(24 * time.Hour).After(today) {
		return nil, fmt.Errorf("%w: start date cannot be in the future", ErrValidation)
	}

	var count int64
	if err := e.db.WithContext(ctx).Model(&models.Simulation{}).
		Where("user_id = ? AND LOWER(name) = LOWER(?)", userID, name).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: simulation with this name already exists", ErrDuplicate)
	}

	sim := models.Simulation{
		UserID:      userID,
		Name:        name,
		Description: description,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      models.SimulationActive,
	}
	if err := e.db.WithContext(ctx).Create(&sim).Error; err != nil {
		return nil, err
	}
	e.log.Info().Str("user", userID).Str("simulation", sim.ID).Msg("simulation created")
	return &sim, nil
}

// AddWatchlistItem creates a (user, coin, simulation) watchlist marker,
// rejecting duplicates with a conflict outcome rather than a second row.
func (e *Engine) AddWatchlistItem(ctx context.Context, userID, coinID string, simulationID *string) (*models.WatchlistItem, error) {
	if coinID == "" {
		return nil, fmt.Errorf("%w: coin_id is required", ErrValidation)
	}

	var item models.WatchlistItem
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		q := tx.Model(&models.WatchlistItem{}).Where("user_id = ? AND coin_id = ?", userID, coinID)
		if simulationID == nil {
			q = q.Where("simulation_id IS NULL")
		} else {
			q = q.Where("simulation_id = ?", *simulationID)
		}
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		if err := ensureCoin(tx, coinID); err != nil {
			return err
		}
		item = models.WatchlistItem{UserID: userID, CoinID: coinID, SimulationID: simulationID}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ensureCoin lazily creates a minimal coin row so foreign keys hold. The
// periodic refresh (or a later detail fetch) fills in real metadata.
func ensureCoin(tx *gorm.DB, coinID string) error {
	coin := models.Coin{
		ID:     coinID,
		Symbol: placeholderSymbol(coinID),
		Name:   placeholderName(coinID),
	}
	return tx.Where(models.Coin{ID: coinID}).FirstOrCreate(&coin).Error
}

func placeholderSymbol(coinID string) string {
	s := strings.ToUpper(coinID)
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

func placeholderName(coinID string) string {
	words := strings.Split(strings.ReplaceAll(coinID, "-", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
