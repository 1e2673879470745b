// Package valuation turns ledgers into numbers: portfolio views priced live,
// simulation summaries derived purely from the transaction history, and the
// platform-wide metrics the admin surface exposes.
package valuation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptofolio/currency"
	"cryptofolio/models"
)

// PriceSource is the slice of the market data client valuation needs.
type PriceSource interface {
	CurrentPrices(ctx context.Context, coinIDs []string, currency string) map[string]map[string]float64
}

type Aggregator struct {
	db        *gorm.DB
	source    PriceSource
	converter *currency.Converter
	log       zerolog.Logger
}

func NewAggregator(db *gorm.DB, source PriceSource, converter *currency.Converter, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		db:        db,
		source:    source,
		converter: converter,
		log:       log.With().Str("component", "valuation").Logger(),
	}
}

// preferredCurrency is the display currency summaries for userID are priced
// in. Falls back to the settlement currency when the user row is missing.
func (a *Aggregator) preferredCurrency(ctx context.Context, userID string) string {
	var user models.User
	err := a.db.WithContext(ctx).Select("preferred_currency").First(&user, "id = ?", userID).Error
	if err != nil {
		return currency.Settlement
	}
	return currency.Normalise(user.PreferredCurrency)
}

// Invested is the net amount put into a set of transactions: buys add
// price*quantity, sells subtract it. Rounded to cents.
func Invested(entries []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		amount := e.Price.Mul(e.Quantity)
		switch e.Type {
		case models.TxBuy:
			total = total.Add(amount)
		case models.TxSell:
			total = total.Sub(amount)
		}
	}
	return total.Round(2)
}

// Units nets buys against sells per coin. A coin oversold by its history
// floors at zero rather than going negative. Four decimal places.
func Units(entries []models.Transaction) map[string]decimal.Decimal {
	units := make(map[string]decimal.Decimal)
	for _, e := range entries {
		switch e.Type {
		case models.TxBuy:
			units[e.CoinID] = units[e.CoinID].Add(e.Quantity)
		case models.TxSell:
			units[e.CoinID] = units[e.CoinID].Sub(e.Quantity)
		}
	}
	for coinID, qty := range units {
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		units[coinID] = qty.Round(4)
	}
	return units
}

// CurrentValue prices net units with the supplied per-coin prices. Coins with
// no price contribute nothing. Rounded to cents.
func CurrentValue(units map[string]decimal.Decimal, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for coinID, qty := range units {
		price, ok := prices[coinID]
		if !ok {
			continue
		}
		total = total.Add(qty.Mul(price))
	}
	return total.Round(2)
}

// HoldingView is a holding enriched with its live valuation.
type HoldingView struct {
	models.Holding
	Coin              models.Coin     `json:"coin"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
}

// PortfolioSummary is a user's non-simulation positions priced live in their
// preferred currency, plus the realised profit accumulated by past sells.
type PortfolioSummary struct {
	Holdings      []HoldingView   `json:"holdings"`
	RealisedTotal decimal.Decimal `json:"realised_total"`
	Currency      string          `json:"currency"`
}

func (a *Aggregator) PortfolioSummary(ctx context.Context, userID string) (*PortfolioSummary, error) {
	var holdings []models.Holding
	err := a.db.WithContext(ctx).Preload("Coin").
		Where("user_id = ? AND simulation_id IS NULL", userID).
		Order("updated_at DESC").
		Find(&holdings).Error
	if err != nil {
		return nil, err
	}

	cur := a.preferredCurrency(ctx, userID)
	coinIDs := make([]string, 0, len(holdings))
	for _, h := range holdings {
		coinIDs = append(coinIDs, h.CoinID)
	}
	prices := a.livePrices(ctx, coinIDs, cur)

	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		price := prices[h.CoinID]
		value := h.Quantity.Mul(price).Round(2)
		cost := h.Quantity.Mul(a.converter.Convert(h.AvgPrice, currency.Settlement, cur))
		pl := value.Sub(cost).Round(2)
		plPct := decimal.Zero
		if cost.IsPositive() {
			plPct = pl.Div(cost).Mul(decimal.NewFromInt(100)).Round(2)
		}
		views = append(views, HoldingView{
			Holding:           h,
			Coin:              h.Coin,
			CurrentPrice:      price,
			CurrentValue:      value,
			ProfitLoss:        pl,
			ProfitLossPercent: plPct,
		})
	}

	realised, err := a.realisedTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	realised = a.converter.Convert(realised, currency.Settlement, cur).Round(2)
	return &PortfolioSummary{Holdings: views, RealisedTotal: realised, Currency: cur}, nil
}

func (a *Aggregator) realisedTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	var entries []models.Transaction
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND simulation_id IS NULL AND type = ?", userID, models.TxSell).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.RealisedProfit)
	}
	return total.Round(2), nil
}

// SimulationSummary is computed entirely from the simulation's transactions;
// simulations never materialize holdings.
type SimulationSummary struct {
	SimulationID     string                     `json:"simulation_id"`
	Invested         decimal.Decimal            `json:"invested"`
	Units            map[string]decimal.Decimal `json:"units"`
	CurrentValue     decimal.Decimal            `json:"current_value"`
	Currency         string                     `json:"currency"`
	TransactionCount int                        `json:"transaction_count"`
}

func (a *Aggregator) SimulationSummary(ctx context.Context, sim *models.Simulation) (*SimulationSummary, error) {
	var entries []models.Transaction
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND simulation_id = ?", sim.UserID, sim.ID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	units := Units(entries)
	coinIDs := make([]string, 0, len(units))
	for coinID := range units {
		coinIDs = append(coinIDs, coinID)
	}
	cur := a.preferredCurrency(ctx, sim.UserID)
	prices := a.livePrices(ctx, coinIDs, cur)

	return &SimulationSummary{
		SimulationID:     sim.ID,
		Invested:         Invested(entries),
		Units:            units,
		CurrentValue:     CurrentValue(units, prices),
		Currency:         cur,
		TransactionCount: len(entries),
	}, nil
}

// livePrices batches one upstream lookup in cur for all coins and falls back
// to the last stored settlement-currency coin price, converted into cur, for
// anything the lookup missed.
func (a *Aggregator) livePrices(ctx context.Context, coinIDs []string, cur string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(coinIDs))
	if len(coinIDs) == 0 {
		return prices
	}

	vs := strings.ToLower(cur)
	live := a.source.CurrentPrices(ctx, coinIDs, vs)
	missing := make([]string, 0)
	for _, coinID := range coinIDs {
		if byCurrency, ok := live[coinID]; ok {
			if price, ok := byCurrency[vs]; ok {
				prices[coinID] = decimal.NewFromFloat(price)
				continue
			}
		}
		missing = append(missing, coinID)
	}

	if len(missing) > 0 {
		var coins []models.Coin
		if err := a.db.WithContext(ctx).Where("id IN ?", missing).Find(&coins).Error; err != nil {
			a.log.Warn().Err(err).Msg("static price fallback failed")
			return prices
		}
		for _, c := range coins {
			if c.CurrentPrice > 0 {
				prices[c.ID] = a.converter.Convert(decimal.NewFromFloat(c.CurrentPrice), currency.Settlement, cur)
			}
		}
	}
	return prices
}

// Metrics is the platform-wide snapshot served to staff.
type Metrics struct {
	TotalUsers        int64           `json:"total_users"`
	ActiveUsers       int64           `json:"active_users"`
	TotalTransactions int64           `json:"total_transactions"`
	TotalSimulations  int64           `json:"total_simulations"`
	TotalCoins        int64           `json:"total_coins"`
	TotalVolume       decimal.Decimal `json:"total_volume"`
}

func (a *Aggregator) AdminMetrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	db := a.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&m.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&m.ActiveUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Transaction{}).Count(&m.TotalTransactions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Simulation{}).Count(&m.TotalSimulations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Coin{}).Count(&m.TotalCoins).Error; err != nil {
		return nil, err
	}

	var entries []models.Transaction
	if err := db.Find(&entries).Error; err != nil {
		return nil, err
	}
	volume := decimal.Zero
	for _, e := range entries {
		volume = volume.Add(e.Price.Mul(e.Quantity))
	}
	m.TotalVolume = volume.Round(2)
	return &m, nil
}
