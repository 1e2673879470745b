// Package pricing decides which price a transaction uses: historical at a
// requested instant first, then live, else nothing.
package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Precision is the fractional-digit precision every persisted price is
// quantised to, round half-up.
const Precision = 10

// PriceSource is the slice of the market data client the resolver needs.
type PriceSource interface {
	CurrentPrices(ctx context.Context, coinIDs []string, currency string) map[string]map[string]float64
	PriceAtTimestamp(ctx context.Context, coinID, currency string, at time.Time) (float64, bool)
}

type Resolver struct {
	source PriceSource
	log    zerolog.Logger
}

func NewResolver(source PriceSource, log zerolog.Logger) *Resolver {
	return &Resolver{source: source, log: log.With().Str("component", "pricing").Logger()}
}

// Resolve returns the price to use for coinID in currency. When at is set the
// historical lookup runs first; the live price is the fallback either way.
// The second return is false when no price could be resolved, in which case
// the caller must require an explicit price or reject the operation.
func (r *Resolver) Resolve(ctx context.Context, coinID, currency string, at *time.Time) (decimal.Decimal, bool) {
	currency = strings.ToLower(currency)

	if at != nil {
		if price, ok := r.source.PriceAtTimestamp(ctx, coinID, currency, *at); ok {
			return Quantize(decimal.NewFromFloat(price)), true
		}
		r.log.Debug().Str("coin", coinID).Time("at", *at).Msg("no historical price, falling back to live")
	}

	prices := r.source.CurrentPrices(ctx, []string{coinID}, currency)
	if prices != nil {
		if byCurrency, ok := prices[coinID]; ok {
			if price, ok := byCurrency[currency]; ok {
				return Quantize(decimal.NewFromFloat(price)), true
			}
		}
	}
	return decimal.Decimal{}, false
}

// Quantize rounds a price to the persisted precision. Prices are positive, so
// Round's half-away-from-zero behaviour is half-up here.
func Quantize(price decimal.Decimal) decimal.Decimal {
	return price.Round(Precision)
}
