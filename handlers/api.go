// Package handlers exposes the HTTP surface. Handlers stay thin: bind,
// delegate to the domain packages, translate outcomes into the response
// envelope.
package handlers

import (
	"github.com/rs/zerolog"

	"cryptofolio/ledger"
	"cryptofolio/marketdata"
	"cryptofolio/pricing"
	"cryptofolio/valuation"
)

type API struct {
	market     *marketdata.Client
	resolver   *pricing.Resolver
	engine     *ledger.Engine
	aggregator *valuation.Aggregator
	log        zerolog.Logger
}

func NewAPI(market *marketdata.Client, resolver *pricing.Resolver, engine *ledger.Engine, aggregator *valuation.Aggregator, log zerolog.Logger) *API {
	return &API{
		market:     market,
		resolver:   resolver,
		engine:     engine,
		aggregator: aggregator,
		log:        log.With().Str("component", "http").Logger(),
	}
}
