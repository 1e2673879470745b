package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptofolio/ledger"
	"cryptofolio/middleware"
)

type transactionInput struct {
	CoinID       string           `json:"coin_id" binding:"required"`
	Type         string           `json:"type" binding:"required"`
	Quantity     decimal.Decimal  `json:"quantity" binding:"required"`
	Price        *decimal.Decimal `json:"price"`
	Currency     string           `json:"currency"`
	Time         *time.Time       `json:"time"`
	Fee          decimal.Decimal  `json:"fee"`
	SimulationID *string          `json:"simulation_id"`
}

// buildEntryParams resolves a missing price: historical when the entry carries
// a time, live otherwise.
func (a *API) buildEntryParams(c *gin.Context, userID string, input transactionInput) (ledger.EntryParams, bool) {
	cur := a.requestCurrency(userID, input.Currency)

	var price decimal.Decimal
	if input.Price != nil {
		price = *input.Price
	} else {
		resolved, found := a.resolver.Resolve(c.Request.Context(), input.CoinID, cur, input.Time)
		if !found {
			badRequest(c, "no price could be resolved; supply a price")
			return ledger.EntryParams{}, false
		}
		price = resolved
	}

	return ledger.EntryParams{
		UserID:       userID,
		SimulationID: input.SimulationID,
		CoinID:       input.CoinID,
		Type:         input.Type,
		Quantity:     input.Quantity,
		Price:        price,
		Currency:     cur,
		Time:         input.Time,
		Fee:          input.Fee,
	}, true
}

func (a *API) CreateTransaction(c *gin.Context) {
	var input transactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := c.GetString(middleware.ContextUserID)

	params, built := a.buildEntryParams(c, userID, input)
	if !built {
		return
	}
	entry, err := a.engine.CreateEntry(c.Request.Context(), params)
	if err != nil {
		ledgerError(c, err)
		return
	}
	created(c, entry)
}

func (a *API) ListTransactions(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	page := queryInt(c, "page", 1)

	var simulationID *string
	if sim := c.Query("simulation_id"); sim != "" {
		simulationID = &sim
	}

	entries, total, err := a.engine.ListTransactions(c.Request.Context(), userID, simulationID, page, ledger.PageSize)
	if err != nil {
		internalError(c, "error loading transactions")
		return
	}

	totalPages := (total + ledger.PageSize - 1) / ledger.PageSize
	ok(c, gin.H{
		"transactions": entries,
		"total":        total,
		"page":         page,
		"total_pages":  totalPages,
	})
}

func (a *API) DeleteTransaction(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if err := a.engine.DeleteTransaction(c.Request.Context(), c.Param("id"), userID); err != nil {
		ledgerError(c, err)
		return
	}
	ok(c, gin.H{"message": "transaction deleted"})
}
