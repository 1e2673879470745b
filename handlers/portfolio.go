package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/currency"
	"cryptofolio/middleware"
	"cryptofolio/models"
)

// requestCurrency resolves the currency a request trades in: the one it
// names, else the preferred currency of the user the entry is for.
func (a *API) requestCurrency(userID, requested string) string {
	if strings.TrimSpace(requested) != "" {
		return currency.Normalise(requested)
	}
	var user models.User
	err := config.DB.Select("preferred_currency").First(&user, "id = ?", userID).Error
	if err != nil {
		return currency.Settlement
	}
	return currency.Normalise(user.PreferredCurrency)
}

func (a *API) Portfolio(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	summary, err := a.aggregator.PortfolioSummary(c.Request.Context(), userID)
	if err != nil {
		internalError(c, "error loading portfolio")
		return
	}
	ok(c, summary)
}

type tradeInput struct {
	CoinID   string           `json:"coin_id" binding:"required"`
	Quantity decimal.Decimal  `json:"quantity" binding:"required"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
}

// resolveTradePrice fills in a live price when the request omits one.
func (a *API) resolveTradePrice(c *gin.Context, input *tradeInput) (decimal.Decimal, string, bool) {
	cur := a.requestCurrency(c.GetString(middleware.ContextUserID), input.Currency)
	if input.Price != nil {
		return *input.Price, cur, true
	}
	price, found := a.resolver.Resolve(c.Request.Context(), input.CoinID, cur, nil)
	if !found {
		badRequest(c, "no live price available; supply a price")
		return decimal.Decimal{}, cur, false
	}
	return price, cur, true
}

func (a *API) Buy(c *gin.Context) {
	var input tradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, cur, found := a.resolveTradePrice(c, &input)
	if !found {
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	if err := a.engine.Buy(c.Request.Context(), userID, nil, input.CoinID, input.Quantity, price, cur); err != nil {
		ledgerError(c, err)
		return
	}

	summary, err := a.aggregator.PortfolioSummary(c.Request.Context(), userID)
	if err != nil {
		internalError(c, "error loading portfolio")
		return
	}
	created(c, summary)
}

func (a *API) Sell(c *gin.Context) {
	var input tradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, cur, found := a.resolveTradePrice(c, &input)
	if !found {
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	if err := a.engine.Sell(c.Request.Context(), userID, nil, input.CoinID, input.Quantity, price, cur); err != nil {
		ledgerError(c, err)
		return
	}

	summary, err := a.aggregator.PortfolioSummary(c.Request.Context(), userID)
	if err != nil {
		internalError(c, "error loading portfolio")
		return
	}
	ok(c, summary)
}

func (a *API) ClearPortfolio(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if err := a.engine.ClearPortfolio(c.Request.Context(), userID); err != nil {
		internalError(c, "error clearing portfolio")
		return
	}
	ok(c, gin.H{"message": "portfolio cleared"})
}
