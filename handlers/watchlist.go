package handlers

import (
	"github.com/gin-gonic/gin"

	"cryptofolio/config"
	"cryptofolio/middleware"
	"cryptofolio/models"
)

func (a *API) ListWatchlist(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	q := config.DB.Preload("Coin").Where("user_id = ?", userID)
	if sim := c.Query("simulation_id"); sim != "" {
		q = q.Where("simulation_id = ?", sim)
	} else {
		q = q.Where("simulation_id IS NULL")
	}

	var items []models.WatchlistItem
	if err := q.Order("created_at DESC").Find(&items).Error; err != nil {
		internalError(c, "error loading watchlist")
		return
	}
	ok(c, items)
}

type watchlistInput struct {
	CoinID       string  `json:"coin_id" binding:"required"`
	SimulationID *string `json:"simulation_id"`
}

func (a *API) AddWatchlistItem(c *gin.Context) {
	var input watchlistInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := c.GetString(middleware.ContextUserID)

	item, err := a.engine.AddWatchlistItem(c.Request.Context(), userID, input.CoinID, input.SimulationID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	created(c, item)
}

func (a *API) RemoveWatchlistItem(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	res := config.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).Delete(&models.WatchlistItem{})
	if res.Error != nil {
		internalError(c, "error removing watchlist item")
		return
	}
	if res.RowsAffected == 0 {
		notFound(c, "watchlist item not found")
		return
	}
	ok(c, gin.H{"message": "removed"})
}
