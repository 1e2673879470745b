package handlers

import (
	"github.com/gin-gonic/gin"

	"cryptofolio/config"
	"cryptofolio/ledger"
	"cryptofolio/models"
)

func (a *API) AdminMetrics(c *gin.Context) {
	metrics, err := a.aggregator.AdminMetrics(c.Request.Context())
	if err != nil {
		internalError(c, "error computing metrics")
		return
	}
	ok(c, metrics)
}

// adminPage clamps paging to the administrative cap.
func adminPage(c *gin.Context) (page, pageSize int) {
	page = queryInt(c, "page", 1)
	pageSize = queryInt(c, "page_size", ledger.AdminPageSize)
	if pageSize > ledger.AdminPageSize {
		pageSize = ledger.AdminPageSize
	}
	return page, pageSize
}

func (a *API) AdminListUsers(c *gin.Context) {
	page, pageSize := adminPage(c)

	var total int64
	if err := config.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		internalError(c, "error counting users")
		return
	}
	var users []models.User
	err := config.DB.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&users).Error
	if err != nil {
		internalError(c, "error loading users")
		return
	}
	ok(c, gin.H{"users": users, "total": total, "page": page})
}

type adminUserInput struct {
	IsActive *bool `json:"is_active"`
	IsStaff  *bool `json:"is_staff"`
}

func (a *API) AdminUpdateUser(c *gin.Context) {
	var input adminUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	var user models.User
	if err := config.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		notFound(c, "user not found")
		return
	}

	updates := map[string]interface{}{}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.IsStaff != nil {
		updates["is_staff"] = *input.IsStaff
	}
	if len(updates) > 0 {
		if err := config.DB.Model(&user).Updates(updates).Error; err != nil {
			internalError(c, "error updating user")
			return
		}
	}
	ok(c, user)
}

func (a *API) AdminListTransactions(c *gin.Context) {
	page, pageSize := adminPage(c)

	q := config.DB.Model(&models.Transaction{})
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if coinID := c.Query("coin_id"); coinID != "" {
		q = q.Where("coin_id = ?", coinID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		internalError(c, "error counting transactions")
		return
	}
	var entries []models.Transaction
	err := q.Preload("Coin").Order("time DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&entries).Error
	if err != nil {
		internalError(c, "error loading transactions")
		return
	}
	ok(c, gin.H{"transactions": entries, "total": total, "page": page})
}

type adminTransactionInput struct {
	UserID string `json:"user_id" binding:"required"`
	transactionInput
}

// AdminCreateTransaction appends a ledger entry on behalf of any user.
func (a *API) AdminCreateTransaction(c *gin.Context) {
	var input adminTransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	var user models.User
	if err := config.DB.First(&user, "id = ?", input.UserID).Error; err != nil {
		notFound(c, "user not found")
		return
	}

	params, built := a.buildEntryParams(c, user.ID, input.transactionInput)
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

func (a *API) AdminDeleteTransaction(c *gin.Context) {
	res := config.DB.Where("id = ?", c.Param("id")).Delete(&models.Transaction{})
	if res.Error != nil {
		internalError(c, "error deleting transaction")
		return
	}
	if res.RowsAffected == 0 {
		notFound(c, "transaction not found")
		return
	}
	ok(c, gin.H{"message": "transaction deleted"})
}

func (a *API) AdminListSimulations(c *gin.Context) {
	page, pageSize := adminPage(c)

	var sims []models.Simulation
	err := config.DB.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&sims).Error
	if err != nil {
		internalError(c, "error loading simulations")
		return
	}
	ok(c, sims)
}

func (a *API) AdminListHoldings(c *gin.Context) {
	page, pageSize := adminPage(c)

	q := config.DB.Model(&models.Holding{})
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var holdings []models.Holding
	err := q.Preload("Coin").Order("updated_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&holdings).Error
	if err != nil {
		internalError(c, "error loading holdings")
		return
	}
	ok(c, holdings)
}

func (a *API) AdminListCurrentPrices(c *gin.Context) {
	var rows []models.CurrentPrice
	if err := config.DB.Order("last_updated DESC").Limit(ledger.AdminPageSize).Find(&rows).Error; err != nil {
		internalError(c, "error loading current prices")
		return
	}
	ok(c, rows)
}

func (a *API) AdminListPriceCache(c *gin.Context) {
	page, pageSize := adminPage(c)

	q := config.DB.Model(&models.PriceCache{})
	if coinID := c.Query("coin_id"); coinID != "" {
		q = q.Where("coin_id = ?", coinID)
	}
	var rows []models.PriceCache
	err := q.Order("price_date DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&rows).Error
	if err != nil {
		internalError(c, "error loading price cache")
		return
	}
	ok(c, rows)
}

func (a *API) AdminListWatchlist(c *gin.Context) {
	page, pageSize := adminPage(c)

	q := config.DB.Model(&models.WatchlistItem{})
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var items []models.WatchlistItem
	err := q.Preload("Coin").Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&items).Error
	if err != nil {
		internalError(c, "error loading watchlist")
		return
	}
	ok(c, items)
}
