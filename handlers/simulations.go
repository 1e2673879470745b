package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cryptofolio/config"
	"cryptofolio/middleware"
	"cryptofolio/models"
)

type simulationInput struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date" binding:"required"`
	EndDate     *time.Time `json:"end_date"`
}

func (a *API) CreateSimulation(c *gin.Context) {
	var input simulationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := c.GetString(middleware.ContextUserID)

	sim, err := a.engine.CreateSimulation(c.Request.Context(), userID, input.Name, input.Description, input.StartDate, input.EndDate)
	if err != nil {
		ledgerError(c, err)
		return
	}
	created(c, sim)
}

func (a *API) ListSimulations(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var sims []models.Simulation
	q := config.DB.Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Find(&sims).Error; err != nil {
		internalError(c, "error loading simulations")
		return
	}
	ok(c, sims)
}

// ownedSimulation loads a simulation scoped to the caller, replying 404 when
// it is missing or belongs to someone else.
func (a *API) ownedSimulation(c *gin.Context) (*models.Simulation, bool) {
	userID := c.GetString(middleware.ContextUserID)

	var sim models.Simulation
	err := config.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&sim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "simulation not found")
		} else {
			internalError(c, "error loading simulation")
		}
		return nil, false
	}
	return &sim, true
}

func (a *API) GetSimulation(c *gin.Context) {
	sim, found := a.ownedSimulation(c)
	if !found {
		return
	}
	ok(c, sim)
}

type simulationUpdateInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	EndDate     *time.Time `json:"end_date"`
	Status      *string    `json:"status"`
}

func (a *API) UpdateSimulation(c *gin.Context) {
	var input simulationUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	sim, found := a.ownedSimulation(c)
	if !found {
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.EndDate != nil {
		updates["end_date"] = input.EndDate
	}
	if input.Status != nil {
		if !models.ValidSimulationStatus(*input.Status) {
			badRequest(c, "invalid status")
			return
		}
		updates["status"] = *input.Status
	}
	if len(updates) > 0 {
		if err := config.DB.Model(sim).Updates(updates).Error; err != nil {
			internalError(c, "error updating simulation")
			return
		}
	}
	ok(c, sim)
}

// DeleteSimulation removes the simulation together with its scoped ledger.
func (a *API) DeleteSimulation(c *gin.Context) {
	sim, found := a.ownedSimulation(c)
	if !found {
		return
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("simulation_id = ?", sim.ID).Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", sim.ID).Delete(&models.Holding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("simulation_id = ?", sim.ID).Delete(&models.WatchlistItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(sim).Error
	})
	if err != nil {
		internalError(c, "error deleting simulation")
		return
	}
	ok(c, gin.H{"message": "simulation deleted"})
}

func (a *API) SimulationSummary(c *gin.Context) {
	sim, found := a.ownedSimulation(c)
	if !found {
		return
	}
	summary, err := a.aggregator.SimulationSummary(c.Request.Context(), sim)
	if err != nil {
		internalError(c, "error computing summary")
		return
	}
	ok(c, summary)
}

// CreateSimulationTransaction appends a ledger entry scoped to the
// simulation. Holdings are untouched; summaries derive from the entries.
func (a *API) CreateSimulationTransaction(c *gin.Context) {
	sim, found := a.ownedSimulation(c)
	if !found {
		return
	}
	if sim.Status != models.SimulationActive {
		badRequest(c, "simulation is not active")
		return
	}

	var input transactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	input.SimulationID = &sim.ID

	params, built := a.buildEntryParams(c, sim.UserID, input)
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
