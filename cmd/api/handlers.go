package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio-holdings/internal/database"
	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/holdings"
	"portfolio-holdings/internal/lock"
	"portfolio-holdings/internal/models"
)

// HoldingReader reads materialized holdings.
type HoldingReader interface {
	List(ctx context.Context, accountID uint, on date.Date) ([]models.Holding, error)
	DailyBalances(ctx context.Context, accountID uint) ([]models.Balance, error)
}

type AccountReader interface {
	Get(ctx context.Context, id uint) (models.Account, error)
}

type Materializer interface {
	Materialize(ctx context.Context, accountID uint) (holdings.Result, error)
}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log          *zap.Logger
	accounts     AccountReader
	holdings     HoldingReader
	materializer Materializer
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, accounts AccountReader, holdings HoldingReader, materializer Materializer) *APIHandler {
	return &APIHandler{log: log, accounts: accounts, holdings: holdings, materializer: materializer}
}

// NewRouter registers the API routes.
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.HealthHandler)

	api := router.Group("/api/accounts/:id")
	{
		api.GET("/holdings", h.HoldingsHandler)
		api.GET("/balances", h.BalancesHandler)
		api.POST("/materialize", h.MaterializeHandler)
	}
	return router
}

func (h *APIHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HoldingsHandler returns the materialized holdings of an account, all days
// or only the one given by ?date=YYYY-MM-DD.
func (h *APIHandler) HoldingsHandler(c *gin.Context) {
	accountID, ok := h.account(c)
	if !ok {
		return
	}

	var on date.Date
	if raw := c.Query("date"); raw != "" {
		d, err := date.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted as YYYY-MM-DD"})
			return
		}
		on = d
	}

	rows, err := h.holdings.List(c.Request.Context(), accountID, on)
	if err != nil {
		h.log.Error("Failed to get holdings from database", zap.Uint("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get holdings"})
		return
	}
	if rows == nil {
		rows = []models.Holding{}
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "holdings": rows})
}

// BalancesHandler returns the daily total value of an account.
func (h *APIHandler) BalancesHandler(c *gin.Context) {
	accountID, ok := h.account(c)
	if !ok {
		return
	}

	balances, err := h.holdings.DailyBalances(c.Request.Context(), accountID)
	if err != nil {
		h.log.Error("Failed to compute balances", zap.Uint("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute balances"})
		return
	}
	if balances == nil {
		balances = []models.Balance{}
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balances": balances})
}

// MaterializeHandler recomputes an account's holdings synchronously.
func (h *APIHandler) MaterializeHandler(c *gin.Context) {
	accountID, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.materializer.Materialize(c.Request.Context(), accountID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, lock.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "a materialization of this account is already running"})
	case err != nil:
		h.log.Error("Materialization failed", zap.Uint("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Materialization failed"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// account parses the id path parameter and checks the account exists,
// writing the error response itself when it does not.
func (h *APIHandler) account(c *gin.Context) (uint, bool) {
	id, ok := parseID(c)
	if !ok {
		return 0, false
	}
	if _, err := h.accounts.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return 0, false
		}
		h.log.Error("Failed to load account", zap.Uint("account_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return 0, false
	}
	return id, true
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return uint(id), true
}
