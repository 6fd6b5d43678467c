package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// CoinHandler serves the wallet: history, stats, spends, and the operator
// adjustment and audit routes.
type CoinHandler struct {
	ledger  *command.CoinLedgerHandler
	history *query.CoinHistoryHandler
	log     *logger.Logger
}

// NewCoinHandler creates a CoinHandler.
func NewCoinHandler(ledger *command.CoinLedgerHandler, history *query.CoinHistoryHandler, log *logger.Logger) *CoinHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CoinHandler{ledger: ledger, history: history, log: log}
}

// History returns a page of transactions, newest first.
// GET /users/:id/coins?page=1&limit=20
func (h *CoinHandler) History(c *gin.Context) {
	page, err := intQuery(c, "page")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	res, err := h.history.GetCoinHistory(c.Request.Context(), query.GetCoinHistoryQuery{
		UserID: c.Param("id"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, gin.H{
		"transactions": newTransactionsResponse(res.Transactions),
		"pagination":   res.Pagination,
	})
}

// Stats returns earned and spent totals. GET /users/:id/coins/stats
func (h *CoinHandler) Stats(c *gin.Context) {
	stats, err := h.history.GetCoinStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, stats)
}

// Spend buys an item. POST /users/:id/coins/spend
func (h *CoinHandler) Spend(c *gin.Context) {
	var req spendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	res, err := h.ledger.SpendCoins(c.Request.Context(), command.SpendCoinsCommand{
		UserID: c.Param("id"),
		Amount: req.Amount,
		Item:   req.Item,
	})
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	RespondOK(c, newLedgerResponse(res))
}

// Adjust applies a manual correction. POST /admin/users/:id/coins/adjust
func (h *CoinHandler) Adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", errInvalidBody)
		return
	}

	ctx := c.Request.Context()
	userID := c.Param("id")

	var (
		res *command.LedgerResult
		err error
	)
	if req.Amount < 0 {
		res, err = h.ledger.DeductCoins(ctx, command.DeductCoinsCommand{
			UserID:      userID,
			Type:        coins.TypeAdjustment,
			Amount:      -req.Amount,
			Description: req.Description,
		})
	} else {
		res, err = h.ledger.AddCoins(ctx, command.AddCoinsCommand{
			UserID:      userID,
			Type:        coins.TypeAdjustment,
			Amount:      req.Amount,
			Description: req.Description,
		})
	}
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}

	h.log.Info("manual coin adjustment",
		logger.UserID(userID),
		logger.Coins(req.Amount),
		logger.String("request_id", c.GetString(RequestIDKey)),
		logger.String("operator", c.GetString(OperatorKey)),
	)
	RespondOK(c, newLedgerResponse(res))
}

// Audit checks the ledger against the cached balance.
// GET /admin/users/:id/coins/audit
func (h *CoinHandler) Audit(c *gin.Context) {
	res, err := h.history.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, h.log, err)
		return
	}
	if !res.Consistent {
		h.log.Warn("ledger audit failed",
			logger.UserID(res.UserID),
			logger.String("problem", res.Problem),
			logger.Reconcile(),
		)
	}
	RespondOK(c, res)
}

// intQuery reads an optional integer query parameter; absent means zero.
func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
