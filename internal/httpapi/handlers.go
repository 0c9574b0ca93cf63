/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"coin-wallet-go/internal/api"
	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/cache"
	"coin-wallet-go/internal/eligibility"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/progression"
	"coin-wallet-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler serves the wallet, progression and module endpoints.
type Handler struct {
	ledger      *api.LedgerService
	progression *progression.Evaluator
	gate        *eligibility.Gate
	cache       *cache.Snapshots
	logger      *zap.Logger
}

func NewHandler(ledger *api.LedgerService, evaluator *progression.Evaluator, gate *eligibility.Gate, snapshots *cache.Snapshots, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:      ledger,
		progression: evaluator,
		gate:        gate,
		cache:       snapshots,
		logger:      logger,
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	respondWithError(c, h.logger, err)
}

// currentUser is the id resolved by Authenticate.
func currentUser(c *gin.Context) string {
	return models.UserIdFromContext(c.Request.Context())
}

// --- Wallet ---

func (h *Handler) getWallet(c *gin.Context) {
	view, err := h.ledger.GetWallet(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) createWallet(c *gin.Context) {
	view, err := h.ledger.CreateWallet(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) getBalance(c *gin.Context) {
	view, err := h.ledger.GetBalance(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, view)
}

type walletActionRequest struct {
	Action         string             `json:"action" binding:"required,oneof=lock unlock updateLoyalty"`
	Amount         decimal.Decimal    `json:"amount"`
	DurationMonths int                `json:"durationMonths"`
	LockId         string             `json:"lockId"`
	LoyaltyType    models.LoyaltyTier `json:"loyaltyType"`
}

type walletMutation struct {
	Wallet      *models.Wallet      `json:"wallet"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Lock        *models.CoinLock    `json:"lock,omitempty"`
}

func (h *Handler) updateWallet(c *gin.Context) {
	var req walletActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	userId := currentUser(c)

	if req.Action == "updateLoyalty" {
		wallet, err := h.ledger.UpdateLoyalty(ctx, userId, req.LoyaltyType)
		if err != nil {
			h.fail(c, err)
			return
		}
		respondWithSuccess(c, http.StatusOK, walletMutation{Wallet: wallet})
		return
	}

	var (
		applied *store.ApplyResult
		err     error
	)
	switch req.Action {
	case "lock":
		applied, err = h.ledger.Lock(ctx, userId, req.Amount, req.DurationMonths)
	default:
		applied, err = h.ledger.Unlock(ctx, userId, req.LockId, req.Amount)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.cache.Invalidate(ctx, userId)
	respondWithSuccess(c, http.StatusOK, walletMutation{
		Wallet:      applied.Wallet,
		Transaction: applied.Transaction,
		Lock:        applied.Lock,
	})
}

func (h *Handler) listTransactions(c *gin.Context) {
	var query models.TransactionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.fail(c, bindError(err))
		return
	}
	query.UserId = currentUser(c)

	page, err := h.ledger.ListTransactions(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, page)
}

type createTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required,oneof=deposit withdrawal transfer bonus"`
	Description string          `json:"description" binding:"max=500"`
}

// createTransaction applies a user-initiated transaction. A transfer leaves
// the wallet and is recorded as a withdrawal.
func (h *Handler) createTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	txType := models.TransactionType(req.Type)
	description := req.Description
	if req.Type == "transfer" {
		txType = models.TransactionTypeWithdrawal
		if description == "" {
			description = "Transfer"
		}
	}

	ctx := c.Request.Context()
	userId := currentUser(c)
	result, err := h.ledger.ApplyTransaction(ctx, api.TransactionRequest{
		UserId:      userId,
		Type:        txType,
		Amount:      req.Amount,
		Description: description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.cache.Invalidate(ctx, userId)
	respondWithSuccess(c, http.StatusOK, result.Transaction)
}

type placeOrderRequest struct {
	OrderId     string          `json:"orderId" binding:"required,max=128"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=500"`
}

func (h *Handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	userId := currentUser(c)
	result, err := h.ledger.PlaceOrder(ctx, userId, req.OrderId, req.Amount, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.cache.Invalidate(ctx, userId)
	respondWithSuccess(c, http.StatusOK, result.Transaction)
}

func (h *Handler) coinLockBonus(c *gin.Context) {
	view, err := h.ledger.LockBonus(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, view)
}

// --- SQL levels ---

func (h *Handler) sqlProgress(c *gin.Context) {
	progress, err := h.progression.Progress(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, progress)
}

type upgradeRequest struct {
	TargetLevel int `json:"targetLevel" binding:"required"`
}

func (h *Handler) sqlUpgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	result, err := h.progression.Upgrade(c.Request.Context(), currentUser(c), req.TargetLevel)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) sqlEligibility(c *gin.Context) {
	target, err := strconv.Atoi(c.Query("targetLevel"))
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeValidation, "targetLevel must be an integer", err))
		return
	}

	result, err := h.progression.CheckEligibility(c.Request.Context(), currentUser(c), target)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, result)
}

func (h *Handler) sqlVerify(c *gin.Context) {
	result, err := h.progression.Verify(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- Modules ---

func (h *Handler) listModules(c *gin.Context) {
	respondWithSuccess(c, http.StatusOK, gin.H{"modules": h.gate.Modules()})
}

func (h *Handler) moduleEligibility(c *gin.Context) {
	result, err := h.gate.Check(c.Request.Context(), currentUser(c), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondWithSuccess(c, http.StatusOK, result)
}

// --- Probes ---

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	checks := gin.H{"database": "ok", "cache": "ok"}
	status := http.StatusOK
	if err := h.ledger.HealthCheck(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.String("dependency", "database"), zap.Error(err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	// Reads fall back to the store when the cache is down.
	if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("Snapshot cache unavailable", zap.Error(err))
		checks["cache"] = "degraded"
	}
	c.JSON(status, gin.H{"ready": status == http.StatusOK, "checks": checks})
}
