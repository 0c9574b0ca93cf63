package api

import (
	"context"
	"fmt"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionRequest describes one balance mutation.
type TransactionRequest struct {
	UserId      string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	// LockId names the lock released by an unlock or paying a bonus.
	LockId string
	// DurationMonths is the term of the lock created by a lock transaction.
	DurationMonths int
	// Reference is an optional idempotency key, unique among non-failed transactions.
	Reference string

	closeStatus models.LockStatus
	rewardMonth int
}

// ApplyTransaction validates the request, records a pending transaction,
// applies it atomically and marks it completed. A failure after the pending
// record exists marks it failed and leaves balances untouched. Invalid
// amounts and unknown wallets are rejected before anything is recorded.
func (s *LedgerService) ApplyTransaction(ctx context.Context, req TransactionRequest) (*store.ApplyResult, error) {
	if !req.Type.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unsupported transaction type %q", req.Type)
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeInvalidAmount, "amount must be greater than zero, got %s", req.Amount)
	}

	apply := store.ApplyTransactionParams{
		CloseStatus: req.closeStatus,
		RewardMonth: req.rewardMonth,
	}
	switch req.Type {
	case models.TransactionTypeLock:
		rate, err := rewards.BonusRate(req.DurationMonths)
		if err != nil {
			return nil, apperr.Newf(apperr.CodeValidation, "durationMonths must be one of %v", rewards.SupportedDurations())
		}
		apply.DurationMonths = req.DurationMonths
		apply.BonusRate = rate
	case models.TransactionTypeUnlock:
		if req.LockId == "" {
			return nil, apperr.New(apperr.CodeValidation, "unlock requires a lock id")
		}
	}

	if _, err := s.getWallet(ctx, req.UserId); err != nil {
		return nil, translate(err)
	}

	// A mutation either fully applies or fully fails; caller cancellation
	// must not abandon it half way.
	ctx = context.WithoutCancel(ctx)

	pending, err := retryOnce(ctx, s.logger, "create pending transaction", func() (*models.Transaction, error) {
		return s.store.CreatePendingTransaction(ctx, store.PendingTransactionParams{
			UserId:      req.UserId,
			Type:        req.Type,
			Amount:      req.Amount,
			Description: req.Description,
			LockId:      req.LockId,
			Reference:   req.Reference,
		})
	})
	if err != nil {
		s.logger.Error("Failed to record pending transaction",
			zap.String("user_id", req.UserId),
			zap.String("type", string(req.Type)),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, translate(err)
	}

	apply.TransactionId = pending.Id
	result, err := retryOnce(ctx, s.logger, "apply transaction", func() (*store.ApplyResult, error) {
		apply.Now = s.now()
		return s.store.ApplyPendingTransaction(ctx, apply)
	})
	if err != nil {
		if failErr := s.store.FailTransaction(ctx, pending.Id, err.Error()); failErr != nil {
			s.logger.Error("Failed to mark transaction failed",
				zap.String("transaction_id", pending.Id),
				zap.Error(failErr))
		}

		translated := translate(err)
		logFn := s.logger.Info
		if apperr.CodeOf(translated) == apperr.CodeInternal {
			logFn = s.logger.Error
		}
		logFn("Transaction rejected",
			zap.String("transaction_id", pending.Id),
			zap.String("user_id", req.UserId),
			zap.String("type", string(req.Type)),
			zap.String("amount", req.Amount.String()),
			zap.String("code", string(apperr.CodeOf(translated))),
			zap.Error(err))
		return nil, translated
	}

	if err := s.publisher.PublishTransaction(ctx, *result.Transaction); err != nil {
		s.logger.Warn("Failed to publish transaction event",
			zap.String("transaction_id", result.Transaction.Id),
			zap.Error(err))
	}

	return result, nil
}

// PlaceOrder debits an order. Repeating an order id that already succeeded
// is rejected as a conflict.
func (s *LedgerService) PlaceOrder(ctx context.Context, userId, orderId string, amount decimal.Decimal, description string) (*store.ApplyResult, error) {
	if orderId == "" {
		return nil, apperr.New(apperr.CodeValidation, "orderId is required")
	}
	if description == "" {
		description = fmt.Sprintf("Order %s", orderId)
	}
	return s.ApplyTransaction(ctx, TransactionRequest{
		UserId:      userId,
		Type:        models.TransactionTypeOrder,
		Amount:      amount,
		Description: description,
		Reference:   "order:" + orderId,
	})
}

// ListTransactions returns one page of the user's transaction log.
func (s *LedgerService) ListTransactions(ctx context.Context, query models.TransactionQuery) (*models.TransactionPage, error) {
	query.ApplyDefaults()
	if err := s.validate.Struct(query); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, describeValidation(err), err)
	}

	if _, err := s.getWallet(ctx, query.UserId); err != nil {
		return nil, translate(err)
	}

	type listing struct {
		items []models.Transaction
		total int
	}
	result, err := retryOnce(ctx, s.logger, "list transactions", func() (listing, error) {
		items, total, err := s.store.ListTransactions(ctx, query)
		return listing{items: items, total: total}, err
	})
	if err != nil {
		return nil, translate(err)
	}

	totalPages := 0
	if result.total > 0 {
		totalPages = (result.total + query.Limit - 1) / query.Limit
	}
	items := result.items
	if items == nil {
		items = []models.Transaction{}
	}

	return &models.TransactionPage{
		Items:      items,
		Total:      result.total,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: totalPages,
		HasMore:    query.Page < totalPages,
	}, nil
}
