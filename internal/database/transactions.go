package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Whitelisted sort keys for ListTransactions.
var transactionSortColumns = map[string]string{
	"createdAt": "created_at",
	"amount":    "CAST(amount AS REAL)",
	"type":      "type",
	"status":    "status",
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, amountStr, status, createdAt string
	var balanceBefore, balanceAfter, lockedBefore, lockedAfter string
	var lockId, reference, completedAt sql.NullString
	err := row.Scan(&t.Id, &t.UserId, &txType, &amountStr, &status, &t.Description, &lockId, &reference,
		&balanceBefore, &balanceAfter, &lockedBefore, &lockedAfter, &t.FailureReason, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Type = models.TransactionType(txType)
	t.Status = models.TransactionStatus(status)
	t.LockId = lockId.String
	t.Reference = reference.String

	for _, field := range []struct {
		dst  *decimal.Decimal
		src  string
		name string
	}{
		{&t.Amount, amountStr, "amount"},
		{&t.BalanceBefore, balanceBefore, "balance_before"},
		{&t.BalanceAfter, balanceAfter, "balance_after"},
		{&t.LockedBefore, lockedBefore, "locked_before"},
		{&t.LockedAfter, lockedAfter, "locked_after"},
	} {
		if *field.dst, err = decimal.NewFromString(field.src); err != nil {
			return nil, fmt.Errorf("failed to parse %s '%s': %w", field.name, field.src, err)
		}
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreatePendingTransaction records a transaction that has not yet touched
// any balance. A reference already used by a non-failed transaction is
// rejected with ErrDuplicateTransaction.
func (s *SubledgerService) CreatePendingTransaction(ctx context.Context, params store.PendingTransactionParams) (*models.Transaction, error) {
	now := time.Now().UTC()
	transaction := &models.Transaction{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		Type:          params.Type,
		Amount:        params.Amount,
		Status:        models.TransactionStatusPending,
		Description:   params.Description,
		LockId:        params.LockId,
		Reference:     params.Reference,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.Zero,
		LockedBefore:  decimal.Zero,
		LockedAfter:   decimal.Zero,
		CreatedAt:     now,
	}

	_, err := s.db.ExecContext(ctx, queryInsertPendingTransaction,
		transaction.Id, params.UserId, string(params.Type), params.Amount.String(), params.Description,
		nullString(params.LockId), nullString(params.Reference), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, params.Reference)
		}
		return nil, fmt.Errorf("failed to insert pending transaction: %w", classify(err))
	}

	s.logger.Debug("Pending transaction created",
		zap.String("transaction_id", transaction.Id),
		zap.String("user_id", params.UserId),
		zap.String("type", string(params.Type)),
		zap.String("amount", params.Amount.String()))
	return transaction, nil
}

// ApplyPendingTransaction applies a pending transaction in one database
// transaction: it reads the wallet, validates the preconditions, moves the
// balances with a versioned write, creates or updates the referenced lock,
// re-derives the loyalty tier and marks the transaction completed. Any error
// rolls the whole unit back and leaves the transaction pending.
func (s *SubledgerService) ApplyPendingTransaction(ctx context.Context, params store.ApplyTransactionParams) (*store.ApplyResult, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	pending, err := scanTransaction(tx.QueryRowContext(ctx, queryGetTransactionById, params.TransactionId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s not found: %w", params.TransactionId, store.ErrTransactionNotPending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", classify(err))
	}
	if pending.Status != models.TransactionStatusPending {
		return nil, fmt.Errorf("transaction %s is %s: %w", pending.Id, pending.Status, store.ErrTransactionNotPending)
	}

	wallet, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, pending.UserId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", pending.UserId, store.ErrWalletNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", classify(err))
	}

	if pending.Type.DebitsBalance() && wallet.Balance.LessThan(pending.Amount) {
		return nil, fmt.Errorf("balance %s, requested %s: %w", wallet.Balance, pending.Amount, store.ErrInsufficientBalance)
	}

	var lock *models.CoinLock
	switch pending.Type {
	case models.TransactionTypeLock:
		lock, err = s.insertLock(ctx, tx, wallet, pending.Amount, params, now)
		if lock != nil {
			pending.LockId = lock.Id
		}
	case models.TransactionTypeUnlock:
		lock, err = s.releaseLock(ctx, tx, wallet, pending, params, now)
	case models.TransactionTypeBonus:
		if pending.LockId != "" && params.RewardMonth > 0 {
			lock, err = s.recordRewardPayment(ctx, tx, wallet, pending, params, now)
		}
	}
	if err != nil {
		return nil, err
	}

	balanceDelta, lockedDelta := pending.Type.Deltas(pending.Amount)
	newBalance := wallet.Balance.Add(balanceDelta)
	newLocked := wallet.LockedBalance.Add(lockedDelta)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("balance would become %s: %w", newBalance, store.ErrInsufficientBalance)
	}
	if newLocked.IsNegative() {
		return nil, fmt.Errorf("locked balance would become %s: %w", newLocked, store.ErrInsufficientLockedBalance)
	}
	tier := rewards.LoyaltyTierFor(newLocked)

	// Update wallet balances (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateWalletBalances,
		newBalance.String(), newLocked.String(), string(tier), formatTime(now), wallet.Id, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	result, err = tx.ExecContext(ctx, queryCompleteTransaction,
		nullString(pending.LockId), wallet.Balance.String(), newBalance.String(),
		wallet.LockedBalance.String(), newLocked.String(), formatTime(now), pending.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete transaction: %w", classify(err))
	}
	if rowsAffected, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	} else if rowsAffected == 0 {
		return nil, fmt.Errorf("transaction %s: %w", pending.Id, store.ErrTransactionNotPending)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", classify(err))
	}

	completedAt := now
	pending.Status = models.TransactionStatusCompleted
	pending.BalanceBefore, pending.BalanceAfter = wallet.Balance, newBalance
	pending.LockedBefore, pending.LockedAfter = wallet.LockedBalance, newLocked
	pending.CompletedAt = &completedAt

	oldBalance := wallet.Balance
	wallet.Balance = newBalance
	wallet.LockedBalance = newLocked
	wallet.LoyaltyType = tier
	wallet.Version++
	wallet.UpdatedAt = now

	s.logger.Info("Transaction processed successfully",
		zap.String("transaction_id", pending.Id),
		zap.String("user_id", pending.UserId),
		zap.String("type", string(pending.Type)),
		zap.String("amount", pending.Amount.String()),
		zap.String("old_balance", oldBalance.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("locked_balance", newLocked.String()))

	return &store.ApplyResult{Transaction: pending, Wallet: wallet, Lock: lock}, nil
}

// FailTransaction moves a pending transaction to failed, exactly once.
func (s *SubledgerService) FailTransaction(ctx context.Context, transactionId, reason string) error {
	result, err := s.db.ExecContext(ctx, queryFailTransaction, reason, formatTime(time.Now()), transactionId)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", transactionId, store.ErrTransactionNotPending)
	}

	s.logger.Warn("Transaction failed",
		zap.String("transaction_id", transactionId),
		zap.String("reason", reason))
	return nil
}

// ListTransactions returns one page of a user's transactions and the total
// number matching the query. The query must already be validated.
func (s *SubledgerService) ListTransactions(ctx context.Context, query models.TransactionQuery) ([]models.Transaction, int, error) {
	sortColumn, ok := transactionSortColumns[query.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported sort field %q", query.SortBy)
	}
	direction := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		direction = "ASC"
	}

	where := []string{"user_id = ?"}
	args := []any{query.UserId}
	if query.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(query.Type))
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(query.Status))
	}
	whereClause := strings.Join(where, " AND ")

	s.logger.Debug("Listing transactions",
		zap.String("user_id", query.UserId),
		zap.Int("page", query.Page),
		zap.Int("limit", query.Limit),
		zap.String("sort_by", query.SortBy),
		zap.String("sort_order", direction))

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", classify(err))
	}

	pageQuery := fmt.Sprintf("SELECT %s FROM transactions WHERE %s ORDER BY %s %s, rowid %s LIMIT ? OFFSET ?",
		transactionColumns, whereClause, sortColumn, direction, direction)
	pageArgs := append(append([]any{}, args...), query.Limit, query.Offset())

	transactions := []models.Transaction{}
	err := s.eachRow(ctx, pageQuery, pageArgs, func(row rowScanner) error {
		t, err := scanTransaction(row)
		if err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, total, nil
}

// TransactionStats summarizes a user's completed transactions. Income is
// the sum of completed deposits and bonuses.
func (s *SubledgerService) TransactionStats(ctx context.Context, userId string) (*models.TransactionStats, error) {
	stats := &models.TransactionStats{Income: decimal.Zero}

	var lastActivity sql.NullString
	err := s.db.QueryRowContext(ctx, queryCompletedTransactionSummary, userId).Scan(&stats.CompletedCount, &lastActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", classify(err))
	}
	if stats.LastActivity, err = parseNullTime(lastActivity); err != nil {
		return nil, err
	}

	err = s.eachRow(ctx, queryCompletedTransactionAmounts, []any{userId}, func(row rowScanner) error {
		var txType, amountStr string
		if err := row.Scan(&txType, &amountStr); err != nil {
			return err
		}
		if !models.TransactionType(txType).IsIncome() {
			return nil
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		stats.Income = stats.Income.Add(amount)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sum income: %w", err)
	}

	return stats, nil
}
