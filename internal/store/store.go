package store

import (
	"context"
	"errors"
	"time"

	"coin-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction      = errors.New("duplicate transaction")
	ErrConcurrentModification    = errors.New("concurrent modification detected")
	ErrTransient                 = errors.New("transient store failure")
	ErrWalletNotFound            = errors.New("wallet not found")
	ErrWalletExists              = errors.New("wallet already exists")
	ErrLockNotFound              = errors.New("coin lock not found")
	ErrLockNotActive             = errors.New("coin lock is not active")
	ErrTransactionNotPending     = errors.New("transaction is not pending")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientLockedBalance = errors.New("insufficient locked balance")
	ErrLevelNotHigher            = errors.New("sql level can only be raised")
	ErrReconciliationMismatch    = errors.New("ledger reconciliation mismatch")
)

// PendingTransactionParams describes a transaction before it touches balances.
type PendingTransactionParams struct {
	UserId      string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	// LockId references an existing lock for unlock and reward transactions.
	LockId string
	// Reference is an optional external idempotency key.
	Reference string
}

// ApplyTransactionParams carries the inputs that only matter while a
// pending transaction is applied.
type ApplyTransactionParams struct {
	TransactionId string
	// DurationMonths and BonusRate describe the lock created by a lock transaction.
	DurationMonths int
	BonusRate      decimal.Decimal
	// CloseStatus is the status given to a lock drained by an unlock. Empty
	// derives it from the lock's end date.
	CloseStatus models.LockStatus
	// RewardMonth, when set on a bonus transaction, is the lock month being
	// paid. It must immediately follow the lock's last paid month.
	RewardMonth int
	Now         time.Time
}

// ApplyResult is the committed state after a transaction was applied.
type ApplyResult struct {
	Transaction *models.Transaction
	Wallet      *models.Wallet
	Lock        *models.CoinLock
}

// LedgerStore is the durable per-user record of balances, locks and the
// transaction log.
type LedgerStore interface {
	// --- Wallets ---
	CreateWallet(ctx context.Context, userId string) (*models.Wallet, error)
	GetWallet(ctx context.Context, userId string) (*models.Wallet, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	SetSqlLevel(ctx context.Context, userId string, level int) (*models.Wallet, error)
	SyncLoyaltyTier(ctx context.Context, userId string) (*models.Wallet, error)

	// --- Locks ---
	GetLock(ctx context.Context, userId, lockId string) (*models.CoinLock, error)
	ListLocks(ctx context.Context, userId string, status models.LockStatus) ([]models.CoinLock, error)
	ListActiveLocks(ctx context.Context) ([]models.CoinLock, error)

	// --- Transactions ---
	CreatePendingTransaction(ctx context.Context, params PendingTransactionParams) (*models.Transaction, error)
	ApplyPendingTransaction(ctx context.Context, params ApplyTransactionParams) (*ApplyResult, error)
	FailTransaction(ctx context.Context, transactionId, reason string) error
	ListTransactions(ctx context.Context, query models.TransactionQuery) ([]models.Transaction, int, error)
	TransactionStats(ctx context.Context, userId string) (*models.TransactionStats, error)
	ReconcileWallet(ctx context.Context, userId string) error

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}

// ActivityStore exposes collaborator-supplied referral, activity and
// verification data. The core only reads it; the activity CLI writes it.
type ActivityStore interface {
	CountReferrals(ctx context.Context, userId string) (int, error)
	CountActiveReferrals(ctx context.Context, userId string, since time.Time) (int, error)
	CountActivityDays(ctx context.Context, userId string) (int, error)
	LastActivity(ctx context.Context, userId string) (*time.Time, error)
	GetVerification(ctx context.Context, userId string) (models.Verification, error)

	RecordReferral(ctx context.Context, referrerId, referredId string) error
	RecordActivity(ctx context.Context, userId string, at time.Time) error
	SetVerification(ctx context.Context, userId string, verification models.Verification) error
}
