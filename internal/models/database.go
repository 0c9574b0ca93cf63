package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance mutation recorded in the ledger.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeLock       TransactionType = "lock"
	TransactionTypeUnlock     TransactionType = "unlock"
	TransactionTypeOrder      TransactionType = "order"
	TransactionTypeBonus      TransactionType = "bonus"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeLock,
		TransactionTypeUnlock, TransactionTypeOrder, TransactionTypeBonus:
		return true
	}
	return false
}

// Deltas returns the change applied to balance and lockedBalance for a
// transaction of this type with the given (positive) amount.
func (t TransactionType) Deltas(amount decimal.Decimal) (balance, locked decimal.Decimal) {
	switch t {
	case TransactionTypeDeposit, TransactionTypeBonus:
		return amount, decimal.Zero
	case TransactionTypeWithdrawal, TransactionTypeOrder:
		return amount.Neg(), decimal.Zero
	case TransactionTypeLock:
		return amount.Neg(), amount
	case TransactionTypeUnlock:
		return amount, amount.Neg()
	}
	return decimal.Zero, decimal.Zero
}

// DebitsBalance reports whether the spendable balance must cover the amount.
func (t TransactionType) DebitsBalance() bool {
	return t == TransactionTypeWithdrawal || t == TransactionTypeOrder || t == TransactionTypeLock
}

// IsIncome reports whether the type counts towards SQL-level income.
func (t TransactionType) IsIncome() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeBonus
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type LockStatus string

const (
	LockStatusActive        LockStatus = "active"
	LockStatusExpired       LockStatus = "expired"
	LockStatusUnlockedEarly LockStatus = "unlocked-early"
)

// LoyaltyTier is the bracket derived from a wallet's cumulative locked balance.
type LoyaltyTier string

const (
	LoyaltyNone     LoyaltyTier = "none"
	LoyaltyBronze   LoyaltyTier = "bronze"
	LoyaltySilver   LoyaltyTier = "silver"
	LoyaltyGold     LoyaltyTier = "gold"
	LoyaltyPlatinum LoyaltyTier = "platinum"
)

// Rank orders tiers none < bronze < silver < gold < platinum. Unknown tiers rank -1.
func (t LoyaltyTier) Rank() int {
	switch t {
	case LoyaltyNone:
		return 0
	case LoyaltyBronze:
		return 1
	case LoyaltySilver:
		return 2
	case LoyaltyGold:
		return 3
	case LoyaltyPlatinum:
		return 4
	}
	return -1
}

func (t LoyaltyTier) Valid() bool {
	return t.Rank() >= 0
}

// Wallet is the per-user balance record. Version guards optimistic writes.
type Wallet struct {
	Id            string          `json:"id"`
	UserId        string          `json:"userId"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"lockedBalance"`
	LoyaltyType   LoyaltyTier     `json:"loyaltyType"`
	SqlLevel      int             `json:"sqlLevel"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AvailableBalance is balance minus lockedBalance, floored at zero.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	available := w.Balance.Sub(w.LockedBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// CoinLock is a time-boxed commitment of funds earning a fixed monthly rate.
type CoinLock struct {
	Id             string          `json:"id"`
	WalletId       string          `json:"walletId"`
	UserId         string          `json:"userId"`
	Amount         decimal.Decimal `json:"amount"`
	DurationMonths int             `json:"durationMonths"`
	BonusRate      decimal.Decimal `json:"bonusRate"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	Status         LockStatus      `json:"status"`
	RewardsPaid    int             `json:"rewardsPaid"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Transaction is an append-only ledger record. Only Status (and the
// snapshot columns filled on completion) ever change, and only once.
type Transaction struct {
	Id            string            `json:"id"`
	UserId        string            `json:"userId"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	LockId        string            `json:"lockId,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	BalanceBefore decimal.Decimal   `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal   `json:"balanceAfter"`
	LockedBefore  decimal.Decimal   `json:"lockedBefore"`
	LockedAfter   decimal.Decimal   `json:"lockedAfter"`
	FailureReason string            `json:"failureReason,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
}

// TransactionStats aggregates completed ledger activity for one user.
type TransactionStats struct {
	CompletedCount int
	Income         decimal.Decimal
	LastActivity   *time.Time
}

// Verification holds the externally supplied verification flags.
type Verification struct {
	Pss bool `json:"pss"`
	Edr bool `json:"edr"`
	Kyc bool `json:"kyc"`
}

func (v Verification) Complete() bool {
	return v.Pss && v.Edr && v.Kyc
}
