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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceView is the read model returned by GetBalance.
type BalanceView struct {
	Balance          decimal.Decimal `json:"balance"`
	LockedBalance    decimal.Decimal `json:"lockedBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	LastUpdated      time.Time       `json:"lastUpdated"`
}

// WalletView is the GET /wallet response body.
type WalletView struct {
	Balance            decimal.Decimal `json:"balance"`
	LockedBalance      decimal.Decimal `json:"lockedBalance"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
	LoyaltyType        LoyaltyTier     `json:"loyaltyType"`
	LoyaltyBonus       decimal.Decimal `json:"loyaltyBonus"`
	SqlLevel           int             `json:"sqlLevel"`
	TransactionHistory []Transaction   `json:"transactionHistory"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// TransactionPage is one offset page of a user's transaction log.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
	HasMore    bool          `json:"hasMore"`
}

type UpgradeOption struct {
	DurationMonths   int             `json:"durationMonths"`
	BonusRate        decimal.Decimal `json:"bonusRate"`
	AdditionalReward decimal.Decimal `json:"additionalReward"`
}

// LockRewardSnapshot is a coin lock together with its computed rewards.
type LockRewardSnapshot struct {
	CoinLock
	MonthlyReward   decimal.Decimal `json:"monthlyReward"`
	TotalReward     decimal.Decimal `json:"totalReward"`
	RemainingReward decimal.Decimal `json:"remainingReward"`
	NextRewardDate  *time.Time      `json:"nextRewardDate"`
	UpgradeOptions  []UpgradeOption `json:"upgradeOptions"`
}

// CoinLockBonusView is the GET /am/coin-lock-bonus response body.
type CoinLockBonusView struct {
	LockedBalance      decimal.Decimal      `json:"lockedBalance"`
	LoyaltyType        LoyaltyTier          `json:"loyaltyType"`
	LoyaltyBonus       decimal.Decimal      `json:"loyaltyBonus"`
	TotalMonthlyReward decimal.Decimal      `json:"totalMonthlyReward"`
	Locks              []LockRewardSnapshot `json:"locks"`
}

// RequirementStatus is one evaluated SQL-level requirement. Flag
// requirements use 1 for "required"/"present" and 0 otherwise.
type RequirementStatus struct {
	Required decimal.Decimal `json:"required"`
	Current  decimal.Decimal `json:"current"`
	Met      bool            `json:"met"`
}

type LevelEligibility struct {
	Eligible            bool                         `json:"eligible"`
	CurrentLevel        int                          `json:"currentLevel"`
	TargetLevel         int                          `json:"targetLevel"`
	Requirements        map[string]RequirementStatus `json:"requirements"`
	MissingRequirements []string                     `json:"missingRequirements"`
}

type UpgradeRequirements struct {
	Completed []string `json:"completed"`
	Pending   []string `json:"pending"`
}

type UpgradeResult struct {
	Success      bool                `json:"success"`
	CurrentLevel int                 `json:"currentLevel"`
	NewLevel     *int                `json:"newLevel,omitempty"`
	Requirements UpgradeRequirements `json:"requirements"`
	Message      string              `json:"message"`
}

type ProgressMetric struct {
	Current    int     `json:"current"`
	Required   int     `json:"required"`
	Percentage float64 `json:"percentage"`
}

type ChecklistItem struct {
	Name      string `json:"name"`
	Required  int    `json:"required"`
	Current   int    `json:"current"`
	Completed bool   `json:"completed"`
}

// SQLProgress is the activity-track view of a user's progression.
type SQLProgress struct {
	CurrentLevel          int             `json:"currentLevel"`
	NextLevel             *int            `json:"nextLevel,omitempty"`
	MaxLevel              int             `json:"maxLevel"`
	TransactionCount      ProgressMetric  `json:"transactionCount"`
	ActivityDays          ProgressMetric  `json:"activityDays"`
	ReferralCount         ProgressMetric  `json:"referralCount"`
	RecentActivity        []Transaction   `json:"recentActivity"`
	NextLevelRequirements []ChecklistItem `json:"nextLevelRequirements"`
}

type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
)

type VerifyResult struct {
	SqlLevel     int                `json:"sqlLevel"`
	Status       VerificationStatus `json:"status"`
	Requirements Verification       `json:"requirements"`
	NextLevel    *int               `json:"nextLevel,omitempty"`
}

type ModuleEligibility struct {
	Module     string `json:"module"`
	IsEligible bool   `json:"isEligible"`
	Reason     string `json:"reason,omitempty"`
}
