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

package progression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/cache"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentActivitySize = 5

// Requirement names reported by CheckEligibility, in evaluation order.
const (
	RequirementIncome         = "income"
	RequirementReferrals      = "referrals"
	RequirementRecentActivity = "recentActivity"
	RequirementActiveMembers  = "activeMembers"
	RequirementActiveLock     = "activeLock"
)

// Evaluator computes SQL-level eligibility and progress from ledger data
// and collaborator-supplied referral and activity counts. Upgrade is its
// only write.
type Evaluator struct {
	ledger   store.LedgerStore
	activity store.ActivityStore
	tracks   *Tracks
	cache    *cache.Snapshots
	logger   *zap.Logger
	now      func() time.Time
}

func NewEvaluator(ledger store.LedgerStore, activity store.ActivityStore, tracks *Tracks, snapshots *cache.Snapshots, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		ledger:   ledger,
		activity: activity,
		tracks:   tracks,
		cache:    snapshots,
		logger:   logger,
		now:      time.Now,
	}
}

func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrWalletNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "wallet not found", err)
	case errors.Is(err, store.ErrLevelNotHigher):
		return apperr.Wrap(apperr.CodeInvalidTarget, "sql level can only be raised", err)
	default:
		return apperr.Wrap(apperr.CodeInternal, "progression lookup failed", err)
	}
}

func (e *Evaluator) nextLevel(current int) *int {
	if current >= e.tracks.MaxLevel() {
		return nil
	}
	next := current + 1
	return &next
}

// CheckEligibility evaluates the upgrade-track requirements of targetLevel.
func (e *Evaluator) CheckEligibility(ctx context.Context, userId string, targetLevel int) (*models.LevelEligibility, error) {
	wallet, err := e.ledger.GetWallet(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}

	if targetLevel <= wallet.SqlLevel {
		return nil, apperr.Newf(apperr.CodeInvalidTarget,
			"target level %d must be above current level %d", targetLevel, wallet.SqlLevel)
	}
	req, ok := e.tracks.upgradeFor(targetLevel)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInvalidTarget,
			"target level %d exceeds maximum level %d", targetLevel, e.tracks.MaxLevel())
	}

	statuses, order, err := e.evaluate(ctx, userId, req)
	if err != nil {
		return nil, err
	}

	result := &models.LevelEligibility{
		Eligible:            true,
		CurrentLevel:        wallet.SqlLevel,
		TargetLevel:         targetLevel,
		Requirements:        statuses,
		MissingRequirements: []string{},
	}
	for _, name := range order {
		if !statuses[name].Met {
			result.Eligible = false
			result.MissingRequirements = append(result.MissingRequirements, name)
		}
	}
	return result, nil
}

// evaluate returns the status of each requirement of req and the order
// they were checked in.
func (e *Evaluator) evaluate(ctx context.Context, userId string, req models.IncomeLevelRequirement) (map[string]models.RequirementStatus, []string, error) {
	statuses := make(map[string]models.RequirementStatus)
	var order []string
	add := func(name string, required, current decimal.Decimal) {
		statuses[name] = models.RequirementStatus{
			Required: required,
			Current:  current,
			Met:      current.GreaterThanOrEqual(required),
		}
		order = append(order, name)
	}

	stats, err := e.ledger.TransactionStats(ctx, userId)
	if err != nil {
		return nil, nil, storeError(err)
	}
	add(RequirementIncome, decimal.NewFromFloat(req.MinIncome), stats.Income)

	referrals, err := e.activity.CountReferrals(ctx, userId)
	if err != nil {
		return nil, nil, storeError(err)
	}
	add(RequirementReferrals, decimal.NewFromInt(int64(req.MinReferrals)), decimal.NewFromInt(int64(referrals)))

	if req.ActivityWindowDays > 0 {
		since := e.now().Add(-time.Duration(req.ActivityWindowDays) * 24 * time.Hour)
		last, err := e.activity.LastActivity(ctx, userId)
		if err != nil {
			return nil, nil, storeError(err)
		}
		active := decimal.Zero
		if last != nil && !last.Before(since) {
			active = decimal.NewFromInt(1)
		}
		add(RequirementRecentActivity, decimal.NewFromInt(1), active)

		if req.MinActiveMembers > 0 {
			members, err := e.activity.CountActiveReferrals(ctx, userId, since)
			if err != nil {
				return nil, nil, storeError(err)
			}
			add(RequirementActiveMembers, decimal.NewFromInt(int64(req.MinActiveMembers)), decimal.NewFromInt(int64(members)))
		}
	}

	if req.RequiresActiveLock {
		locks, err := e.ledger.ListLocks(ctx, userId, models.LockStatusActive)
		if err != nil {
			return nil, nil, storeError(err)
		}
		held := decimal.Zero
		if len(locks) > 0 {
			held = decimal.NewFromInt(1)
		}
		add(RequirementActiveLock, decimal.NewFromInt(1), held)
	}

	return statuses, order, nil
}

// Upgrade raises the user's level to targetLevel when every requirement is
// met. An ineligible request returns the pending requirements and changes
// nothing.
func (e *Evaluator) Upgrade(ctx context.Context, userId string, targetLevel int) (*models.UpgradeResult, error) {
	eligibility, err := e.CheckEligibility(ctx, userId, targetLevel)
	if err != nil {
		return nil, err
	}

	result := &models.UpgradeResult{
		CurrentLevel: eligibility.CurrentLevel,
		Requirements: models.UpgradeRequirements{
			Completed: []string{},
			Pending:   eligibility.MissingRequirements,
		},
	}
	for name, status := range eligibility.Requirements {
		if status.Met {
			result.Requirements.Completed = append(result.Requirements.Completed, name)
		}
	}
	sortByEvaluationOrder(result.Requirements.Completed)

	if !eligibility.Eligible {
		result.Message = fmt.Sprintf("Requirements for level %d not met: %v", targetLevel, eligibility.MissingRequirements)
		return result, nil
	}

	wallet, err := e.ledger.SetSqlLevel(context.WithoutCancel(ctx), userId, targetLevel)
	if err != nil {
		return nil, storeError(err)
	}
	e.cache.Invalidate(ctx, userId)

	e.logger.Info("SQL level upgraded",
		zap.String("user_id", userId),
		zap.Int("from", eligibility.CurrentLevel),
		zap.Int("to", wallet.SqlLevel))

	newLevel := wallet.SqlLevel
	result.Success = true
	result.NewLevel = &newLevel
	result.Message = fmt.Sprintf("Upgraded to level %d", newLevel)
	return result, nil
}

var evaluationOrder = map[string]int{
	RequirementIncome:         0,
	RequirementReferrals:      1,
	RequirementRecentActivity: 2,
	RequirementActiveMembers:  3,
	RequirementActiveLock:     4,
}

func sortByEvaluationOrder(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return evaluationOrder[names[i]] < evaluationOrder[names[j]]
	})
}

func metric(current, required int) models.ProgressMetric {
	percentage := 100.0
	if required > 0 {
		percentage = math.Min(100, float64(current)*100/float64(required))
		percentage = math.Round(percentage*100) / 100
	}
	return models.ProgressMetric{Current: current, Required: required, Percentage: percentage}
}

// Progress reports activity-track progress towards the next level. It may
// be served from the snapshot cache.
func (e *Evaluator) Progress(ctx context.Context, userId string) (*models.SQLProgress, error) {
	var cached models.SQLProgress
	if e.cache.Get(ctx, cache.ProgressKey(userId), &cached) {
		return &cached, nil
	}

	wallet, err := e.ledger.GetWallet(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}

	stats, err := e.ledger.TransactionStats(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}
	days, err := e.activity.CountActivityDays(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}
	referrals, err := e.activity.CountReferrals(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}
	recent, _, err := e.ledger.ListTransactions(ctx, models.TransactionQuery{
		UserId:    userId,
		Page:      1,
		Limit:     recentActivitySize,
		SortBy:    "createdAt",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, storeError(err)
	}
	if recent == nil {
		recent = []models.Transaction{}
	}

	progress := &models.SQLProgress{
		CurrentLevel:          wallet.SqlLevel,
		NextLevel:             e.nextLevel(wallet.SqlLevel),
		MaxLevel:              e.tracks.MaxLevel(),
		RecentActivity:        recent,
		NextLevelRequirements: []models.ChecklistItem{},
	}

	// At the top level progress is measured against the last level's table.
	target := wallet.SqlLevel + 1
	if target > len(e.tracks.Activity) {
		target = len(e.tracks.Activity)
	}
	if req, ok := e.tracks.activityFor(target); ok {
		progress.TransactionCount = metric(stats.CompletedCount, req.TransactionCount)
		progress.ActivityDays = metric(days, req.ActivityDays)
		progress.ReferralCount = metric(referrals, req.ReferralCount)
		if progress.NextLevel != nil {
			progress.NextLevelRequirements = []models.ChecklistItem{
				checklistItem("transactions", stats.CompletedCount, req.TransactionCount),
				checklistItem("activityDays", days, req.ActivityDays),
				checklistItem("referrals", referrals, req.ReferralCount),
			}
		}
	}

	e.cache.Set(ctx, cache.ProgressKey(userId), progress)
	return progress, nil
}

func checklistItem(name string, current, required int) models.ChecklistItem {
	return models.ChecklistItem{
		Name:      name,
		Required:  required,
		Current:   current,
		Completed: current >= required,
	}
}

// Verify reports the user's verification flags. The user is verified once
// PSS, EDR and KYC are all complete.
func (e *Evaluator) Verify(ctx context.Context, userId string) (*models.VerifyResult, error) {
	var cached models.VerifyResult
	if e.cache.Get(ctx, cache.VerifyKey(userId), &cached) {
		return &cached, nil
	}

	wallet, err := e.ledger.GetWallet(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}
	verification, err := e.activity.GetVerification(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}

	result := &models.VerifyResult{
		SqlLevel:     wallet.SqlLevel,
		Status:       models.VerificationPending,
		Requirements: verification,
		NextLevel:    e.nextLevel(wallet.SqlLevel),
	}
	if verification.Complete() {
		result.Status = models.VerificationVerified
	}

	e.cache.Set(ctx, cache.VerifyKey(userId), result)
	return result, nil
}
