package rewards

import (
	"errors"
	"fmt"
	"time"

	"coin-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedDuration = errors.New("unsupported lock duration")

// Tier maps a lock duration to its fixed monthly bonus rate.
type Tier struct {
	DurationMonths int
	Rate           decimal.Decimal
}

var bonusTiers = []Tier{
	{DurationMonths: 3, Rate: decimal.RequireFromString("0.03")},
	{DurationMonths: 6, Rate: decimal.RequireFromString("0.03")},
	{DurationMonths: 12, Rate: decimal.RequireFromString("0.05")},
	{DurationMonths: 24, Rate: decimal.RequireFromString("0.08")},
	{DurationMonths: 36, Rate: decimal.RequireFromString("0.12")},
}

type loyaltyBracket struct {
	min   decimal.Decimal
	tier  models.LoyaltyTier
	bonus decimal.Decimal
}

// Ordered highest first.
var loyaltyBrackets = []loyaltyBracket{
	{min: decimal.NewFromInt(1000), tier: models.LoyaltyPlatinum, bonus: decimal.RequireFromString("0.10")},
	{min: decimal.NewFromInt(500), tier: models.LoyaltyGold, bonus: decimal.RequireFromString("0.08")},
	{min: decimal.NewFromInt(250), tier: models.LoyaltySilver, bonus: decimal.RequireFromString("0.05")},
	{min: decimal.Zero, tier: models.LoyaltyBronze, bonus: decimal.RequireFromString("0.03")},
}

func init() {
	if err := ValidateTiers(bonusTiers); err != nil {
		panic(err)
	}
}

// ValidateTiers checks durations strictly ascend and rates never decrease.
func ValidateTiers(tiers []Tier) error {
	for i := 1; i < len(tiers); i++ {
		prev, cur := tiers[i-1], tiers[i]
		if cur.DurationMonths <= prev.DurationMonths {
			return fmt.Errorf("bonus table durations must ascend: %d after %d", cur.DurationMonths, prev.DurationMonths)
		}
		if cur.Rate.LessThan(prev.Rate) {
			return fmt.Errorf("bonus rate for %d months (%s) is lower than for %d months (%s)",
				cur.DurationMonths, cur.Rate, prev.DurationMonths, prev.Rate)
		}
	}
	return nil
}

func BonusRate(durationMonths int) (decimal.Decimal, error) {
	for _, tier := range bonusTiers {
		if tier.DurationMonths == durationMonths {
			return tier.Rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %d months", ErrUnsupportedDuration, durationMonths)
}

func SupportedDurations() []int {
	durations := make([]int, 0, len(bonusTiers))
	for _, tier := range bonusTiers {
		durations = append(durations, tier.DurationMonths)
	}
	return durations
}

func MonthlyReward(lock models.CoinLock) decimal.Decimal {
	return lock.Amount.Mul(lock.BonusRate)
}

func TotalReward(lock models.CoinLock) decimal.Decimal {
	return MonthlyReward(lock).Mul(decimal.NewFromInt(int64(lock.DurationMonths)))
}

// RemainingReward is what the lock will still pay if held to maturity.
func RemainingReward(lock models.CoinLock) decimal.Decimal {
	remaining := lock.DurationMonths - lock.RewardsPaid
	if remaining <= 0 || lock.Status != models.LockStatusActive {
		return decimal.Zero
	}
	return MonthlyReward(lock).Mul(decimal.NewFromInt(int64(remaining)))
}

// AddMonths adds calendar months, clamping the day to the target month's
// last day (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}

// NextRewardDate walks from the lock start in whole months and returns the
// first date that is not before now. At the start instant that is the start
// itself.
func NextRewardDate(lock models.CoinLock, now time.Time) time.Time {
	n := 0
	next := lock.StartDate
	for next.Before(now) {
		n++
		next = AddMonths(lock.StartDate, n)
	}
	return next
}

// ElapsedMonths counts monthly anniversaries reached by now, capped at the
// lock duration.
func ElapsedMonths(lock models.CoinLock, now time.Time) int {
	elapsed := 0
	for elapsed < lock.DurationMonths && !AddMonths(lock.StartDate, elapsed+1).After(now) {
		elapsed++
	}
	return elapsed
}

// DueRewardMonths is the number of reached months not yet credited.
func DueRewardMonths(lock models.CoinLock, now time.Time) int {
	if lock.Status != models.LockStatusActive {
		return 0
	}
	due := ElapsedMonths(lock, now) - lock.RewardsPaid
	if due < 0 {
		return 0
	}
	return due
}

// Matured reports whether every reward was paid and the end date passed.
func Matured(lock models.CoinLock, now time.Time) bool {
	return lock.RewardsPaid >= lock.DurationMonths && !now.Before(lock.EndDate)
}

// UpgradeOptions lists longer tiers that pay a strictly higher rate, with the
// extra reward the lock would earn over the longer duration.
func UpgradeOptions(lock models.CoinLock) []models.UpgradeOption {
	options := []models.UpgradeOption{}
	for _, tier := range bonusTiers {
		if tier.DurationMonths <= lock.DurationMonths || !tier.Rate.GreaterThan(lock.BonusRate) {
			continue
		}
		additional := lock.Amount.
			Mul(tier.Rate.Sub(lock.BonusRate)).
			Mul(decimal.NewFromInt(int64(tier.DurationMonths)))
		options = append(options, models.UpgradeOption{
			DurationMonths:   tier.DurationMonths,
			BonusRate:        tier.Rate,
			AdditionalReward: additional,
		})
	}
	return options
}

// LoyaltyTierFor derives the tier from the cumulative locked balance.
// Anything below the silver threshold, including nothing locked, is bronze.
func LoyaltyTierFor(lockedBalance decimal.Decimal) models.LoyaltyTier {
	for _, bracket := range loyaltyBrackets {
		if lockedBalance.GreaterThanOrEqual(bracket.min) {
			return bracket.tier
		}
	}
	return models.LoyaltyBronze
}

func LoyaltyBonus(tier models.LoyaltyTier) decimal.Decimal {
	for _, bracket := range loyaltyBrackets {
		if bracket.tier == tier {
			return bracket.bonus
		}
	}
	return decimal.Zero
}

// Snapshot computes the reward view of a lock at now.
func Snapshot(lock models.CoinLock, now time.Time) models.LockRewardSnapshot {
	snapshot := models.LockRewardSnapshot{
		CoinLock:        lock,
		MonthlyReward:   MonthlyReward(lock),
		TotalReward:     TotalReward(lock),
		RemainingReward: RemainingReward(lock),
		UpgradeOptions:  UpgradeOptions(lock),
	}
	if lock.Status == models.LockStatusActive {
		next := NextRewardDate(lock, now)
		if !next.After(lock.EndDate) {
			snapshot.NextRewardDate = &next
		}
	}
	return snapshot
}
