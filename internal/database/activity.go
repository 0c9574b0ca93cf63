package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coin-wallet-go/internal/models"

	"go.uber.org/zap"
)

func (s *Service) initActivitySchema() error {
	schema := `
	-- Referrals supplied by the referral collaborator
	CREATE TABLE IF NOT EXISTS referrals (
		referrer_id TEXT NOT NULL,
		referred_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (referrer_id, referred_id)
	);

	CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id);

	-- Platform activity outside the ledger (logins, posts, sessions)
	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_log_user_day ON activity_log(user_id, day);
	CREATE INDEX IF NOT EXISTS idx_activity_log_user_time ON activity_log(user_id, occurred_at);

	CREATE TABLE IF NOT EXISTS verifications (
		user_id TEXT PRIMARY KEY,
		pss INTEGER NOT NULL DEFAULT 0,
		edr INTEGER NOT NULL DEFAULT 0,
		kyc INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Service) CountReferrals(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountReferrals, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", classify(err))
	}
	return count, nil
}

// CountActiveReferrals counts referred users with completed transactions or
// recorded activity at or after since.
func (s *Service) CountActiveReferrals(ctx context.Context, userId string, since time.Time) (int, error) {
	var count int
	sinceStr := formatTime(since)
	if err := s.db.QueryRowContext(ctx, queryCountActiveReferrals, userId, sinceStr, sinceStr).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active referrals: %w", classify(err))
	}
	return count, nil
}

// CountActivityDays counts distinct UTC days with ledger or platform activity.
func (s *Service) CountActivityDays(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountActivityDays, userId, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activity days: %w", classify(err))
	}
	return count, nil
}

func (s *Service) LastActivity(ctx context.Context, userId string) (*time.Time, error) {
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, queryLastActivity, userId, userId).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last activity: %w", classify(err))
	}
	return parseNullTime(last)
}

// GetVerification returns the user's verification flags; unknown users have none.
func (s *Service) GetVerification(ctx context.Context, userId string) (models.Verification, error) {
	var v models.Verification
	err := s.db.QueryRowContext(ctx, queryGetVerification, userId).Scan(&v.Pss, &v.Edr, &v.Kyc)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Verification{}, nil
	}
	if err != nil {
		return models.Verification{}, fmt.Errorf("failed to get verification: %w", classify(err))
	}
	return v, nil
}

// RecordReferral is idempotent; a user can only be referred once.
func (s *Service) RecordReferral(ctx context.Context, referrerId, referredId string) error {
	if referrerId == referredId {
		return fmt.Errorf("user %s cannot refer themselves", referrerId)
	}
	_, err := s.db.ExecContext(ctx, queryInsertReferral, referrerId, referredId, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record referral: %w", classify(err))
	}
	s.logger.Info("Referral recorded", zap.String("referrer_id", referrerId), zap.String("referred_id", referredId))
	return nil
}

func (s *Service) RecordActivity(ctx context.Context, userId string, at time.Time) error {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx, queryInsertActivity, userId, at.Format(time.DateOnly), formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", classify(err))
	}
	return nil
}

func (s *Service) SetVerification(ctx context.Context, userId string, verification models.Verification) error {
	_, err := s.db.ExecContext(ctx, queryUpsertVerification,
		userId, verification.Pss, verification.Edr, verification.Kyc, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set verification: %w", classify(err))
	}
	s.logger.Info("Verification updated",
		zap.String("user_id", userId),
		zap.Bool("pss", verification.Pss),
		zap.Bool("edr", verification.Edr),
		zap.Bool("kyc", verification.Kyc))
	return nil
}
