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

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"coin-wallet-go/internal/store"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SubledgerService owns the wallet, coin lock and transaction tables.
type SubledgerService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSubledgerService(db *sql.DB, logger *zap.Logger) *SubledgerService {
	return &SubledgerService{
		db:     db,
		logger: logger,
	}
}

func (s *SubledgerService) InitSchema() error {
	schema := `
	-- Wallets (current state, one row per user)
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL DEFAULT '0',
		locked_balance TEXT NOT NULL DEFAULT '0',
		loyalty_type TEXT NOT NULL DEFAULT 'bronze',
		sql_level INTEGER NOT NULL DEFAULT 0 CHECK (sql_level >= 0),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Coin locks (children of a wallet)
	CREATE TABLE IF NOT EXISTS coin_locks (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		duration_months INTEGER NOT NULL CHECK (duration_months IN (3, 6, 12, 24, 36)),
		bonus_rate TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		rewards_paid INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(wallet_id, start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_coin_locks_user_status ON coin_locks(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_coin_locks_status ON coin_locks(status);

	-- Transactions (append-only log)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		description TEXT NOT NULL DEFAULT '',
		lock_id TEXT,
		reference TEXT,
		balance_before TEXT NOT NULL DEFAULT '0',
		balance_after TEXT NOT NULL DEFAULT '0',
		locked_before TEXT NOT NULL DEFAULT '0',
		locked_after TEXT NOT NULL DEFAULT '0',
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_lock_id ON transactions(lock_id);
	-- A reference may be reused only after the earlier attempt failed
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference) WHERE reference IS NOT NULL AND status <> 'failed';
	`

	_, err := s.db.Exec(schema)
	return err
}

// classify maps driver errors onto store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", store.ErrTransient, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders fixed-width UTC timestamps so text ordering matches
// chronological ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
		}
	}
	return t.UTC(), nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
