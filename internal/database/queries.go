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

const (
	walletColumns = `id, user_id, balance, locked_balance, loyalty_type, sql_level, version, created_at, updated_at`

	lockColumns = `id, wallet_id, user_id, amount, duration_months, bonus_rate, start_date, end_date,
		status, rewards_paid, created_at, updated_at`

	transactionColumns = `id, user_id, type, amount, status, description, lock_id, reference,
		balance_before, balance_after, locked_before, locked_after, failure_reason, created_at, completed_at`

	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, balance, locked_balance, loyalty_type, sql_level, version, created_at, updated_at)
		VALUES (?, ?, '0', '0', ?, 0, 1, ?, ?)`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?`

	queryListWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		ORDER BY created_at`

	queryUpdateWalletBalances = `
		UPDATE wallets
		SET balance = ?, locked_balance = ?, loyalty_type = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`

	queryUpdateWalletLoyalty = `
		UPDATE wallets
		SET loyalty_type = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`

	queryRaiseSqlLevel = `
		UPDATE wallets
		SET sql_level = ?, updated_at = ?, version = version + 1
		WHERE user_id = ? AND sql_level < ?`

	// Coin lock queries
	queryInsertLock = `
		INSERT INTO coin_locks (` + lockColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryLatestLockStart = `
		SELECT MAX(start_date) FROM coin_locks WHERE wallet_id = ?`

	queryGetLock = `
		SELECT ` + lockColumns + `
		FROM coin_locks
		WHERE id = ? AND user_id = ?`

	queryListUserLocks = `
		SELECT ` + lockColumns + `
		FROM coin_locks
		WHERE user_id = ?
		ORDER BY start_date DESC`

	queryListUserLocksByStatus = `
		SELECT ` + lockColumns + `
		FROM coin_locks
		WHERE user_id = ? AND status = ?
		ORDER BY start_date DESC`

	queryListActiveLocks = `
		SELECT ` + lockColumns + `
		FROM coin_locks
		WHERE status = 'active'
		ORDER BY start_date`

	querySumActiveLocks = `
		SELECT amount
		FROM coin_locks
		WHERE user_id = ? AND status = 'active'`

	queryUpdateLock = `
		UPDATE coin_locks
		SET amount = ?, status = ?, rewards_paid = ?, updated_at = ?
		WHERE id = ?`

	// Transaction queries
	queryInsertPendingTransaction = `
		INSERT INTO transactions (id, user_id, type, amount, status, description, lock_id, reference, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?)`

	queryGetTransactionById = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryCompleteTransaction = `
		UPDATE transactions
		SET status = 'completed', lock_id = ?, balance_before = ?, balance_after = ?,
		    locked_before = ?, locked_after = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryFailTransaction = `
		UPDATE transactions
		SET status = 'failed', failure_reason = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryCompletedTransactionAmounts = `
		SELECT type, amount
		FROM transactions
		WHERE user_id = ? AND status = 'completed'`

	queryCompletedTransactionSummary = `
		SELECT COUNT(*), MAX(created_at)
		FROM transactions
		WHERE user_id = ? AND status = 'completed'`

	// Activity queries
	queryInsertReferral = `
		INSERT OR IGNORE INTO referrals (referrer_id, referred_id, created_at) VALUES (?, ?, ?)`

	queryCountReferrals = `
		SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`

	queryCountActiveReferrals = `
		SELECT COUNT(*)
		FROM referrals r
		WHERE r.referrer_id = ?
		  AND (EXISTS (SELECT 1 FROM transactions t
		               WHERE t.user_id = r.referred_id AND t.status = 'completed' AND t.created_at >= ?)
		       OR EXISTS (SELECT 1 FROM activity_log a
		                  WHERE a.user_id = r.referred_id AND a.occurred_at >= ?))`

	queryInsertActivity = `
		INSERT INTO activity_log (user_id, day, occurred_at) VALUES (?, ?, ?)`

	queryCountActivityDays = `
		SELECT COUNT(*) FROM (
			SELECT substr(created_at, 1, 10) AS day FROM transactions WHERE user_id = ? AND status = 'completed'
			UNION
			SELECT day FROM activity_log WHERE user_id = ?
		)`

	queryLastActivity = `
		SELECT MAX(ts) FROM (
			SELECT MAX(created_at) AS ts FROM transactions WHERE user_id = ? AND status = 'completed'
			UNION ALL
			SELECT MAX(occurred_at) AS ts FROM activity_log WHERE user_id = ?
		)`

	queryGetVerification = `
		SELECT pss, edr, kyc FROM verifications WHERE user_id = ?`

	queryUpsertVerification = `
		INSERT INTO verifications (user_id, pss, edr, kyc, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET pss = excluded.pss, edr = excluded.edr, kyc = excluded.kyc,
			updated_at = excluded.updated_at`
)
