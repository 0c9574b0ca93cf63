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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"coin-wallet-go/internal/common"
	"coin-wallet-go/internal/config"
	"coin-wallet-go/internal/database"
	"coin-wallet-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type walletStats struct {
	wallets     int
	withLocks   int
	activeLocks int
	failures    int
	totalLocked decimal.Decimal
	reconciled  int
}

func processWallet(ctx context.Context, wallet models.Wallet, dbService *database.Service, report *common.Report, reconcile bool, stats *walletStats) error {
	locks, err := dbService.ListLocks(ctx, wallet.UserId, "")
	if err != nil {
		return fmt.Errorf("failed to list locks: %w", err)
	}

	report.Wallet(wallet, locks)

	if len(locks) > 0 {
		stats.withLocks++
	}
	for _, lock := range locks {
		if lock.Status == models.LockStatusActive {
			stats.activeLocks++
		}
	}
	stats.totalLocked = stats.totalLocked.Add(wallet.LockedBalance)

	if reconcile {
		if err := dbService.ReconcileWallet(ctx, wallet.UserId); err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		stats.reconciled++
	}
	return nil
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Filter by specific user id (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Check each wallet against its transaction log")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	logger.Info("Starting wallet report")

	// Read-only, so no cache or event publisher
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	wallets, err := common.SelectWallets(ctx, dbService, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to select wallets", zap.Error(err))
	}

	report := common.NewReport(os.Stdout, common.DefaultWidth)
	report.Header("WALLET REPORT")

	stats := walletStats{totalLocked: decimal.Zero}
	for _, wallet := range wallets {
		stats.wallets++
		if err := processWallet(ctx, wallet, dbService, report, *reconcileFlag, &stats); err != nil {
			stats.failures++
			logger.Error("Failed to process wallet",
				zap.String("user_id", wallet.UserId),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d wallets, %d with locks, %d active locks, %s locked in total",
		stats.wallets, stats.withLocks, stats.activeLocks, stats.totalLocked.String())
	if *reconcileFlag {
		summary += fmt.Sprintf(", %d reconciled", stats.reconciled)
	}
	report.Footer(summary)

	logger.Info("Wallet report completed",
		zap.Int("wallets", stats.wallets),
		zap.Int("active_locks", stats.activeLocks),
		zap.Int("failures", stats.failures))
}
