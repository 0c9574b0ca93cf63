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
	"os"
	"os/signal"
	"syscall"

	"coin-wallet-go/internal/accrual"
	"coin-wallet-go/internal/common"
	"coin-wallet-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Run a single accrual pass and exit")
	concurrency := flag.Int("concurrency", 4, "Number of users processed in parallel")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	worker := accrual.NewWorker(accrual.WorkerConfig{
		Ledger:      services.Ledger,
		Locks:       services.DbService,
		Interval:    cfg.Accrual.Interval,
		Concurrency: *concurrency,
		Logger:      logger,
	})

	if *once {
		stats, err := worker.RunOnce(ctx)
		if err != nil {
			logger.Error("Accrual pass failed", zap.Error(err))
			return
		}
		logger.Info("Accrual pass finished",
			zap.Int("locks_scanned", stats.LocksScanned),
			zap.Int("rewards_credited", stats.RewardsCredited),
			zap.String("amount_credited", stats.AmountCredited.String()),
			zap.Int("locks_expired", stats.LocksExpired),
			zap.Int("failures", stats.Failures))
		return
	}

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Failed to start accrual worker", zap.Error(err))
	}
	logger.Info("Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	worker.Stop()
}
