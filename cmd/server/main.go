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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"coin-wallet-go/internal/accrual"
	"coin-wallet-go/internal/common"
	"coin-wallet-go/internal/config"
	"coin-wallet-go/internal/httpapi"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting coin wallet server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("auth_mode", string(cfg.Auth.Mode)),
		zap.Bool("accrual_enabled", cfg.Accrual.Enabled))

	services, err := common.InitializeServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	handler := httpapi.NewHandler(services.Ledger, services.Progression, services.Gate, services.Cache, logger)
	var root http.Handler = httpapi.NewRouter(cfg.Server, cfg.Auth, handler, logger)
	if cfg.Server.EnableH2C {
		root = h2c.NewHandler(root, &http2.Server{})
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var worker *accrual.Worker
	if cfg.Accrual.Enabled {
		worker = accrual.NewWorker(accrual.WorkerConfig{
			Ledger:   services.Ledger,
			Locks:    services.DbService,
			Interval: cfg.Accrual.Interval,
			Logger:   logger,
		})
		if err := worker.Start(ctx); err != nil {
			logger.Fatal("Failed to start accrual worker", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr), zap.Bool("h2c", cfg.Server.EnableH2C))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if worker != nil {
			worker.Stop()
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped gracefully")
}
