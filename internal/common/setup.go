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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"coin-wallet-go/internal/api"
	"coin-wallet-go/internal/cache"
	"coin-wallet-go/internal/database"
	"coin-wallet-go/internal/eligibility"
	"coin-wallet-go/internal/events"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/progression"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the wired application graph shared by the commands.
type Services struct {
	DbService   *database.Service
	Ledger      *api.LedgerService
	Progression *progression.Evaluator
	Gate        *eligibility.Gate
	Cache       *cache.Snapshots
	Publisher   events.Publisher

	closers []func()
}

// BootstrapLogger reports failures that happen before the configured logger
// exists, such as an invalid configuration.
func BootstrapLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

func InitializeLogger(cfg models.LogConfig) (*zap.Logger, func()) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			log.Printf("Unknown LOG_LEVEL %q, using %s\n", cfg.Level, zapCfg.Level.Level())
		} else {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store and builds every service on top of it.
// Redis and Kafka are optional and skipped when unconfigured.
func InitializeServices(ctx context.Context, cfg *models.Config, logger *zap.Logger) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}
	services.closers = append(services.closers, dbService.Close)

	tracks, err := progression.LoadTracks(cfg.Requirements.LevelsFile)
	if err != nil {
		services.Close()
		return nil, err
	}
	modules, err := eligibility.LoadModules(cfg.Requirements.ModulesFile)
	if err != nil {
		services.Close()
		return nil, err
	}
	logger.Info("Requirement tables loaded",
		zap.Int("levels", tracks.MaxLevel()),
		zap.Int("modules", len(modules)))

	snapshots, closeCache, err := cache.Connect(ctx, cfg.Redis, logger)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.closers = append(services.closers, closeCache)

	publisher, err := events.New(cfg.Kafka, logger)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.closers = append(services.closers, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	})

	services.Cache = snapshots
	services.Publisher = publisher
	services.Ledger = api.NewLedgerService(dbService, publisher, logger)
	services.Progression = progression.NewEvaluator(dbService, dbService, tracks, snapshots, logger)
	services.Gate = eligibility.NewGate(dbService, modules, logger)
	return services, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like wallet reports
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config, logger *zap.Logger) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return dbService, nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
