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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/events"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// LedgerService validates and applies balance-changing operations on top
// of a LedgerStore. It is the only writer of wallet balances.
type LedgerService struct {
	store     store.LedgerStore
	publisher events.Publisher
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewLedgerService(ledgerStore store.LedgerStore, publisher events.Publisher, logger *zap.Logger) *LedgerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(models.ValidateTransactionQuery, models.TransactionQuery{})

	return &LedgerService{
		store:     ledgerStore,
		publisher: publisher,
		validate:  validate,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, store.ErrTransient) || errors.Is(err, store.ErrConcurrentModification)
}

// retryOnce runs fn and repeats it a single time when the store reports a
// transient failure.
func retryOnce[T any](ctx context.Context, logger *zap.Logger, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !isTransient(err) || ctx.Err() != nil {
		return result, err
	}

	logger.Warn("Transient store failure, retrying once",
		zap.String("operation", operation),
		zap.Error(err))
	return fn()
}

// getWallet reads the wallet, retrying once on a transient store failure.
func (s *LedgerService) getWallet(ctx context.Context, userId string) (*models.Wallet, error) {
	wallet, err := retryOnce(ctx, s.logger, "get wallet", func() (*models.Wallet, error) {
		return s.store.GetWallet(ctx, userId)
	})
	if err != nil {
		return nil, translate(err)
	}
	return wallet, nil
}

func (s *LedgerService) activeLocks(ctx context.Context, userId string) ([]models.CoinLock, error) {
	locks, err := retryOnce(ctx, s.logger, "list locks", func() ([]models.CoinLock, error) {
		return s.store.ListLocks(ctx, userId, models.LockStatusActive)
	})
	if err != nil {
		return nil, translate(err)
	}
	return locks, nil
}

// translate maps store failures onto the client-visible taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrWalletNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "wallet not found", err)
	case errors.Is(err, store.ErrLockNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "coin lock not found", err)
	case errors.Is(err, store.ErrWalletExists):
		return apperr.Wrap(apperr.CodeValidation, "wallet already exists", err)
	case errors.Is(err, store.ErrInsufficientBalance):
		return apperr.Wrap(apperr.CodeInsufficientBalance, "insufficient balance", err)
	case errors.Is(err, store.ErrInsufficientLockedBalance):
		return apperr.Wrap(apperr.CodeInsufficientLockedBalance, "insufficient locked balance", err)
	case errors.Is(err, store.ErrLockNotActive):
		return apperr.Wrap(apperr.CodeValidation, "coin lock is not active", err)
	case errors.Is(err, store.ErrDuplicateTransaction):
		return apperr.Wrap(apperr.CodeConflict, "transaction already recorded", err)
	case errors.Is(err, store.ErrLevelNotHigher):
		return apperr.Wrap(apperr.CodeInvalidTarget, "sql level can only be raised", err)
	default:
		return apperr.Wrap(apperr.CodeInternal, "ledger store failure", err)
	}
}

// describeValidation flattens validator errors into one message.
func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	parts := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		if fieldErr.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fieldErr.Field(), fieldErr.Tag(), fieldErr.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
