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

package eligibility

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"coin-wallet-go/internal/apperr"
	"coin-wallet-go/internal/models"
	"coin-wallet-go/internal/rewards"
	"coin-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

//go:embed modules.yaml
var defaultModules []byte

// WalletReader is the read side of the ledger the gate needs.
type WalletReader interface {
	GetWallet(ctx context.Context, userId string) (*models.Wallet, error)
}

// Gate decides module access from a wallet snapshot. The requirement table
// is loaded once and never changes afterwards.
type Gate struct {
	wallets WalletReader
	modules map[string]models.ModuleRequirement
	logger  *zap.Logger
}

// LoadModules reads the module table from path, or the embedded defaults
// when path is empty.
func LoadModules(path string) (map[string]models.ModuleRequirement, error) {
	raw := defaultModules
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read module requirements %s: %w", path, err)
		}
	}

	var file models.ModuleRequirementsFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse module requirements: %w", err)
	}
	for name, req := range file.Modules {
		if req.MinBalance < 0 || req.MinLockedBalance < 0 {
			return nil, fmt.Errorf("module %s: thresholds cannot be negative", name)
		}
		if req.RequiredLoyaltyTier == "" {
			req.RequiredLoyaltyTier = models.LoyaltyNone
			file.Modules[name] = req
		}
		if !req.RequiredLoyaltyTier.Valid() {
			return nil, fmt.Errorf("module %s: unknown loyalty tier %q", name, req.RequiredLoyaltyTier)
		}
	}
	return file.Modules, nil
}

func NewGate(wallets WalletReader, modules map[string]models.ModuleRequirement, logger *zap.Logger) *Gate {
	return &Gate{
		wallets: wallets,
		modules: modules,
		logger:  logger,
	}
}

// Modules returns the configured module names, sorted.
func (g *Gate) Modules() []string {
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether the wallet meets every threshold of the module.
// Reason lists each unmet threshold.
func (g *Gate) Check(ctx context.Context, userId, module string) (*models.ModuleEligibility, error) {
	req, ok := g.modules[module]
	if !ok {
		return nil, apperr.Newf(apperr.CodeUnknownModule, "unknown module %q", module)
	}

	wallet, err := g.wallets.GetWallet(ctx, userId)
	if errors.Is(err, store.ErrWalletNotFound) {
		return nil, apperr.Wrap(apperr.CodeNotFound, "wallet not found", err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read wallet", err)
	}

	unmet := Evaluate(req, wallet.Balance, wallet.LockedBalance)
	result := &models.ModuleEligibility{
		Module:     module,
		IsEligible: len(unmet) == 0,
		Reason:     strings.Join(unmet, "; "),
	}

	g.logger.Debug("Module eligibility checked",
		zap.String("user_id", userId),
		zap.String("module", module),
		zap.Bool("eligible", result.IsEligible))
	return result, nil
}

// Evaluate returns a description of every threshold in req that the given
// balances miss.
func Evaluate(req models.ModuleRequirement, balance, locked decimal.Decimal) []string {
	var unmet []string

	minBalance := decimal.NewFromFloat(req.MinBalance)
	if balance.LessThan(minBalance) {
		unmet = append(unmet, fmt.Sprintf("balance %s is below minBalance %s", balance, minBalance))
	}

	minLocked := decimal.NewFromFloat(req.MinLockedBalance)
	if locked.LessThan(minLocked) {
		unmet = append(unmet, fmt.Sprintf("lockedBalance %s is below minLockedBalance %s", locked, minLocked))
	}

	tier := rewards.LoyaltyTierFor(locked)
	if tier.Rank() < req.RequiredLoyaltyTier.Rank() {
		unmet = append(unmet, fmt.Sprintf("loyalty tier %s is below requiredLoyaltyTier %s", tier, req.RequiredLoyaltyTier))
	}
	return unmet
}
