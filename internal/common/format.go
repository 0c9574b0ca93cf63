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
	"fmt"
	"io"
	"strings"

	"coin-wallet-go/internal/models"
)

// DefaultWidth is the report width in columns.
const DefaultWidth = 80

// Report renders box-drawn wallet reports to a writer.
type Report struct {
	w     io.Writer
	width int
}

func NewReport(w io.Writer, width int) *Report {
	return &Report{w: w, width: width}
}

func (r *Report) separator(char string) {
	fmt.Fprintln(r.w, strings.Repeat(char, r.width))
}

// Header prints a title framed by separators.
func (r *Report) Header(title string) {
	fmt.Fprintln(r.w)
	r.separator("=")
	fmt.Fprintln(r.w, title)
	r.separator("=")
}

// Footer prints a closing message framed by separators.
func (r *Report) Footer(message string) {
	fmt.Fprintln(r.w)
	r.separator("=")
	fmt.Fprintln(r.w, message)
	r.separator("=")
	fmt.Fprintln(r.w)
}

// Wallet prints a wallet block followed by one line per lock.
func (r *Report) Wallet(wallet models.Wallet, locks []models.CoinLock) {
	fmt.Fprintf(r.w, "\n┌─ User: %s\n", wallet.UserId)
	fmt.Fprintf(r.w, "│  Wallet: %s (v%d, updated: %s)\n",
		ShortId(wallet.Id), wallet.Version, wallet.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(r.w, "│  Balance: %s  Locked: %s  Loyalty: %s  SQL level: %d\n",
		wallet.Balance.String(), wallet.LockedBalance.String(), wallet.LoyaltyType, wallet.SqlLevel)
	fmt.Fprintln(r.w, "├"+strings.Repeat("─", r.width-2))

	if len(locks) == 0 {
		fmt.Fprintln(r.w, "└  no coin locks")
		return
	}
	for i, lock := range locks {
		fmt.Fprintf(r.w, "%s %-10s %14s  %2dm @ %-5s  rewards %d/%d  ends %s  [%s]\n",
			boxPrefix(i == len(locks)-1),
			ShortId(lock.Id),
			lock.Amount.String(),
			lock.DurationMonths,
			lock.BonusRate.String(),
			lock.RewardsPaid,
			lock.DurationMonths,
			lock.EndDate.Format("2006-01-02"),
			lock.Status)
	}
}

func boxPrefix(isLast bool) string {
	if isLast {
		return "└ "
	}
	return "│ "
}

// ShortId abbreviates a uuid for display.
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
