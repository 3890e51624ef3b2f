package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradekeeper/internal/config"
	"tradekeeper/internal/executor"
	"tradekeeper/internal/repository"
)

// ErrNothingOwed is returned when a payment is attempted with a zero balance.
var ErrNothingOwed = errors.New("no fees owed")

// Ledger accrues a flat fee per processed upkeep trigger and settles it
// later through a pull-style transfer at the user's initiative. There is no
// automatic deduction.
type Ledger struct {
	Repo    repository.Repository
	Wrapper executor.AssetWrapper
	Logger  *zap.Logger
	Config  config.FeesConfig

	// Now is factored for tests.
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// Enabled reports whether a fee asset is configured at all.
func (l *Ledger) Enabled() bool {
	return l != nil && l.Config.Asset != "" && l.Config.PerTrigger > 0
}

// Accrue adds the flat per-trigger fee to the account's balance. A no-op
// when no fee asset is configured.
func (l *Ledger) Accrue(ctx context.Context, account string) error {
	if !l.Enabled() || l.Repo == nil {
		return nil
	}
	return l.Repo.AccrueFee(ctx, account, decimal.NewFromFloat(l.Config.PerTrigger))
}

// Owed returns the account's current balance.
func (l *Ledger) Owed(ctx context.Context, account string) (decimal.Decimal, error) {
	if l == nil || l.Repo == nil {
		return decimal.Zero, nil
	}
	entry, err := l.Repo.GetFeeEntryByAccount(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if entry == nil {
		return decimal.Zero, nil
	}
	return entry.Owed, nil
}

// Pay pulls the full owed amount from the account to the collector and
// zeroes the balance. The balance is settled before the transfer so a retry
// after a failure can never pull the same amount twice; a failed transfer
// re-credits the settled amount.
func (l *Ledger) Pay(ctx context.Context, account string) (decimal.Decimal, error) {
	if l == nil || l.Repo == nil {
		return decimal.Zero, nil
	}
	paid, err := l.Repo.SettleFees(ctx, account, l.now())
	if err != nil {
		return decimal.Zero, err
	}
	if paid.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrNothingOwed
	}
	if l.Wrapper != nil && l.Config.Collector != "" {
		if err := l.Wrapper.TransferFrom(ctx, l.Config.Asset, account, l.Config.Collector, paid); err != nil {
			if rerr := l.Repo.RestoreFees(ctx, account, paid); rerr != nil && l.Logger != nil {
				l.Logger.Error("fee re-credit failed after transfer error",
					zap.String("account", account),
					zap.String("amount", paid.StringFixed(4)),
					zap.Error(rerr),
				)
			}
			return decimal.Zero, fmt.Errorf("%w: %v", executor.ErrTransferFailed, err)
		}
	}
	if l.Logger != nil {
		l.Logger.Info("fees paid",
			zap.String("account", account),
			zap.String("amount", paid.StringFixed(4)),
		)
	}
	return paid, nil
}
