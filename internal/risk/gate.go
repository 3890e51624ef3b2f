package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
)

// ErrAutomationDisabled is the gate's refusal; carried through to callers
// that try to act for a halted account.
var ErrAutomationDisabled = errors.New("automation disabled for account")

// dayWindow is the fixed daily-loss accounting window, measured from the
// last reset rather than calendar midnight.
const dayWindow = 24 * time.Hour

// Gate is the per-account risk state machine: Active -> Disabled on a
// stop-loss or daily-limit breach, back to Active only through an explicit
// owner resume.
type Gate struct {
	Repo   repository.Repository
	Logger *zap.Logger

	// Now is factored for tests.
	Now func() time.Time
}

func (g *Gate) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

// AutomationAllowed is a pure predicate: true iff the account has no risk
// record or its record is not disabled.
func (g *Gate) AutomationAllowed(ctx context.Context, address string) (bool, error) {
	if g == nil || g.Repo == nil {
		return true, nil
	}
	params, err := g.Repo.GetRiskParamsByAccount(ctx, address)
	if err != nil {
		return false, err
	}
	if params == nil {
		return true, nil
	}
	return !params.AutomationDisabled, nil
}

// RecordLoss lazily rolls the daily counter, accrues the loss, and disables
// automation when the configured daily limit is reached. Returns whether the
// account ended up disabled by this call.
func (g *Gate) RecordLoss(ctx context.Context, address string, amount decimal.Decimal) (bool, error) {
	if g == nil || g.Repo == nil || amount.LessThanOrEqual(decimal.Zero) {
		return false, nil
	}
	params, err := g.Repo.GetRiskParamsByAccount(ctx, address)
	if err != nil {
		return false, err
	}
	if params == nil {
		return false, nil
	}
	now := g.now()
	accrued, lastReset := rollDaily(*params, now)
	accrued = accrued.Add(amount)

	disabled := params.AutomationDisabled
	tripped := false
	if params.DailyMaxLoss.GreaterThan(decimal.Zero) && accrued.GreaterThanOrEqual(params.DailyMaxLoss) {
		disabled = true
		tripped = !params.AutomationDisabled
	}
	if err := g.Repo.SaveRiskStatus(ctx, address, accrued, lastReset, disabled); err != nil {
		return false, err
	}
	if tripped && g.Logger != nil {
		g.Logger.Warn("risk: daily loss limit tripped",
			zap.String("account", address),
			zap.String("accrued", accrued.StringFixed(4)),
			zap.String("limit", params.DailyMaxLoss.StringFixed(4)),
		)
	}
	return tripped, nil
}

// DisableAutomation is the operator-side halt, used by the scheduler when a
// stop-loss trigger fires.
func (g *Gate) DisableAutomation(ctx context.Context, address string) error {
	if g == nil || g.Repo == nil {
		return nil
	}
	params, err := g.Repo.GetRiskParamsByAccount(ctx, address)
	if err != nil {
		return err
	}
	if params == nil {
		// Stop-loss fired for an account without explicit risk params;
		// create the record so the halt sticks.
		now := g.now()
		if err := g.Repo.UpsertRiskParams(ctx, &models.RiskParams{
			AccountAddress: address,
			LastResetAt:    now,
		}); err != nil {
			return err
		}
		return g.Repo.SaveRiskStatus(ctx, address, decimal.Zero, now, true)
	}
	if params.AutomationDisabled {
		return nil
	}
	if err := g.Repo.SaveRiskStatus(ctx, address, params.DailyLossAccrued, params.LastResetAt, true); err != nil {
		return err
	}
	if g.Logger != nil {
		g.Logger.Warn("risk: automation disabled", zap.String("account", address))
	}
	return nil
}

// ResumeAutomation re-arms a halted account. Only the account owner may do
// this: an operator or a compromised delegate must never be able to silently
// re-enable automation after a halt.
func (g *Gate) ResumeAutomation(ctx context.Context, caller auth.Principal, address string) error {
	if g == nil || g.Repo == nil {
		return nil
	}
	if !caller.OwnerOf(address) {
		return auth.ErrUnauthorized
	}
	params, err := g.Repo.GetRiskParamsByAccount(ctx, address)
	if err != nil {
		return err
	}
	if params == nil {
		return repository.ErrNotRegistered
	}
	now := g.now()
	if err := g.Repo.SaveRiskStatus(ctx, address, decimal.Zero, now, false); err != nil {
		return err
	}
	if g.Logger != nil {
		g.Logger.Info("risk: automation resumed by owner", zap.String("account", address))
	}
	return nil
}

// rollDaily applies the lazy daily reset: once a full day has elapsed since
// the last reset the counter restarts at zero. Re-invoking within the same
// window is a no-op.
func rollDaily(params models.RiskParams, now time.Time) (decimal.Decimal, time.Time) {
	if params.LastResetAt.IsZero() || now.Sub(params.LastResetAt) >= dayWindow {
		return decimal.Zero, now
	}
	return params.DailyLossAccrued, params.LastResetAt
}
