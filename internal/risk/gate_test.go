package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradekeeper/internal/auth"
	"tradekeeper/internal/models"
)

const acct = "0xabc"

func newGate(repo *stubRepo, now time.Time) *Gate {
	return &Gate{Repo: repo, Now: func() time.Time { return now }}
}

func TestAutomationAllowed_DefaultsTrue(t *testing.T) {
	g := newGate(newStubRepo(), time.Unix(0, 0))
	allowed, err := g.AutomationAllowed(context.Background(), acct)
	if err != nil {
		t.Fatalf("AutomationAllowed error: %v", err)
	}
	if !allowed {
		t.Fatalf("account without risk params should be allowed")
	}
}

func TestRecordLoss_TripsAtLimit(t *testing.T) {
	repo := newStubRepo()
	repo.risk[acct] = &models.RiskParams{
		AccountAddress: acct,
		DailyMaxLoss:   decimal.NewFromInt(100),
		LastResetAt:    time.Unix(0, 0).UTC(),
	}
	g := newGate(repo, time.Unix(1000, 0).UTC())

	tripped, err := g.RecordLoss(context.Background(), acct, decimal.NewFromInt(60))
	if err != nil || tripped {
		t.Fatalf("first loss: tripped=%v err=%v", tripped, err)
	}
	tripped, err = g.RecordLoss(context.Background(), acct, decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("second loss error: %v", err)
	}
	if !tripped {
		t.Fatalf("accrued loss reached the limit but did not trip")
	}
	if !repo.risk[acct].AutomationDisabled {
		t.Fatalf("automation should be disabled after trip")
	}
}

func TestRecordLoss_DailyWindowResets(t *testing.T) {
	repo := newStubRepo()
	repo.risk[acct] = &models.RiskParams{
		AccountAddress:   acct,
		DailyMaxLoss:     decimal.NewFromInt(100),
		DailyLossAccrued: decimal.NewFromInt(90),
		LastResetAt:      time.Unix(0, 0).UTC(),
	}
	// Exactly one day after the last reset the counter restarts, so a loss
	// that would have tripped yesterday accrues fresh instead.
	g := newGate(repo, time.Unix(86400, 0).UTC())
	tripped, err := g.RecordLoss(context.Background(), acct, decimal.NewFromInt(50))
	if err != nil || tripped {
		t.Fatalf("post-reset loss: tripped=%v err=%v", tripped, err)
	}
	got := repo.risk[acct].DailyLossAccrued
	if got.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("accrued=%s want 50 after window reset", got)
	}
}

func TestRecordLoss_WithinWindowAccumulates(t *testing.T) {
	repo := newStubRepo()
	repo.risk[acct] = &models.RiskParams{
		AccountAddress:   acct,
		DailyMaxLoss:     decimal.NewFromInt(100),
		DailyLossAccrued: decimal.NewFromInt(30),
		LastResetAt:      time.Unix(0, 0).UTC(),
	}
	g := newGate(repo, time.Unix(86399, 0).UTC())
	if _, err := g.RecordLoss(context.Background(), acct, decimal.NewFromInt(20)); err != nil {
		t.Fatalf("RecordLoss error: %v", err)
	}
	got := repo.risk[acct].DailyLossAccrued
	if got.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("accrued=%s want 50 within window", got)
	}
}

func TestRecordLoss_NoLimitNeverTrips(t *testing.T) {
	repo := newStubRepo()
	repo.risk[acct] = &models.RiskParams{
		AccountAddress: acct,
		LastResetAt:    time.Unix(0, 0).UTC(),
	}
	g := newGate(repo, time.Unix(1000, 0).UTC())
	tripped, err := g.RecordLoss(context.Background(), acct, decimal.NewFromInt(1000000))
	if err != nil || tripped {
		t.Fatalf("zero limit must never trip: tripped=%v err=%v", tripped, err)
	}
}

func TestDisableAutomation_CreatesRecordWhenMissing(t *testing.T) {
	repo := newStubRepo()
	g := newGate(repo, time.Unix(1000, 0).UTC())
	if err := g.DisableAutomation(context.Background(), acct); err != nil {
		t.Fatalf("DisableAutomation error: %v", err)
	}
	p := repo.risk[acct]
	if p == nil || !p.AutomationDisabled {
		t.Fatalf("halt did not stick for account without risk params")
	}

	allowed, err := g.AutomationAllowed(context.Background(), acct)
	if err != nil || allowed {
		t.Fatalf("allowed=%v err=%v after halt", allowed, err)
	}
}

func TestResumeAutomation_OwnerOnly(t *testing.T) {
	repo := newStubRepo()
	repo.risk[acct] = &models.RiskParams{
		AccountAddress:     acct,
		DailyLossAccrued:   decimal.NewFromInt(100),
		LastResetAt:        time.Unix(0, 0).UTC(),
		AutomationDisabled: true,
	}
	g := newGate(repo, time.Unix(5000, 0).UTC())
	ctx := context.Background()

	for _, caller := range []auth.Principal{
		{Role: auth.RoleOperator},
		{Role: auth.RoleDelegate, Address: acct},
		{Role: auth.RoleOwner, Address: "0xother"},
	} {
		err := g.ResumeAutomation(ctx, caller, acct)
		if !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("caller %s/%s: err=%v want ErrUnauthorized", caller.Role, caller.Address, err)
		}
		if !repo.risk[acct].AutomationDisabled {
			t.Fatalf("caller %s re-enabled automation", caller.Role)
		}
	}

	if err := g.ResumeAutomation(ctx, auth.Principal{Role: auth.RoleOwner, Address: acct}, acct); err != nil {
		t.Fatalf("owner resume error: %v", err)
	}
	p := repo.risk[acct]
	if p.AutomationDisabled {
		t.Fatalf("owner resume did not re-enable automation")
	}
	if !p.DailyLossAccrued.IsZero() {
		t.Fatalf("resume should zero the daily counter, got %s", p.DailyLossAccrued)
	}
}
