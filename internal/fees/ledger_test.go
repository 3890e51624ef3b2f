package fees

import (
	"context"
	"errors"
	"testing"

	"time"

	"github.com/shopspring/decimal"

	"tradekeeper/internal/config"
	"tradekeeper/internal/executor"
)

const acct = "0xuser"

type recordingWrapper struct {
	asset, from, to string
	amount          decimal.Decimal
	fail            bool
}

func (w *recordingWrapper) TransferFrom(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	if w.fail {
		return errors.New("allowance too low")
	}
	w.asset, w.from, w.to, w.amount = asset, from, to, amount
	return nil
}

func (w *recordingWrapper) Transfer(ctx context.Context, asset, to string, amount decimal.Decimal) error {
	return nil
}
func (w *recordingWrapper) Withdraw(ctx context.Context, amount decimal.Decimal) error { return nil }
func (w *recordingWrapper) TransferNative(ctx context.Context, to string, amount decimal.Decimal) error {
	return nil
}
func (w *recordingWrapper) BalanceOf(ctx context.Context, asset, holder string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

var testPaidAt = time.Unix(5000, 0).UTC()

func newLedger(repo *stubRepo, w executor.AssetWrapper) *Ledger {
	return &Ledger{
		Repo:    repo,
		Wrapper: w,
		Config:  config.FeesConfig{Asset: "LINK", PerTrigger: 0.1, Collector: "0xcollector"},
		Now:     func() time.Time { return testPaidAt },
	}
}

func TestLedger_DisabledWithoutAsset(t *testing.T) {
	repo := newStubRepo()
	l := &Ledger{Repo: repo, Config: config.FeesConfig{PerTrigger: 0.1}}
	if l.Enabled() {
		t.Fatalf("ledger with no fee asset must be disabled")
	}
	if err := l.Accrue(context.Background(), acct); err != nil {
		t.Fatalf("disabled accrue error: %v", err)
	}
	if len(repo.fees) != 0 {
		t.Fatalf("disabled ledger wrote a fee entry")
	}
}

func TestLedger_AccrueAndPay(t *testing.T) {
	repo := newStubRepo()
	w := &recordingWrapper{}
	l := newLedger(repo, w)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Accrue(ctx, acct); err != nil {
			t.Fatalf("Accrue error: %v", err)
		}
	}
	owed, err := l.Owed(ctx, acct)
	if err != nil {
		t.Fatalf("Owed error: %v", err)
	}
	want := decimal.NewFromFloat(0.3)
	if owed.Cmp(want) != 0 {
		t.Fatalf("owed=%s want %s", owed, want)
	}

	paid, err := l.Pay(ctx, acct)
	if err != nil {
		t.Fatalf("Pay error: %v", err)
	}
	if paid.Cmp(want) != 0 {
		t.Fatalf("paid=%s want %s", paid, want)
	}
	if w.asset != "LINK" || w.from != acct || w.to != "0xcollector" || w.amount.Cmp(want) != 0 {
		t.Fatalf("transfer=%s %s->%s %s", w.asset, w.from, w.to, w.amount)
	}

	owed, err = l.Owed(ctx, acct)
	if err != nil || !owed.IsZero() {
		t.Fatalf("owed=%s err=%v after settlement", owed, err)
	}
	if at := repo.fees[acct].LastPaidAt; at == nil || !at.Equal(testPaidAt) {
		t.Fatalf("last_paid_at=%v want %v", at, testPaidAt)
	}
}

func TestLedger_PayNothingOwed(t *testing.T) {
	l := newLedger(newStubRepo(), &recordingWrapper{})
	if _, err := l.Pay(context.Background(), acct); !errors.Is(err, ErrNothingOwed) {
		t.Fatalf("err=%v want ErrNothingOwed", err)
	}
}

func TestLedger_FailedTransferRestoresBalance(t *testing.T) {
	repo := newStubRepo()
	w := &recordingWrapper{fail: true}
	l := newLedger(repo, w)
	ctx := context.Background()

	if err := l.Accrue(ctx, acct); err != nil {
		t.Fatalf("Accrue error: %v", err)
	}
	if _, err := l.Pay(ctx, acct); !errors.Is(err, executor.ErrTransferFailed) {
		t.Fatalf("err=%v want ErrTransferFailed", err)
	}
	fee := decimal.NewFromFloat(0.1)
	owed, _ := l.Owed(ctx, acct)
	if owed.Cmp(fee) != 0 {
		t.Fatalf("owed=%s want 0.1 after failed transfer", owed)
	}
	if repo.fees[acct].TotalAccrued.Cmp(fee) != 0 {
		t.Fatalf("total_accrued=%s changed by the failed payment", repo.fees[acct].TotalAccrued)
	}

	// A retry pulls the fee exactly once.
	w.fail = false
	paid, err := l.Pay(ctx, acct)
	if err != nil {
		t.Fatalf("retry Pay error: %v", err)
	}
	if paid.Cmp(fee) != 0 || w.amount.Cmp(fee) != 0 {
		t.Fatalf("retry paid=%s transferred=%s want 0.1", paid, w.amount)
	}
	if owed, _ := l.Owed(ctx, acct); !owed.IsZero() {
		t.Fatalf("owed=%s after retry", owed)
	}
}
