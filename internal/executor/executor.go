package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradekeeper/internal/config"
	"tradekeeper/internal/events"
	"tradekeeper/internal/models"
	"tradekeeper/internal/oracle"
	"tradekeeper/internal/repository"
	"tradekeeper/internal/risk"
)

var (
	ErrSlippageExceeded = errors.New("swap output below minimum acceptable amount")
	ErrTransferFailed   = errors.New("fund transfer failed")
	ErrReentrantCall    = errors.New("executor call already in progress")
	ErrNoTradeConfig    = errors.New("account has no active trade config")
)

// SwapParams is the exchange collaborator's exact-input single-hop request.
type SwapParams struct {
	TokenIn      string
	TokenOut     string
	FeeTier      int
	Recipient    string
	Deadline     time.Time
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	PriceLimit   decimal.Decimal
}

// Exchange performs the swap and returns the amount actually received.
type Exchange interface {
	SwapExactInput(ctx context.Context, params SwapParams) (decimal.Decimal, error)
}

// AssetWrapper is the settlement-asset custody collaborator: allowance-based
// pulls, plain transfers, and wrap/unwrap between the tokenized and native
// forms of the settlement asset.
type AssetWrapper interface {
	TransferFrom(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
	Transfer(ctx context.Context, asset, to string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, amount decimal.Decimal) error
	TransferNative(ctx context.Context, to string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, asset, holder string) (decimal.Decimal, error)
}

// Executor runs one atomic swap per call on behalf of one account. It holds
// funds only within a single call; the pull, swap, and forward happen before
// the call returns.
type Executor struct {
	Repo     repository.Repository
	Risk     *risk.Gate
	Exchange Exchange
	Wrapper  AssetWrapper
	Hub      *events.Hub
	Logger   *zap.Logger

	Config  config.ExecutorConfig
	Address string // the executor's own custody identity at the wrapper
	Base    string // base asset symbol
	Quote   string // quote (settlement) asset symbol

	busy atomic.Bool
	Now  func() time.Time
}

func (e *Executor) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// ExecuteBuy pulls the configured quote amount from the user, swaps it for
// the base asset, unwraps and forwards the proceeds to the user in the same
// call. Returns the amount delivered.
func (e *Executor) ExecuteBuy(ctx context.Context, account string, sample oracle.Sample) (decimal.Decimal, error) {
	return e.execute(ctx, account, sample, models.TradeKindBuy)
}

// ExecuteSell pulls the configured base amount from the user and swaps it
// for the quote asset, with the exchange delivering output directly to the
// user. Returns the amount delivered.
func (e *Executor) ExecuteSell(ctx context.Context, account string, sample oracle.Sample) (decimal.Decimal, error) {
	return e.execute(ctx, account, sample, models.TradeKindSell)
}

// ExecuteStopLossSell is the best-effort liquidation attempted after a
// stop-loss halt. It bypasses the automation-allowed check: the account has
// just been disabled and this is the one trade the halt itself demands.
func (e *Executor) ExecuteStopLossSell(ctx context.Context, account string, sample oracle.Sample) (decimal.Decimal, error) {
	return e.executeLocked(ctx, account, sample, models.TradeKindStopLossSell)
}

func (e *Executor) execute(ctx context.Context, account string, sample oracle.Sample, kind string) (decimal.Decimal, error) {
	if e == nil {
		return decimal.Zero, errors.New("executor not configured")
	}
	if e.Risk != nil {
		allowed, err := e.Risk.AutomationAllowed(ctx, account)
		if err != nil {
			return decimal.Zero, err
		}
		if !allowed {
			return decimal.Zero, risk.ErrAutomationDisabled
		}
	}
	return e.executeLocked(ctx, account, sample, kind)
}

func (e *Executor) executeLocked(ctx context.Context, account string, sample oracle.Sample, kind string) (decimal.Decimal, error) {
	// Swapping can re-enter through the wrapper callbacks; nested calls are
	// rejected outright rather than queued.
	if !e.busy.CompareAndSwap(false, true) {
		return decimal.Zero, ErrReentrantCall
	}
	defer e.busy.Store(false)

	cfg, err := e.Repo.GetTradeConfigByAccount(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if cfg == nil || !cfg.Active {
		return decimal.Zero, ErrNoTradeConfig
	}

	var amountIn decimal.Decimal
	switch kind {
	case models.TradeKindBuy:
		amountIn = cfg.BuyAmount
	default:
		amountIn = cfg.SellAmount
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: zero trade amount", ErrNoTradeConfig)
	}

	slippageBps := cfg.SlippageBps
	if slippageBps <= 0 {
		slippageBps = e.Config.DefaultSlippageBps
	}
	if slippageBps > models.MaxSlippageBps {
		slippageBps = models.MaxSlippageBps
	}

	deadlineWindow := e.Config.SwapDeadline
	if deadlineWindow <= 0 {
		deadlineWindow = 60 * time.Second
	}
	now := e.now()
	deadline := now.Add(deadlineWindow)

	var received decimal.Decimal
	switch kind {
	case models.TradeKindBuy:
		received, err = e.buy(ctx, account, cfg, amountIn, sample, slippageBps, deadline)
	default:
		received, err = e.sell(ctx, account, cfg, amountIn, sample, slippageBps, deadline)
	}
	if err != nil {
		return decimal.Zero, err
	}

	// A fill below the oracle-fair output is a realized slippage loss;
	// feed it to the risk gate in quote units so the daily limit sees it.
	if e.Risk != nil {
		expected := expectedOutput(kind, amountIn, sample.Price)
		if shortfall := expected.Sub(received); shortfall.GreaterThan(decimal.Zero) {
			loss := shortfall
			if kind != models.TradeKindSell {
				loss = shortfall.Mul(sample.Price)
			}
			if _, err := e.Risk.RecordLoss(ctx, account, loss); err != nil && e.Logger != nil {
				e.Logger.Warn("loss accrual failed", zap.String("account", account), zap.Error(err))
			}
		}
	}

	record := models.TradeRecord{
		RecordID:       uuid.NewString(),
		AccountAddress: account,
		Kind:           kind,
		AmountIn:       amountIn,
		AmountOut:      received,
		MinAmountOut:   MinAmountOut(expectedOutput(kind, amountIn, sample.Price), slippageBps),
		OraclePrice:    sample.Price,
		SlippageBps:    slippageBps,
		FeeTier:        cfg.FeeTier,
		ExecutedAt:     now,
	}
	if err := e.Repo.InsertTradeRecord(ctx, &record); err != nil && e.Logger != nil {
		e.Logger.Warn("trade record insert failed", zap.String("account", account), zap.Error(err))
	}
	if e.Hub != nil {
		e.Hub.Publish(record)
	}
	if e.Logger != nil {
		e.Logger.Info("trade executed",
			zap.String("account", account),
			zap.String("kind", kind),
			zap.String("amount_in", amountIn.String()),
			zap.String("amount_out", received.String()),
			zap.String("oracle_price", sample.Price.String()),
			zap.Int("slippage_bps", slippageBps),
		)
	}
	return received, nil
}

func (e *Executor) buy(ctx context.Context, account string, cfg *models.TradeConfig, amountIn decimal.Decimal, sample oracle.Sample, slippageBps int, deadline time.Time) (decimal.Decimal, error) {
	// Pull the quote amount under the user's standing allowance.
	if err := e.Wrapper.TransferFrom(ctx, e.Quote, account, e.Address, amountIn); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	minOut := MinAmountOut(expectedOutput(models.TradeKindBuy, amountIn, sample.Price), slippageBps)
	received, err := e.Exchange.SwapExactInput(ctx, SwapParams{
		TokenIn:      e.Quote,
		TokenOut:     e.Base,
		FeeTier:      cfg.FeeTier,
		Recipient:    e.Address,
		Deadline:     deadline,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if received.LessThan(minOut) {
		return decimal.Zero, ErrSlippageExceeded
	}
	// Unwrap the received base balance and forward it to the user before
	// returning; the executor never carries a balance across calls.
	if err := e.Wrapper.Withdraw(ctx, received); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.Wrapper.TransferNative(ctx, account, received); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return received, nil
}

func (e *Executor) sell(ctx context.Context, account string, cfg *models.TradeConfig, amountIn decimal.Decimal, sample oracle.Sample, slippageBps int, deadline time.Time) (decimal.Decimal, error) {
	if err := e.Wrapper.TransferFrom(ctx, e.Base, account, e.Address, amountIn); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	minOut := MinAmountOut(expectedOutput(models.TradeKindSell, amountIn, sample.Price), slippageBps)
	received, err := e.Exchange.SwapExactInput(ctx, SwapParams{
		TokenIn:      e.Base,
		TokenOut:     e.Quote,
		FeeTier:      cfg.FeeTier,
		Recipient:    account, // quote output goes straight to the user
		Deadline:     deadline,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if received.LessThan(minOut) {
		return decimal.Zero, ErrSlippageExceeded
	}
	return received, nil
}

// expectedOutput derives the fair output from the oracle price, never from
// the exchange's own quote. Price is quote units per base unit.
func expectedOutput(kind string, amountIn, price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if kind == models.TradeKindBuy {
		return amountIn.Div(price)
	}
	return amountIn.Mul(price)
}

// MinAmountOut is the sandwich-protection bound:
// expected * (10000 - slippageBps) / 10000. Never zero for a positive
// expected output.
func MinAmountOut(expected decimal.Decimal, slippageBps int) decimal.Decimal {
	if expected.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > models.MaxSlippageBps {
		slippageBps = models.MaxSlippageBps
	}
	return expected.
		Mul(decimal.NewFromInt(int64(10000 - slippageBps))).
		Div(decimal.NewFromInt(10000))
}
