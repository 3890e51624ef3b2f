package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradekeeper/internal/config"
	"tradekeeper/internal/executor"
	"tradekeeper/internal/fees"
	"tradekeeper/internal/models"
	"tradekeeper/internal/oracle"
	"tradekeeper/internal/report"
	"tradekeeper/internal/repository"
	"tradekeeper/internal/risk"
	"tradekeeper/internal/trigger"
)

// ErrReentrantCall is returned when an execute phase is entered while a
// previous one is still in progress.
var ErrReentrantCall = errors.New("execute phase already in progress")

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type Outcome struct {
	Address string `json:"address"`
	Action  string `json:"action"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type RunResult struct {
	WorkItemID string    `json:"work_item_id"`
	Offset     int64     `json:"offset"`
	Outcomes   []Outcome `json:"outcomes"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

// Scheduler drives the two-phase upkeep protocol: a read-only paginated
// evaluate pass that packs flagged accounts into a work item, and a
// state-changing execute pass that re-validates each account and dispatches
// its highest-priority action, isolating failures per account.
type Scheduler struct {
	Repo     repository.Repository
	Oracle   *oracle.Gateway
	Risk     *risk.Gate
	Executor *executor.Executor
	Reporter report.Reporter
	Fees     *fees.Ledger
	Logger   *zap.Logger
	Config   config.KeeperConfig

	busy atomic.Bool

	// Now is factored for tests.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Scheduler) batchCap() int {
	if s != nil && s.Config.BatchCap > 0 {
		return s.Config.BatchCap
	}
	return 10
}

// CheckWork is the read-only evaluate phase. It scans one window of the
// registry starting at offset, skips inactive and risk-disabled accounts,
// evaluates triggers against a single oracle sample, and returns an encoded
// work item when any account needs work. It mutates nothing and is safe to
// call repeatedly.
func (s *Scheduler) CheckWork(ctx context.Context, offset int64) (bool, []byte, error) {
	if s == nil || s.Repo == nil {
		return false, nil, nil
	}
	// One sample for the whole pass: every account's decision is made
	// against the same price. An untrusted oracle aborts the entire
	// evaluate step rather than skipping individual accounts.
	sample, err := s.Oracle.Price(ctx)
	if err != nil {
		return false, nil, err
	}
	now := s.now()

	accounts, err := s.Repo.ListAccountsByScanIndex(ctx, offset, s.batchCap())
	if err != nil {
		return false, nil, err
	}

	var entries []WorkEntry
	for _, account := range accounts {
		if !account.Active {
			continue
		}
		snap, err := s.loadSnapshot(ctx, account.Address)
		if err != nil {
			return false, nil, err
		}
		if snap.Risk != nil && snap.Risk.AutomationDisabled {
			continue
		}
		res := trigger.Evaluate(snap, sample.Price, now)
		if res.Actions.Empty() {
			continue
		}
		entries = append(entries, WorkEntry{
			Address:    account.Address,
			Actions:    res.Actions,
			AlertFired: res.AlertFired,
		})
	}
	if len(entries) == 0 {
		return false, nil, nil
	}

	raw, err := WorkItem{
		V:       workItemVersion,
		ID:      uuid.NewString(),
		Offset:  offset,
		Sample:  sample,
		Entries: entries,
	}.Encode()
	if err != nil {
		return false, nil, err
	}
	return true, raw, nil
}

// DoWork is the state-changing execute phase. The work item is structurally
// validated as a whole; per-account work is then re-validated and executed
// with failures contained to the account they occurred on. DoWork succeeds
// at the protocol level even when zero accounts were actioned; operators
// inspect the run's outcomes and emitted records, not call success.
func (s *Scheduler) DoWork(ctx context.Context, encoded []byte) (*RunResult, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	item, err := decodeWorkItem(encoded, s.batchCap())
	if err != nil {
		return nil, err
	}
	// Executing a swap can re-enter through the settlement-asset wrapper;
	// nested execute phases are rejected.
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer s.busy.Store(false)

	// The world may have moved since CheckWork: act on a fresh sample, not
	// the one the decision was made on.
	sample, err := s.Oracle.Price(ctx)
	if err != nil {
		return nil, err
	}

	started := s.now()
	result := &RunResult{WorkItemID: item.ID, Offset: item.Offset}
	for _, entry := range item.Entries {
		outcome := s.processEntry(ctx, entry, sample)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case OutcomeSuccess:
			result.Succeeded++
		case OutcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	s.persistRun(ctx, item, result, started)
	if s.Logger != nil {
		s.Logger.Info("upkeep executed",
			zap.String("work_item_id", item.ID),
			zap.Int64("offset", item.Offset),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// processEntry re-validates one account and runs its highest-priority
// action. Stop-loss is exclusive: it halts automation, attempts a
// liquidating sell, and skips everything else for the account.
func (s *Scheduler) processEntry(ctx context.Context, entry WorkEntry, sample oracle.Sample) Outcome {
	account, err := s.Repo.GetAccountByAddress(ctx, entry.Address)
	if err != nil {
		return Outcome{Address: entry.Address, Status: OutcomeFailed, Error: err.Error()}
	}
	if account == nil || !account.Active {
		return Outcome{Address: entry.Address, Status: OutcomeSkipped, Error: "account inactive"}
	}
	allowed, err := s.Risk.AutomationAllowed(ctx, entry.Address)
	if err != nil {
		return Outcome{Address: entry.Address, Status: OutcomeFailed, Error: err.Error()}
	}
	if !allowed {
		return Outcome{Address: entry.Address, Status: OutcomeSkipped, Error: "automation disabled"}
	}

	if entry.Actions.Has(trigger.ActionStopLoss) {
		return s.runStopLoss(ctx, entry, sample)
	}

	var (
		action  string
		execErr error
	)
	switch {
	case entry.Actions.Has(trigger.ActionBuy):
		action = "buy"
		_, execErr = s.Executor.ExecuteBuy(ctx, entry.Address, sample)
	case entry.Actions.Has(trigger.ActionSell):
		action = "sell"
		_, execErr = s.Executor.ExecuteSell(ctx, entry.Address, sample)
	case entry.Actions.Has(trigger.ActionReport):
		action = "report"
		execErr = s.emitReport(ctx, entry.Address)
	default:
		return Outcome{Address: entry.Address, Status: OutcomeSkipped, Error: "no executable action"}
	}
	if execErr != nil {
		if s.Logger != nil {
			s.Logger.Warn("upkeep action failed",
				zap.String("account", entry.Address),
				zap.String("action", action),
				zap.Error(execErr),
			)
		}
		return Outcome{Address: entry.Address, Action: action, Status: OutcomeFailed, Error: execErr.Error()}
	}
	s.finishProcessed(ctx, entry)
	return Outcome{Address: entry.Address, Action: action, Status: OutcomeSuccess}
}

func (s *Scheduler) runStopLoss(ctx context.Context, entry WorkEntry, sample oracle.Sample) Outcome {
	if err := s.Risk.DisableAutomation(ctx, entry.Address); err != nil {
		return Outcome{Address: entry.Address, Action: "stop_loss", Status: OutcomeFailed, Error: err.Error()}
	}
	// The liquidating sell is best-effort: the halt stands even if the
	// swap cannot be completed this cycle.
	if _, err := s.Executor.ExecuteStopLossSell(ctx, entry.Address, sample); err != nil && s.Logger != nil {
		s.Logger.Warn("stop-loss liquidation failed",
			zap.String("account", entry.Address),
			zap.Error(err),
		)
	}
	s.finishProcessed(ctx, entry)
	return Outcome{Address: entry.Address, Action: "stop_loss", Status: OutcomeSuccess}
}

// finishProcessed applies the scheduler-owned status writes for a
// successfully processed account: alert cooldown stamp, report stamp, and
// the flat upkeep fee.
func (s *Scheduler) finishProcessed(ctx context.Context, entry WorkEntry) {
	now := s.now()
	if entry.AlertFired {
		if err := s.Repo.SetAlertTriggeredAt(ctx, entry.Address, now); err != nil && s.Logger != nil {
			s.Logger.Warn("alert stamp failed", zap.String("account", entry.Address), zap.Error(err))
		}
	}
	if s.Fees != nil {
		if err := s.Fees.Accrue(ctx, entry.Address); err != nil && s.Logger != nil {
			s.Logger.Warn("fee accrual failed", zap.String("account", entry.Address), zap.Error(err))
		}
	}
}

func (s *Scheduler) emitReport(ctx context.Context, address string) error {
	if s.Reporter == nil {
		return nil
	}
	if err := s.Reporter.CheckAndEmitReport(ctx, address); err != nil {
		return err
	}
	return s.Repo.SetReportLastAt(ctx, address, s.now())
}

func (s *Scheduler) loadSnapshot(ctx context.Context, address string) (trigger.Snapshot, error) {
	var snap trigger.Snapshot
	var err error
	if snap.Alert, err = s.Repo.GetPriceAlertByAccount(ctx, address); err != nil {
		return snap, err
	}
	if snap.Trade, err = s.Repo.GetTradeConfigByAccount(ctx, address); err != nil {
		return snap, err
	}
	if snap.Risk, err = s.Repo.GetRiskParamsByAccount(ctx, address); err != nil {
		return snap, err
	}
	if snap.Report, err = s.Repo.GetReportConfigByAccount(ctx, address); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Scheduler) persistRun(ctx context.Context, item WorkItem, result *RunResult, started time.Time) {
	raw, err := json.Marshal(result.Outcomes)
	if err != nil {
		raw = []byte("[]")
	}
	run := &models.UpkeepRun{
		WorkItemID: item.ID,
		Offset:     item.Offset,
		BatchSize:  len(item.Entries),
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Outcomes:   datatypes.JSON(raw),
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if err := s.Repo.InsertUpkeepRun(ctx, run); err != nil && s.Logger != nil {
		s.Logger.Warn("upkeep run insert failed", zap.Error(err))
	}
}

// RunSweep walks the whole registry once, window by window, pairing
// CheckWork and DoWork per window. It is what the cron cadence drives; the
// HTTP endpoints expose the same two calls to external keeper processes
// that want to partition the registry themselves.
func (s *Scheduler) RunSweep(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	total, err := s.Repo.CountAccounts(ctx)
	if err != nil {
		return err
	}
	cap64 := int64(s.batchCap())
	for offset := int64(0); offset < total; offset += cap64 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hasWork, encoded, err := s.CheckWork(ctx, offset)
		if err != nil {
			return err
		}
		if !hasWork {
			continue
		}
		if _, err := s.DoWork(ctx, encoded); err != nil {
			return err
		}
	}
	return nil
}
