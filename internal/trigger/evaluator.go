package trigger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradekeeper/internal/models"
)

// ActionSet is a bitmask over the closed set of action kinds the execute
// phase knows how to dispatch. Evaluated once per pass, consumed once,
// never persisted.
type ActionSet uint8

const (
	ActionBuy ActionSet = 1 << iota
	ActionSell
	ActionStopLoss
	ActionReport
)

func (a ActionSet) Has(kind ActionSet) bool { return a&kind != 0 }
func (a ActionSet) Empty() bool             { return a == 0 }

func (a ActionSet) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	if a.Has(ActionStopLoss) {
		parts = append(parts, "stop_loss")
	}
	if a.Has(ActionBuy) {
		parts = append(parts, "buy")
	}
	if a.Has(ActionSell) {
		parts = append(parts, "sell")
	}
	if a.Has(ActionReport) {
		parts = append(parts, "report")
	}
	return strings.Join(parts, "|")
}

// Snapshot is the read-only per-account view the evaluator works on.
// Any field may be nil when the account never configured that concern.
type Snapshot struct {
	Alert  *models.PriceAlert
	Trade  *models.TradeConfig
	Risk   *models.RiskParams
	Report *models.ReportConfig
}

// Result carries the action set plus whether the price alert fired this
// pass, so the scheduler knows to stamp lastTriggered after execution.
type Result struct {
	Actions    ActionSet
	AlertFired bool
}

// Evaluate combines the four independent trigger checks against one price
// sample. It is pure: safe to re-call during pagination with no state change.
func Evaluate(snap Snapshot, price decimal.Decimal, now time.Time) Result {
	var res Result

	if fired, action := alertTrigger(snap.Alert, price, now); fired {
		res.AlertFired = true
		res.Actions |= action
	}

	if t := snap.Trade; t != nil && t.Active {
		if t.BuyBelowPrice.GreaterThan(decimal.Zero) && price.LessThanOrEqual(t.BuyBelowPrice) {
			res.Actions |= ActionBuy
		}
		if t.SellAbovePrice.GreaterThan(decimal.Zero) && price.GreaterThanOrEqual(t.SellAbovePrice) {
			res.Actions |= ActionSell
		}
	}

	if r := snap.Risk; r != nil {
		if r.StopLossPrice.GreaterThan(decimal.Zero) && price.LessThanOrEqual(r.StopLossPrice) {
			res.Actions |= ActionStopLoss
		}
	}

	if rc := snap.Report; rc != nil && rc.Active && rc.ReportInterval > 0 {
		if rc.LastReportAt == nil || !now.Before(rc.LastReportAt.Add(rc.ReportInterval)) {
			res.Actions |= ActionReport
		}
	}

	return res
}

// alertTrigger checks the price alert: active, cooldown elapsed, threshold
// crossed in the configured direction. It only contributes an action when
// the alert is flagged execute-on-trigger; a bare alert is notification-only
// and is handled by the report collaborator.
func alertTrigger(alert *models.PriceAlert, price decimal.Decimal, now time.Time) (bool, ActionSet) {
	if alert == nil || !alert.Active {
		return false, 0
	}
	if alert.LastTriggeredAt != nil && now.Before(alert.LastTriggeredAt.Add(alert.Cooldown)) {
		return false, 0
	}
	crossed := false
	switch alert.Direction {
	case models.AlertAbove:
		crossed = price.GreaterThanOrEqual(alert.TargetPrice)
	case models.AlertBelow:
		crossed = price.LessThanOrEqual(alert.TargetPrice)
	}
	if !crossed {
		return false, 0
	}
	if !alert.ExecuteAction {
		return false, 0
	}
	// A below-alert that fires means the price dropped to the target: buy.
	// An above-alert that fires means it rose through the target: sell.
	if alert.Direction == models.AlertBelow {
		return true, ActionBuy
	}
	return true, ActionSell
}
