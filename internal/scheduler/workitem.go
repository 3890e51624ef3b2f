package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tradekeeper/internal/oracle"
	"tradekeeper/internal/trigger"
)

// ErrMalformedWorkItem means the encoded work item failed structural
// validation. This is a protocol-integrity failure and aborts the whole
// execute call, unlike per-account execution failures.
var ErrMalformedWorkItem = errors.New("malformed work item")

const workItemVersion = 1

type WorkEntry struct {
	Address    string            `json:"address"`
	Actions    trigger.ActionSet `json:"actions"`
	AlertFired bool              `json:"alert_fired,omitempty"`
}

// WorkItem is the opaque payload handed from the evaluate phase to the
// execute phase. It carries the oracle sample the decision was made on so
// operators can audit the gap between evaluation and execution.
type WorkItem struct {
	V       int           `json:"v"`
	ID      string        `json:"id"`
	Offset  int64         `json:"offset"`
	Sample  oracle.Sample `json:"sample"`
	Entries []WorkEntry   `json:"entries"`
}

const allActions = trigger.ActionBuy | trigger.ActionSell | trigger.ActionStopLoss | trigger.ActionReport

func (w WorkItem) Encode() ([]byte, error) {
	return json.Marshal(w)
}

// ScopeToAccount narrows an encoded work item to the entries belonging to
// one account and re-encodes it. It reports false when nothing remains, so
// scoped callers see "no work" rather than other accounts' pending actions.
func ScopeToAccount(encoded []byte, address string) (bool, []byte, error) {
	var item WorkItem
	if err := json.Unmarshal(encoded, &item); err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrMalformedWorkItem, err)
	}
	var kept []WorkEntry
	for _, entry := range item.Entries {
		if strings.EqualFold(strings.TrimSpace(entry.Address), strings.TrimSpace(address)) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		return false, nil, nil
	}
	item.Entries = kept
	raw, err := item.Encode()
	if err != nil {
		return false, nil, err
	}
	return true, raw, nil
}

// CoveredAccounts returns the trimmed entry addresses of an encoded work
// item without validating it further; the execute phase repeats the full
// structural checks. It is for callers that must authorize an item before
// handing it to DoWork.
func CoveredAccounts(encoded []byte) ([]string, error) {
	var item WorkItem
	if err := json.Unmarshal(encoded, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWorkItem, err)
	}
	addresses := make([]string, 0, len(item.Entries))
	for _, entry := range item.Entries {
		addresses = append(addresses, strings.TrimSpace(entry.Address))
	}
	return addresses, nil
}

func decodeWorkItem(raw []byte, batchCap int) (WorkItem, error) {
	var item WorkItem
	if len(raw) == 0 {
		return WorkItem{}, fmt.Errorf("%w: empty payload", ErrMalformedWorkItem)
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return WorkItem{}, fmt.Errorf("%w: %v", ErrMalformedWorkItem, err)
	}
	if item.V != workItemVersion {
		return WorkItem{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedWorkItem, item.V)
	}
	if len(item.Entries) == 0 {
		return WorkItem{}, fmt.Errorf("%w: no entries", ErrMalformedWorkItem)
	}
	if batchCap > 0 && len(item.Entries) > batchCap {
		return WorkItem{}, fmt.Errorf("%w: %d entries exceeds batch cap %d", ErrMalformedWorkItem, len(item.Entries), batchCap)
	}
	seen := make(map[string]struct{}, len(item.Entries))
	for _, entry := range item.Entries {
		addr := strings.TrimSpace(entry.Address)
		if addr == "" {
			return WorkItem{}, fmt.Errorf("%w: entry with empty address", ErrMalformedWorkItem)
		}
		if _, dup := seen[addr]; dup {
			return WorkItem{}, fmt.Errorf("%w: duplicate address %s", ErrMalformedWorkItem, addr)
		}
		seen[addr] = struct{}{}
		if entry.Actions.Empty() {
			return WorkItem{}, fmt.Errorf("%w: entry %s has no actions", ErrMalformedWorkItem, addr)
		}
		if entry.Actions&^allActions != 0 {
			return WorkItem{}, fmt.Errorf("%w: entry %s has unknown action bits", ErrMalformedWorkItem, addr)
		}
	}
	return item, nil
}
