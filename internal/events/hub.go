package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tradekeeper/internal/models"
)

// Hub fans trade records out to live subscribers (the websocket stream,
// tests). Publishing never blocks: a subscriber that falls behind drops
// records, the durable copy lives in the trade_records table.
type Hub struct {
	mu     sync.RWMutex
	subs   []chan models.TradeRecord
	logger *zap.Logger

	dropped uint64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger}
}

func (h *Hub) Subscribe(buf int) <-chan models.TradeRecord {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan models.TradeRecord, buf)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it. Safe to call with a
// channel the hub no longer holds.
func (h *Hub) Unsubscribe(ch <-chan models.TradeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub == ch {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (h *Hub) Publish(record models.TradeRecord) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- record:
		default:
			n := atomic.AddUint64(&h.dropped, 1)
			if h.logger != nil && n%100 == 1 {
				h.logger.Warn("event hub dropped records on slow subscriber", zap.Uint64("total_dropped", n))
			}
		}
	}
}

func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
