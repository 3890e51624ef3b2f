package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// StreamSource keeps the latest round from a websocket price feed in memory.
// LatestRound never blocks on the network; the Gateway's freshness check
// naturally rejects a cache that stopped updating.
type StreamSource struct {
	URL    string
	Logger *zap.Logger

	mu     sync.RWMutex
	latest Round
	seen   bool
}

type streamEnvelope struct {
	RoundID         uint64          `json:"round_id"`
	Answer          decimal.Decimal `json:"answer"`
	UpdatedAt       int64           `json:"updated_at"`
	AnsweredInRound uint64          `json:"answered_in_round"`
}

func (s *StreamSource) LatestRound(ctx context.Context) (Round, error) {
	if s == nil {
		return Round{}, errors.New("stream source is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return Round{}, errors.New("no round received from stream yet")
	}
	return s.latest, nil
}

// Run maintains the subscription, reconnecting with backoff until ctx ends.
func (s *StreamSource) Run(ctx context.Context) error {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return errors.New("stream url is required")
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.readLoop(ctx)
		if err != nil && s.Logger != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Warn("oracle stream disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *StreamSource) readLoop(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	if s.Logger != nil {
		s.Logger.Info("oracle stream connected", zap.String("url", s.URL))
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env streamEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.RoundID == 0 {
			continue
		}
		s.mu.Lock()
		if env.RoundID >= s.latest.RoundID {
			s.latest = Round{
				RoundID:         env.RoundID,
				Answer:          env.Answer,
				UpdatedAt:       time.Unix(env.UpdatedAt, 0).UTC(),
				AnsweredInRound: env.AnsweredInRound,
			}
			s.seen = true
		}
		s.mu.Unlock()
	}
}
