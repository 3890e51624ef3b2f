package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradekeeper/internal/config"
)

var (
	ErrStalePrice   = errors.New("oracle data is stale")
	ErrInvalidRound = errors.New("oracle round is not the latest completed round")
	ErrInvalidPrice = errors.New("oracle price is not positive")
)

// Round is one reporting round from the price feed collaborator.
type Round struct {
	RoundID         uint64          `json:"round_id"`
	Answer          decimal.Decimal `json:"answer"`
	UpdatedAt       time.Time       `json:"updated_at"`
	AnsweredInRound uint64          `json:"answered_in_round"`
}

// RoundSource is the external feed boundary.
type RoundSource interface {
	LatestRound(ctx context.Context) (Round, error)
}

// Sample is a validated price observation. One Sample is taken per
// evaluate or execute pass and threaded through every component in that
// pass; re-sampling mid-pass is what the Gateway exists to prevent.
type Sample struct {
	Price     decimal.Decimal `json:"price"`
	RoundID   uint64          `json:"round_id"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Gateway struct {
	Source RoundSource
	Config config.OracleConfig

	// Now is factored for tests.
	Now func() time.Time
}

func (g *Gateway) Price(ctx context.Context) (Sample, error) {
	if g == nil || g.Source == nil {
		return Sample{}, errors.New("oracle source not configured")
	}
	round, err := g.Source.LatestRound(ctx)
	if err != nil {
		return Sample{}, err
	}
	now := time.Now().UTC()
	if g.Now != nil {
		now = g.Now()
	}
	threshold := g.Config.FreshnessThreshold
	if threshold <= 0 {
		threshold = time.Hour
	}
	if round.UpdatedAt.IsZero() || now.Sub(round.UpdatedAt) > threshold {
		return Sample{}, ErrStalePrice
	}
	if round.AnsweredInRound < round.RoundID {
		return Sample{}, ErrInvalidRound
	}
	if round.Answer.LessThanOrEqual(decimal.Zero) {
		return Sample{}, ErrInvalidPrice
	}
	return Sample{
		Price:     round.Answer,
		RoundID:   round.RoundID,
		UpdatedAt: round.UpdatedAt,
	}, nil
}
