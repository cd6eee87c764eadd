// Package persistence defines the storage contracts the trading core
// writes through. Implementations live in subpackages.
package persistence

import (
	"context"
	"time"

	"tradepulse/internal/position"
	"tradepulse/internal/strategy"
)

// TimeRange bounds history queries, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// TradesRepo stores closed-trade records.
type TradesRepo interface {
	Insert(ctx context.Context, t position.Trade) error
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]position.Trade, error)
	Recent(ctx context.Context, limit int) ([]position.Trade, error)
}

// SignalsRepo stores every emitted signal, taken or not, for later
// strategy review.
type SignalsRepo interface {
	Insert(ctx context.Context, s strategy.Signal) error
	Recent(ctx context.Context, limit int) ([]strategy.Signal, error)
}

// SnapshotsRepo stores point-in-time open-position state.
type SnapshotsRepo interface {
	Insert(ctx context.Context, p position.Position) error
}
