package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"tradepulse/internal/persistence"
	"tradepulse/internal/position"
	"tradepulse/internal/strategy"
)

// Store bundles the repositories behind the engine's persistence
// contract.
type Store struct {
	Trades    persistence.TradesRepo
	Signals   persistence.SignalsRepo
	Snapshots persistence.SnapshotsRepo
}

// NewStore builds a Store over one database handle.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{
		Trades:    NewTradesRepo(db, timeout),
		Signals:   NewSignalsRepo(db, timeout),
		Snapshots: NewSnapshotsRepo(db, timeout),
	}
}

func (s *Store) SaveTrade(ctx context.Context, t position.Trade) error {
	return s.Trades.Insert(ctx, t)
}

func (s *Store) SaveSignal(ctx context.Context, sig strategy.Signal) error {
	return s.Signals.Insert(ctx, sig)
}

func (s *Store) SavePositionSnapshot(ctx context.Context, p position.Position) error {
	return s.Snapshots.Insert(ctx, p)
}
