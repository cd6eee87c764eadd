package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"tradepulse/internal/persistence"
	"tradepulse/internal/position"
)

// snapshotsRepo implements SnapshotsRepo for PostgreSQL.
type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates a PostgreSQL position-snapshot repository.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotsRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

// Insert records the state of an open position at snapshot time.
func (r *snapshotsRepo) Insert(ctx context.Context, p position.Position) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO position_snapshots (position_id, symbol, strategy, side,
			entry_price, entry_time, amount, stop_loss, take_profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Symbol, p.Strategy, p.Side.String(),
		p.EntryPrice, p.EntryTime, p.Amount, p.StopLoss, p.TakeProfit)
	if err != nil {
		return fmt.Errorf("failed to insert position snapshot: %w", err)
	}
	return nil
}
