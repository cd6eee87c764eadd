package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"tradepulse/internal/persistence"
	"tradepulse/internal/strategy"
)

// signalsRepo implements SignalsRepo for PostgreSQL.
type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates a PostgreSQL signals repository.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

// Insert records an emitted signal.
func (r *signalsRepo) Insert(ctx context.Context, s strategy.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO signals (ts, symbol, strategy, kind, price, strength, taken, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		s.Timestamp, s.Symbol, s.Strategy, string(s.Kind), s.Price, s.Strength, s.Taken, s.SkipReason)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// Recent retrieves the most recent signals, newest first.
func (r *signalsRepo) Recent(ctx context.Context, limit int) ([]strategy.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, symbol, strategy, kind, price, strength, taken, skip_reason
		FROM signals
		ORDER BY ts DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent signals: %w", err)
	}
	defer rows.Close()

	var signals []strategy.Signal
	for rows.Next() {
		var (
			s    strategy.Signal
			kind string
		)
		if err := rows.Scan(&s.Timestamp, &s.Symbol, &s.Strategy, &kind, &s.Price, &s.Strength, &s.Taken, &s.SkipReason); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Kind = strategy.SignalKind(kind)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
