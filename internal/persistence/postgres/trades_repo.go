package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tradepulse/internal/persistence"
	"tradepulse/internal/position"
)

// tradesRepo implements TradesRepo for PostgreSQL.
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a PostgreSQL trades repository.
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{db: db, timeout: timeout}
}

// Insert adds a closed-trade record.
func (r *tradesRepo) Insert(ctx context.Context, t position.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trades (id, symbol, strategy, side, entry_price, entry_time,
			exit_price, exit_time, amount, pnl, pnl_pct, fees, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Symbol, t.Strategy, t.Side.String(), t.EntryPrice, t.EntryTime,
		t.ExitPrice, t.ExitTime, t.Amount, t.PnL, t.PnLPct, t.Fees, t.ExitReason.String())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate trade %s: %w", t.ID, err)
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListBySymbol retrieves trades for a symbol within a time range,
// newest first.
func (r *tradesRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]position.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, strategy, side, entry_price, entry_time,
			exit_price, exit_time, amount, pnl, pnl_pct, fees, exit_reason
		FROM trades
		WHERE symbol = $1 AND exit_time >= $2 AND exit_time <= $3
		ORDER BY exit_time DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, symbol, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades by symbol: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Recent retrieves the most recently closed trades across all symbols.
func (r *tradesRepo) Recent(ctx context.Context, limit int) ([]position.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, strategy, side, entry_price, entry_time,
			exit_price, exit_time, amount, pnl, pnl_pct, fees, exit_reason
		FROM trades
		ORDER BY exit_time DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows *sqlx.Rows) ([]position.Trade, error) {
	var trades []position.Trade
	for rows.Next() {
		var (
			t            position.Trade
			side, reason string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Strategy, &side, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.Amount, &t.PnL, &t.PnLPct, &t.Fees, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = parseSide(side)
		t.ExitReason = parseExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func parseSide(s string) position.Side {
	if s == position.Short.String() {
		return position.Short
	}
	return position.Long
}

func parseExitReason(s string) position.ExitReason {
	for _, r := range []position.ExitReason{
		position.StopLoss, position.TrailingStop, position.TakeProfit,
		position.Manual, position.SignalClose, position.Timeout,
	} {
		if r.String() == s {
			return r
		}
	}
	return position.NoExit
}
