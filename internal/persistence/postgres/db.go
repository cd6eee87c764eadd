package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	entry_time  TIMESTAMPTZ NOT NULL,
	exit_price  DOUBLE PRECISION NOT NULL,
	exit_time   TIMESTAMPTZ NOT NULL,
	amount      DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	pnl_pct     DOUBLE PRECISION NOT NULL,
	fees        DOUBLE PRECISION NOT NULL,
	exit_reason TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS trades_symbol_exit_idx ON trades (symbol, exit_time DESC);

CREATE TABLE IF NOT EXISTS signals (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	symbol      TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	strength    DOUBLE PRECISION NOT NULL,
	taken       BOOLEAN NOT NULL,
	skip_reason TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS signals_ts_idx ON signals (ts DESC);

CREATE TABLE IF NOT EXISTS position_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	position_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	entry_time  TIMESTAMPTZ NOT NULL,
	amount      DOUBLE PRECISION NOT NULL,
	stop_loss   DOUBLE PRECISION NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Connect opens the database and verifies the connection.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
