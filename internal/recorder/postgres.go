package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"BasketPilot/internal/logger"
)

// PostgresRecorder persists historical data to PostgreSQL.
type PostgresRecorder struct {
	db  *pgxpool.Pool
	log logger.Logger
}

// NewPostgresRecorder connects to url and runs migrations.
func NewPostgresRecorder(ctx context.Context, url string, log logger.Logger) (*PostgresRecorder, error) {
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{db: db, log: log}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("postgres_recorder_opened")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              BIGSERIAL PRIMARY KEY,
			cycle_id        TEXT NOT NULL,
			started_at      TIMESTAMPTZ NOT NULL,
			duration_ms     BIGINT,
			tracked         INTEGER,
			scored          INTEGER,
			orders_planned  INTEGER,
			orders_failed   INTEGER,
			portfolio_value DOUBLE PRECISION,
			drawdown        DOUBLE PRECISION,
			liquidated      BOOLEAN,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id              BIGSERIAL PRIMARY KEY,
			cycle_id        TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			symbol          TEXT NOT NULL,
			side            TEXT NOT NULL,
			reason          TEXT,
			quantity        NUMERIC,
			price           NUMERIC,
			notional        DOUBLE PRECISION,
			simulated       BOOLEAN,
			order_id        TEXT,
			client_order_id TEXT,
			status          TEXT,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at)`,

		`CREATE TABLE IF NOT EXISTS position_events (
			id          BIGSERIAL PRIMARY KEY,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			symbol      TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			quantity    NUMERIC,
			entry_price NUMERIC,
			reason      TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS liquidations (
			id         BIGSERIAL PRIMARY KEY,
			cycle_id   TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			initial    DOUBLE PRECISION,
			current    DOUBLE PRECISION,
			drawdown   DOUBLE PRECISION,
			orders     INTEGER,
			failed     INTEGER
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %.40q: %w", s, err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `INSERT INTO cycles
		(cycle_id, started_at, duration_ms, tracked, scored, orders_planned, orders_failed,
		 portfolio_value, drawdown, liquidated, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.CycleID, rec.StartedAt, rec.Duration.Milliseconds(),
		rec.Tracked, rec.Scored, rec.OrdersPlanned, rec.OrdersFailed,
		rec.PortfolioValue, rec.Drawdown, rec.Liquidated, rec.Err,
	)
	return err
}

func (r *PostgresRecorder) RecordOrder(ctx context.Context, rec *OrderRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `INSERT INTO orders
		(cycle_id, symbol, side, reason, quantity, price, notional, simulated,
		 order_id, client_order_id, status, error)
		VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9,$10,$11,$12)`,
		rec.CycleID, rec.Symbol, rec.Side, rec.Reason, nullable(rec.Quantity), nullable(rec.Price),
		rec.Notional, rec.Simulated, rec.OrderID, rec.ClientOrderID, rec.Status, rec.Err,
	)
	return err
}

func (r *PostgresRecorder) RecordPositionEvent(ctx context.Context, evt *PositionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `INSERT INTO position_events
		(symbol, event_type, quantity, entry_price, reason)
		VALUES ($1,$2,$3::numeric,$4::numeric,$5)`,
		evt.Symbol, evt.EventType, nullable(evt.Quantity), nullable(evt.EntryPrice), evt.Reason,
	)
	return err
}

func (r *PostgresRecorder) RecordLiquidation(ctx context.Context, evt *LiquidationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	_, err := r.db.Exec(ctx, `INSERT INTO liquidations
		(cycle_id, initial, current, drawdown, orders, failed)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		evt.CycleID, evt.Initial, evt.Current, evt.Drawdown, evt.Orders, evt.Failed,
	)
	return err
}

func (r *PostgresRecorder) Close() error {
	r.log.Info("postgres_recorder_closing")
	r.db.Close()
	return nil
}

// nullable maps "" to NULL so numeric columns accept missing values.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
