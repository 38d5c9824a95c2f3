package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"BasketPilot/internal/logger"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log logger.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite_recorder_opened", logger.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id        TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			duration_ms     INTEGER,
			tracked         INTEGER,
			scored          INTEGER,
			orders_planned  INTEGER,
			orders_failed   INTEGER,
			portfolio_value REAL,
			drawdown        REAL,
			liquidated      INTEGER,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(timestamp)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id        TEXT,
			timestamp       INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			side            TEXT NOT NULL,
			reason          TEXT,
			quantity        TEXT,
			price           TEXT,
			notional        REAL,
			simulated       INTEGER,
			order_id        TEXT,
			client_order_id TEXT,
			status          TEXT,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,

		`CREATE TABLE IF NOT EXISTS position_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			quantity    TEXT,
			entry_price TEXT,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_events_ts ON position_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS liquidations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id  TEXT,
			timestamp INTEGER NOT NULL,
			initial   REAL,
			current   REAL,
			drawdown  REAL,
			orders    INTEGER,
			failed    INTEGER
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %.40q: %w", s, err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO cycles
		(cycle_id, timestamp, duration_ms, tracked, scored, orders_planned, orders_failed,
		 portfolio_value, drawdown, liquidated, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.CycleID, rec.StartedAt.Unix(), rec.Duration.Milliseconds(),
		rec.Tracked, rec.Scored, rec.OrdersPlanned, rec.OrdersFailed,
		rec.PortfolioValue, rec.Drawdown, boolInt(rec.Liquidated), rec.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordOrder(ctx context.Context, rec *OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO orders
		(cycle_id, timestamp, symbol, side, reason, quantity, price, notional, simulated,
		 order_id, client_order_id, status, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.CycleID, time.Now().Unix(), rec.Symbol, rec.Side, rec.Reason,
		rec.Quantity, rec.Price, rec.Notional, boolInt(rec.Simulated),
		rec.OrderID, rec.ClientOrderID, rec.Status, rec.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordPositionEvent(ctx context.Context, evt *PositionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO position_events
		(timestamp, symbol, event_type, quantity, entry_price, reason)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.EventType, evt.Quantity, evt.EntryPrice, evt.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordLiquidation(ctx context.Context, evt *LiquidationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO liquidations
		(cycle_id, timestamp, initial, current, drawdown, orders, failed)
		VALUES (?,?,?,?,?,?,?)`,
		evt.CycleID, time.Now().Unix(), evt.Initial, evt.Current, evt.Drawdown, evt.Orders, evt.Failed,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("sqlite_recorder_closing")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
