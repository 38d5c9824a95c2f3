package recorder

import (
	"context"
	"time"
)

// CycleRecord summarizes one trading cycle.
type CycleRecord struct {
	CycleID        string
	StartedAt      time.Time
	Duration       time.Duration
	Tracked        int
	Scored         int
	OrdersPlanned  int
	OrdersFailed   int
	PortfolioValue float64
	Drawdown       float64
	Liquidated     bool
	Err            string
}

// OrderRecord is one executed or attempted order.
type OrderRecord struct {
	CycleID       string
	Symbol        string
	Side          string
	Reason        string
	Quantity      string
	Price         string
	Notional      float64
	Simulated     bool
	OrderID       string
	ClientOrderID string
	Status        string
	Err           string
}

// PositionEvent records a position opening, growing or closing.
type PositionEvent struct {
	Symbol     string
	EventType  string // "OPEN", "ADD", "CLOSE"
	Quantity   string
	EntryPrice string
	Reason     string
}

// LiquidationEvent records an emergency liquidation.
type LiquidationEvent struct {
	CycleID  string
	Initial  float64
	Current  float64
	Drawdown float64
	Orders   int
	Failed   int
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordCycle(ctx context.Context, rec *CycleRecord) error
	RecordOrder(ctx context.Context, rec *OrderRecord) error
	RecordPositionEvent(ctx context.Context, evt *PositionEvent) error
	RecordLiquidation(ctx context.Context, evt *LiquidationEvent) error
	Close() error
}
