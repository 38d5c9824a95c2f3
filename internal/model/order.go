package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reason tags orders generated by the risk manager.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonStopLoss    Reason = "STOP_LOSS"
	ReasonTakeProfit  Reason = "TAKE_PROFIT"
	ReasonLiquidation Reason = "LIQUIDATION"
)

// Order is an exchange-ready market order. Quantity is already truncated to
// the symbol's lot size.
type Order struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal // reference price at generation time
	Reason   Reason
	ClientID string // idempotency key sent with live orders
}

// Closing reports whether the order closes a tracked position.
func (o Order) Closing() bool {
	return o.Reason == ReasonStopLoss || o.Reason == ReasonTakeProfit
}

// Notional returns quantity * price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// Receipt is the exchange acknowledgement of a submitted order.
type Receipt struct {
	OrderID       string
	ClientOrderID string
	Status        string
	ExecutedQty   decimal.Decimal
	Simulated     bool
	At            time.Time
}

// Fill is the outcome of executing one order. Err is nil when the order was
// accepted (or logged, in simulation mode).
type Fill struct {
	Order   Order
	Receipt Receipt
	Err     error
}

// Executed reports whether the order went through.
func (f Fill) Executed() bool { return f.Err == nil }
