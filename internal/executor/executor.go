// Package executor is the execution sink: it logs orders in simulation mode
// and submits them to the exchange in live mode.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BasketPilot/internal/logger"
	"BasketPilot/internal/metrics"
	"BasketPilot/internal/model"
	"BasketPilot/internal/notifier"
	"BasketPilot/internal/recorder"
)

// Submitter places a market order on the exchange.
type Submitter interface {
	SubmitOrder(ctx context.Context, order model.Order) (model.Receipt, error)
}

type cycleKey struct{}

// WithCycleID tags ctx so recorded orders can be joined to their cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID returns the cycle tag set by WithCycleID, or "".
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// Executor applies the simulation flag uniformly to every order it receives,
// whether it came from allocation or from the risk manager.
type Executor struct {
	submitter Submitter
	simulate  bool
	rec       recorder.Recorder
	notify    notifier.Notifier
	log       logger.Logger
	now       func() time.Time
}

func New(submitter Submitter, simulate bool, rec recorder.Recorder, notify notifier.Notifier, log logger.Logger) *Executor {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Executor{
		submitter: submitter,
		simulate:  simulate,
		rec:       rec,
		notify:    notify,
		log:       log,
		now:       time.Now,
	}
}

// Simulated reports whether orders are only logged.
func (e *Executor) Simulated() bool { return e.simulate }

// Execute runs every order in turn and returns one Fill per order, in input
// order. A failed order does not stop the rest. Once ctx is cancelled the
// remaining orders are returned unexecuted with ctx's error.
func (e *Executor) Execute(ctx context.Context, orders []model.Order) []model.Fill {
	fills := make([]model.Fill, 0, len(orders))
	for _, o := range orders {
		if o.ClientID == "" {
			o.ClientID = uuid.NewString()
		}
		if err := ctx.Err(); err != nil {
			fills = append(fills, model.Fill{Order: o, Err: err})
			continue
		}
		fill := e.executeOne(ctx, o)
		fills = append(fills, fill)
		e.record(ctx, fill)
		if fill.Executed() {
			if err := e.notify.Notify(ctx, notifier.FormatOrderAlert(fill)); err != nil {
				e.log.Warn("order_alert_failed", logger.String("symbol", o.Symbol), logger.Err(err))
			}
		}
	}
	return fills
}

func (e *Executor) executeOne(ctx context.Context, o model.Order) model.Fill {
	mode := "live"
	if e.simulate {
		mode = "simulation"
	}
	reason := string(o.Reason)
	if reason == "" {
		reason = "ALLOCATION"
	}

	if e.simulate {
		e.log.Info("order_simulated",
			logger.String("symbol", o.Symbol),
			logger.String("side", string(o.Side)),
			logger.String("reason", reason),
			logger.Stringer("quantity", o.Quantity),
			logger.Stringer("price", o.Price))
		metrics.OrdersSubmitted.WithLabelValues(string(o.Side), reason, mode).Inc()
		return model.Fill{Order: o, Receipt: model.Receipt{
			OrderID:       "SIM-" + prefix(o.ClientID, 8),
			ClientOrderID: o.ClientID,
			Status:        "SIMULATED",
			ExecutedQty:   o.Quantity,
			Simulated:     true,
			At:            e.now(),
		}}
	}

	receipt, err := e.submitter.SubmitOrder(ctx, o)
	if err != nil {
		metrics.OrderFailures.WithLabelValues(string(o.Side)).Inc()
		e.log.Error("order_failed",
			logger.String("symbol", o.Symbol),
			logger.String("op", "submit_order"),
			logger.String("side", string(o.Side)),
			logger.String("reason", reason),
			logger.Err(err))
		return model.Fill{Order: o, Err: err}
	}
	metrics.OrdersSubmitted.WithLabelValues(string(o.Side), reason, mode).Inc()
	e.log.Info("order_submitted",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.String("reason", reason),
		logger.String("order_id", receipt.OrderID),
		logger.String("status", receipt.Status),
		logger.Stringer("quantity", o.Quantity))
	return model.Fill{Order: o, Receipt: receipt}
}

func (e *Executor) record(ctx context.Context, f model.Fill) {
	rec := &recorder.OrderRecord{
		CycleID:       CycleID(ctx),
		Symbol:        f.Order.Symbol,
		Side:          string(f.Order.Side),
		Reason:        string(f.Order.Reason),
		Quantity:      f.Order.Quantity.String(),
		Price:         f.Order.Price.String(),
		Notional:      f.Order.Notional().InexactFloat64(),
		Simulated:     f.Receipt.Simulated,
		OrderID:       f.Receipt.OrderID,
		ClientOrderID: f.Order.ClientID,
		Status:        f.Receipt.Status,
	}
	if f.Err != nil {
		rec.Status = "FAILED"
		rec.Err = f.Err.Error()
	}
	if err := e.rec.RecordOrder(ctx, rec); err != nil {
		e.log.Error("order_record_failed", logger.String("symbol", f.Order.Symbol), logger.Err(err))
	}
}

// ExecutedQuantity is the filled quantity reported by the exchange, falling
// back to the requested quantity when the receipt carries none.
func ExecutedQuantity(f model.Fill) decimal.Decimal {
	if f.Receipt.ExecutedQty.IsPositive() {
		return f.Receipt.ExecutedQty
	}
	return f.Order.Quantity
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
