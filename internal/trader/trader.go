// Package trader runs one decision cycle: value the portfolio, check its
// health, score the basket, allocate, quantize, execute and update positions.
package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BasketPilot/internal/executor"
	"BasketPilot/internal/fund"
	"BasketPilot/internal/logger"
	"BasketPilot/internal/metrics"
	"BasketPilot/internal/model"
	"BasketPilot/internal/notifier"
	"BasketPilot/internal/recorder"
	"BasketPilot/internal/risk"
)

// ErrBalanceUnavailable aborts a cycle: without balances neither the
// portfolio value nor the allocation can be trusted.
var ErrBalanceUnavailable = errors.New("account balances unavailable")

// Market is the exchange surface the cycle reads directly.
type Market interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Universe is the tracked symbol list.
type Universe interface {
	Refresh(ctx context.Context) error
	Symbols() []string
	Contains(symbol string) bool
}

type Scorer interface {
	ScoreAll(ctx context.Context, symbols []string) ([]model.ScoredSymbol, error)
}

// Blender is the optional sentiment stage.
type Blender interface {
	Blend(ctx context.Context, scored []model.ScoredSymbol) []model.ScoredSymbol
}

type Quantizer interface {
	Quantity(ctx context.Context, symbol string, amount, price decimal.Decimal) decimal.Decimal
}

type RiskManager interface {
	CheckPortfolioHealth(ctx context.Context, value float64) risk.Health
	CheckPositions(ctx context.Context) ([]model.Order, error)
	UpdatePosition(symbol string, qty, price decimal.Decimal)
	RemovePosition(symbol string)
	Position(symbol string) (model.Position, bool)
}

type Executor interface {
	Execute(ctx context.Context, orders []model.Order) []model.Fill
}

type Config struct {
	QuoteAsset     string
	ClampToBalance bool
}

// Deps groups the collaborators. Blender, Recorder and Notifier are optional.
type Deps struct {
	Market    Market
	Universe  Universe
	Scorer    Scorer
	Blender   Blender
	Allocator *fund.Allocator
	Quantizer Quantizer
	Risk      RiskManager
	Executor  Executor
	Recorder  recorder.Recorder
	Notifier  notifier.Notifier
}

// Report describes one finished cycle.
type Report struct {
	CycleID    string
	StartedAt  time.Time
	Duration   time.Duration
	Value      float64
	Health     risk.Health
	Scored     []model.ScoredSymbol
	Allocation model.Allocation
	Fills      []model.Fill
}

type Trader struct {
	cfg  Config
	deps Deps
	log  logger.Logger
	now  func() time.Time

	mu   sync.Mutex
	last *Report
}

func New(cfg Config, deps Deps, log logger.Logger) *Trader {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop{}
	}
	return &Trader{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// LastReport returns the most recent completed cycle, or nil.
func (t *Trader) LastReport() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// RunCycle executes one full cycle. Only hard dependency failures and
// cancellation are returned as errors; per-symbol problems are logged and
// the symbol skipped.
func (t *Trader) RunCycle(ctx context.Context) (*Report, error) {
	rep := &Report{CycleID: uuid.NewString(), StartedAt: t.now()}
	ctx = executor.WithCycleID(ctx, rep.CycleID)
	log := t.log
	log.Info("cycle_started", logger.String("cycle_id", rep.CycleID))

	err := t.run(ctx, rep)
	rep.Duration = t.now().Sub(rep.StartedAt)
	metrics.CycleDuration.Observe(rep.Duration.Seconds())
	t.recordCycle(ctx, rep, err)

	if err != nil {
		metrics.CycleFailures.Inc()
		log.Error("cycle_failed", logger.String("cycle_id", rep.CycleID), logger.Err(err))
		return rep, err
	}

	t.mu.Lock()
	t.last = rep
	t.mu.Unlock()
	log.Info("cycle_finished",
		logger.String("cycle_id", rep.CycleID),
		logger.Int("scored", len(rep.Scored)),
		logger.Int("orders", len(rep.Fills)),
		logger.Duration("duration", rep.Duration))
	return rep, nil
}

func (t *Trader) run(ctx context.Context, rep *Report) error {
	if err := t.deps.Universe.Refresh(ctx); err != nil {
		t.log.Warn("symbols_refresh_failed", logger.String("op", "symbols"), logger.Err(err))
	}
	tracked := t.deps.Universe.Symbols()

	balances, err := t.deps.Market.Balances(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}
	rep.Value = t.portfolioValue(ctx, balances)

	rep.Health = t.deps.Risk.CheckPortfolioHealth(ctx, rep.Value)
	if rep.Health.Breached {
		rep.Fills = rep.Health.Liquidation
		t.afterLiquidation(ctx, rep)
		return nil
	}

	scored, err := t.deps.Scorer.ScoreAll(ctx, tracked)
	if err != nil {
		return err
	}
	if t.deps.Blender != nil {
		scored = t.deps.Blender.Blend(ctx, scored)
	}
	rep.Scored = scored
	rep.Allocation = t.deps.Allocator.Allocate(scored, tracked)

	closing, err := t.deps.Risk.CheckPositions(ctx)
	if err != nil {
		return err
	}
	buys, err := t.buyOrders(ctx, rep.Allocation, closing, balances[t.cfg.QuoteAsset])
	if err != nil {
		return err
	}

	orders := append(closing, buys...)
	rep.Fills = t.deps.Executor.Execute(ctx, orders)
	t.applyFills(ctx, rep.Fills)

	if err := t.deps.Notifier.Notify(ctx, notifier.FormatCycleSummary(rep.CycleID, rep.Scored, rep.Fills, rep.Value)); err != nil {
		t.log.Warn("cycle_summary_failed", logger.Err(err))
	}
	return nil
}

// portfolioValue is the quote balance plus every other asset at its current
// price. Assets that cannot be priced are left out of the total.
func (t *Trader) portfolioValue(ctx context.Context, balances map[string]decimal.Decimal) float64 {
	assets := make([]string, 0, len(balances))
	for a := range balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	total := decimal.Zero
	for _, asset := range assets {
		amount := balances[asset]
		if !amount.IsPositive() {
			continue
		}
		if asset == t.cfg.QuoteAsset {
			total = total.Add(amount)
			continue
		}
		symbol := asset + t.cfg.QuoteAsset
		price, err := t.deps.Market.TickerPrice(ctx, symbol)
		if err != nil {
			t.log.Warn("valuation_skipped", logger.String("symbol", symbol), logger.String("op", "ticker_price"), logger.Err(err))
			continue
		}
		total = total.Add(amount.Mul(price))
	}
	return total.InexactFloat64()
}

// buyOrders turns the allocation into quantized market BUYs in rank order.
// Symbols that are closing this cycle or no longer tracked are skipped.
func (t *Trader) buyOrders(ctx context.Context, alloc model.Allocation, closing []model.Order, quote decimal.Decimal) ([]model.Order, error) {
	if t.cfg.ClampToBalance {
		alloc = fund.ClampToBalance(alloc, quote.InexactFloat64())
	}
	skip := make(map[string]bool, len(closing))
	for _, o := range closing {
		skip[o.Symbol] = true
	}

	var orders []model.Order
	for _, e := range fund.Ranked(alloc) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skip[e.Symbol] {
			t.log.Info("buy_skipped", logger.String("symbol", e.Symbol), logger.String("op", "closing_this_cycle"))
			continue
		}
		if !t.deps.Universe.Contains(e.Symbol) {
			t.log.Warn("buy_skipped", logger.String("symbol", e.Symbol), logger.String("op", "untracked"))
			continue
		}
		price, err := t.deps.Market.TickerPrice(ctx, e.Symbol)
		if err != nil {
			t.log.Warn("buy_skipped", logger.String("symbol", e.Symbol), logger.String("op", "ticker_price"), logger.Err(err))
			continue
		}
		qty := t.deps.Quantizer.Quantity(ctx, e.Symbol, decimal.NewFromFloat(e.Amount), price)
		if qty.IsZero() {
			continue
		}
		orders = append(orders, model.Order{
			Symbol:   e.Symbol,
			Side:     model.SideBuy,
			Quantity: qty,
			Price:    price,
		})
	}
	return orders, nil
}

// applyFills moves positions for executed orders only.
func (t *Trader) applyFills(ctx context.Context, fills []model.Fill) {
	for _, f := range fills {
		if !f.Executed() {
			continue
		}
		o := f.Order
		switch {
		case o.Side == model.SideBuy:
			_, existed := t.deps.Risk.Position(o.Symbol)
			t.deps.Risk.UpdatePosition(o.Symbol, executor.ExecutedQuantity(f), o.Price)
			pos, _ := t.deps.Risk.Position(o.Symbol)
			event := "OPEN"
			if existed {
				event = "ADD"
			}
			t.recordPosition(ctx, &recorder.PositionEvent{
				Symbol:     o.Symbol,
				EventType:  event,
				Quantity:   pos.Quantity.String(),
				EntryPrice: pos.EntryPrice.String(),
			})
		case o.Closing():
			t.deps.Risk.RemovePosition(o.Symbol)
			t.recordPosition(ctx, &recorder.PositionEvent{
				Symbol:    o.Symbol,
				EventType: "CLOSE",
				Quantity:  o.Quantity.String(),
				Reason:    string(o.Reason),
			})
		}
	}
}

func (t *Trader) afterLiquidation(ctx context.Context, rep *Report) {
	h := rep.Health
	failed := 0
	for _, f := range h.Liquidation {
		if !f.Executed() {
			failed++
		}
		if f.Executed() {
			t.recordPosition(ctx, &recorder.PositionEvent{
				Symbol:    f.Order.Symbol,
				EventType: "CLOSE",
				Quantity:  f.Order.Quantity.String(),
				Reason:    string(f.Order.Reason),
			})
		}
	}
	if err := t.deps.Recorder.RecordLiquidation(ctx, &recorder.LiquidationEvent{
		CycleID:  rep.CycleID,
		Initial:  h.Initial,
		Current:  h.Current,
		Drawdown: h.Drawdown,
		Orders:   len(h.Liquidation),
		Failed:   failed,
	}); err != nil {
		t.log.Error("liquidation_record_failed", logger.Err(err))
	}
	if err := t.deps.Notifier.Notify(ctx, notifier.FormatLiquidationAlert(h.Initial, h.Current, h.Drawdown, h.Liquidation)); err != nil {
		t.log.Warn("liquidation_alert_failed", logger.Err(err))
	}
}

func (t *Trader) recordPosition(ctx context.Context, evt *recorder.PositionEvent) {
	if err := t.deps.Recorder.RecordPositionEvent(ctx, evt); err != nil {
		t.log.Error("position_record_failed", logger.String("symbol", evt.Symbol), logger.Err(err))
	}
}

func (t *Trader) recordCycle(ctx context.Context, rep *Report, cycleErr error) {
	rec := &recorder.CycleRecord{
		CycleID:        rep.CycleID,
		StartedAt:      rep.StartedAt,
		Duration:       rep.Duration,
		Tracked:        len(t.deps.Universe.Symbols()),
		Scored:         len(rep.Scored),
		OrdersPlanned:  len(rep.Fills),
		PortfolioValue: rep.Value,
		Drawdown:       rep.Health.Drawdown,
		Liquidated:     rep.Health.Breached,
	}
	for _, f := range rep.Fills {
		if !f.Executed() {
			rec.OrdersFailed++
		}
	}
	if cycleErr != nil {
		rec.Err = cycleErr.Error()
	}
	// A cancelled cycle still leaves an audit row.
	if err := t.deps.Recorder.RecordCycle(context.WithoutCancel(ctx), rec); err != nil {
		t.log.Error("cycle_record_failed", logger.Err(err))
	}
}
