// Package risk tracks open positions and enforces stop-loss, take-profit and
// portfolio drawdown limits.
package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/logger"
	"BasketPilot/internal/metrics"
	"BasketPilot/internal/model"
)

// PriceSource returns the current market price of a symbol.
type PriceSource interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// VolatilitySource returns a relative volatility (>= 0) for a symbol.
type VolatilitySource interface {
	Volatility(ctx context.Context, symbol string) (float64, error)
}

// BalanceSource returns free balances keyed by asset.
type BalanceSource interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Quantizer truncates a base quantity to the symbol's lot size. Zero means skip.
type Quantizer interface {
	QuantityFor(ctx context.Context, symbol string, qty decimal.Decimal) decimal.Decimal
}

// Executor executes orders best-effort.
type Executor interface {
	Execute(ctx context.Context, orders []model.Order) []model.Fill
}

type Config struct {
	MaxDrawdown    float64
	StopLossMult   float64
	TakeProfitMult float64
	QuoteAsset     string
	StateFile      string
}

// Deps are the collaborators the manager calls out to.
type Deps struct {
	Prices     PriceSource
	Volatility VolatilitySource
	Balances   BalanceSource
	Quantizer  Quantizer
	Executor   Executor
}

// Manager owns every open position. Positions move NONE -> OPEN through
// UpdatePosition and OPEN -> NONE through RemovePosition.
type Manager struct {
	mu             sync.Mutex
	positions      map[string]model.Position
	initialBalance float64

	cfg  Config
	deps Deps
	log  logger.Logger
	now  func() time.Time
}

// NewManager creates a Manager, loading persisted positions if a state file
// is configured.
func NewManager(cfg Config, deps Deps, log logger.Logger) (*Manager, error) {
	if cfg.StopLossMult == 0 {
		cfg.StopLossMult = 2
	}
	if cfg.TakeProfitMult == 0 {
		cfg.TakeProfitMult = 3.5
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	state, err := LoadState(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("load risk state: %w", err)
	}
	m := &Manager{
		positions:      state.Positions,
		initialBalance: state.InitialBalance,
		cfg:            cfg,
		deps:           deps,
		log:            log,
		now:            time.Now,
	}
	metrics.PositionsOpen.Set(float64(len(m.positions)))
	return m, nil
}

// StopLossLevel = current * (1 - mult*volatility).
func StopLossLevel(current decimal.Decimal, volatility, mult float64) decimal.Decimal {
	return current.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(mult).Mul(decimal.NewFromFloat(volatility))))
}

// TakeProfitLevel = entry * (1 + mult*volatility).
func TakeProfitLevel(entry decimal.Decimal, volatility, mult float64) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(mult).Mul(decimal.NewFromFloat(volatility))))
}

// UpdatePosition records an executed BUY. Buying into an open position adds
// to its quantity and moves the entry price to the weighted average.
func (m *Manager) UpdatePosition(symbol string, qty, price decimal.Decimal) {
	if !qty.IsPositive() || !price.IsPositive() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if ok {
		total := pos.Quantity.Add(qty)
		pos.EntryPrice = pos.EntryPrice.Mul(pos.Quantity).Add(price.Mul(qty)).Div(total)
		pos.Quantity = total
	} else {
		pos = model.Position{Symbol: symbol, Quantity: qty, EntryPrice: price, OpenedAt: m.now()}
	}
	m.positions[symbol] = pos
	m.persistLocked()
	m.log.Info("position_updated",
		logger.String("symbol", symbol),
		logger.Stringer("quantity", pos.Quantity),
		logger.Stringer("entry_price", pos.EntryPrice))
}

// RemovePosition drops a position after its closing order executed.
func (m *Manager) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; !ok {
		return
	}
	delete(m.positions, symbol)
	m.persistLocked()
	m.log.Info("position_closed", logger.String("symbol", symbol))
}

// Positions returns a snapshot sorted by symbol.
func (m *Manager) Positions() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the open position for symbol, if any.
func (m *Manager) Position(symbol string) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	return p, ok
}

// CheckPositions emits at most one closing SELL per open position. Stop-loss
// takes precedence when both levels are breached. Symbols without a price or
// volatility reading are skipped for this pass. Only cancellation is returned
// as an error.
func (m *Manager) CheckPositions(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	for _, pos := range m.Positions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		price, err := m.deps.Prices.TickerPrice(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn("risk_check_skipped", logger.String("symbol", pos.Symbol), logger.String("op", "ticker_price"), logger.Err(err))
			continue
		}
		vol, err := m.deps.Volatility.Volatility(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn("risk_check_skipped", logger.String("symbol", pos.Symbol), logger.String("op", "volatility"), logger.Err(err))
			continue
		}

		stop := StopLossLevel(price, vol, m.cfg.StopLossMult)
		take := TakeProfitLevel(pos.EntryPrice, vol, m.cfg.TakeProfitMult)

		var reason model.Reason
		switch {
		case price.LessThanOrEqual(stop):
			reason = model.ReasonStopLoss
		case price.GreaterThanOrEqual(take):
			reason = model.ReasonTakeProfit
		default:
			continue
		}
		m.log.Info("risk_level_breached",
			logger.String("symbol", pos.Symbol),
			logger.String("reason", string(reason)),
			logger.Stringer("price", price),
			logger.Stringer("stop_loss", stop),
			logger.Stringer("take_profit", take))
		orders = append(orders, model.Order{
			Symbol:   pos.Symbol,
			Side:     model.SideSell,
			Quantity: pos.Quantity,
			Price:    price,
			Reason:   reason,
		})
	}
	return orders, nil
}

// Health is the result of one portfolio health check.
type Health struct {
	Initial     float64
	Current     float64
	Drawdown    float64
	Breached    bool
	Liquidation []model.Fill
}

// CheckPortfolioHealth compares value against the initial balance, which is
// captured on the first call. A drawdown at or beyond the limit triggers an
// immediate emergency liquidation; the baseline is then cleared so the next
// call captures a fresh one.
func (m *Manager) CheckPortfolioHealth(ctx context.Context, value float64) Health {
	metrics.PortfolioValue.Set(value)

	m.mu.Lock()
	if m.initialBalance <= 0 {
		if value > 0 {
			m.initialBalance = value
			m.persistLocked()
			m.log.Info("initial_balance_captured", logger.Float64("value", value))
		}
		m.mu.Unlock()
		return Health{Initial: value, Current: value}
	}
	initial := m.initialBalance
	m.mu.Unlock()

	h := Health{Initial: initial, Current: value, Drawdown: (initial - value) / initial}
	metrics.Drawdown.Set(h.Drawdown)
	if h.Drawdown < m.cfg.MaxDrawdown {
		return h
	}

	h.Breached = true
	m.log.Warn("emergency_liquidation",
		logger.Float64("initial", initial),
		logger.Float64("current", value),
		logger.Float64("drawdown", h.Drawdown))
	h.Liquidation = m.liquidate(ctx)

	m.mu.Lock()
	m.initialBalance = 0
	m.persistLocked()
	m.mu.Unlock()
	return h
}

// EmergencyOrders builds a SELL for every non-quote asset with a free balance.
// Assets that cannot be priced or quantized are logged and skipped.
func (m *Manager) EmergencyOrders(ctx context.Context) ([]model.Order, error) {
	balances, err := m.deps.Balances.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var orders []model.Order
	for _, asset := range assets {
		amount := balances[asset]
		if asset == m.cfg.QuoteAsset || !amount.IsPositive() {
			continue
		}
		symbol := asset + m.cfg.QuoteAsset
		price, err := m.deps.Prices.TickerPrice(ctx, symbol)
		if err != nil {
			m.log.Error("emergency_order_failed", logger.String("symbol", symbol), logger.String("op", "ticker_price"), logger.Err(err))
			continue
		}
		qty := m.deps.Quantizer.QuantityFor(ctx, symbol, amount)
		if qty.IsZero() {
			m.log.Warn("emergency_order_skipped", logger.String("symbol", symbol), logger.String("op", "quantize"))
			continue
		}
		orders = append(orders, model.Order{
			Symbol:   symbol,
			Side:     model.SideSell,
			Quantity: qty,
			Price:    price,
			Reason:   model.ReasonLiquidation,
		})
	}
	return orders, nil
}

func (m *Manager) liquidate(ctx context.Context) []model.Fill {
	orders, err := m.EmergencyOrders(ctx)
	if err != nil {
		m.log.Error("emergency_liquidation_failed", logger.Err(err))
		return nil
	}
	fills := m.deps.Executor.Execute(ctx, orders)
	for _, f := range fills {
		if f.Executed() {
			m.RemovePosition(f.Order.Symbol)
		}
	}
	return fills
}

// persistLocked must be called with mu held.
func (m *Manager) persistLocked() {
	metrics.PositionsOpen.Set(float64(len(m.positions)))
	state := &State{Positions: m.positions, InitialBalance: m.initialBalance}
	if err := SaveState(m.cfg.StateFile, state); err != nil {
		m.log.Error("risk_state_save_failed", logger.Err(err))
	}
}
