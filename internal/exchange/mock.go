package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/model"
)

// MockClient is a deterministic in-memory exchange for development and tests.
// Symbols without explicit candles get a gently rising generated series
// around their price.
type MockClient struct {
	mu sync.Mutex

	Prices      map[string]decimal.Decimal
	Steps       map[string]string
	Funds       map[string]decimal.Decimal
	CandleData  map[string][]model.OHLCV
	SymbolList  []string
	Submitted   []model.Order
	BalancesErr error
	OrderErr    map[string]error // keyed by symbol
	Calls       int

	nextID int64
}

func NewMockClient() *MockClient {
	return &MockClient{
		Prices:     make(map[string]decimal.Decimal),
		Steps:      make(map[string]string),
		Funds:      make(map[string]decimal.Decimal),
		CandleData: make(map[string][]model.OHLCV),
		OrderErr:   make(map[string]error),
	}
}

func (m *MockClient) Candles(_ context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	bars, ok := m.CandleData[symbol]
	if !ok {
		price, ok := m.Prices[symbol]
		if !ok {
			return model.CandleSeries{}, fmt.Errorf("mock candles %s: %w", symbol, ErrSymbolNotFound)
		}
		bars = generateMockBars(price.InexactFloat64(), limit)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]model.OHLCV, len(bars))
	copy(out, bars)
	return model.CandleSeries{Symbol: symbol, Interval: interval, Bars: out}, nil
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		if i%3 == 0 {
			p *= 0.998
		}
		bars[i] = model.OHLCV{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

func (m *MockClient) TickerPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	p, ok := m.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("mock ticker %s: %w", symbol, ErrSymbolNotFound)
	}
	return p, nil
}

func (m *MockClient) StepSize(_ context.Context, symbol string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	step, ok := m.Steps[symbol]
	if !ok {
		return "", fmt.Errorf("mock step %s: %w", symbol, ErrNoLotSize)
	}
	return step, nil
}

func (m *MockClient) Balances(context.Context) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.BalancesErr != nil {
		return nil, m.BalancesErr
	}
	out := make(map[string]decimal.Decimal, len(m.Funds))
	for k, v := range m.Funds {
		out[k] = v
	}
	return out, nil
}

// SubmitOrder fills market orders immediately at the current mock price and
// moves balances accordingly.
func (m *MockClient) SubmitOrder(_ context.Context, order model.Order) (model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err := m.OrderErr[order.Symbol]; err != nil {
		return model.Receipt{}, err
	}
	m.Submitted = append(m.Submitted, order)
	m.nextID++

	price := m.Prices[order.Symbol]
	base, quote := splitSymbol(order.Symbol)
	notional := order.Quantity.Mul(price)
	if order.Side == model.SideBuy {
		m.Funds[quote] = m.Funds[quote].Sub(notional)
		m.Funds[base] = m.Funds[base].Add(order.Quantity)
	} else {
		m.Funds[base] = m.Funds[base].Sub(order.Quantity)
		m.Funds[quote] = m.Funds[quote].Add(notional)
	}

	return model.Receipt{
		OrderID:       strconv.FormatInt(m.nextID, 10),
		ClientOrderID: order.ClientID,
		Status:        "FILLED",
		ExecutedQty:   order.Quantity,
		At:            time.Now(),
	}, nil
}

func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, ""
}

func (m *MockClient) Symbols(_ context.Context, quote string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	src := m.SymbolList
	if src == nil {
		for s := range m.Prices {
			src = append(src, s)
		}
		sort.Strings(src)
	}
	var out []string
	for _, s := range src {
		if strings.HasSuffix(s, quote) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Orders returns a copy of every submitted order.
func (m *MockClient) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, len(m.Submitted))
	copy(out, m.Submitted)
	return out
}
