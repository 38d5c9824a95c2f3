package risk

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BasketPilot/internal/model"
	"BasketPilot/internal/testutils"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeMarket struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	vols     map[string]float64
	balances map[string]decimal.Decimal
	executed []model.Order
	failSym  string
}

func (f *fakeMarket) TickerPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("no price")
	}
	return p, nil
}

func (f *fakeMarket) Volatility(_ context.Context, symbol string) (float64, error) {
	v, ok := f.vols[symbol]
	if !ok {
		return 0, errors.New("no volatility")
	}
	return v, nil
}

func (f *fakeMarket) Balances(context.Context) (map[string]decimal.Decimal, error) {
	if f.balances == nil {
		return nil, errors.New("account unavailable")
	}
	return f.balances, nil
}

func (f *fakeMarket) QuantityFor(_ context.Context, _ string, qty decimal.Decimal) decimal.Decimal {
	return qty.Truncate(3)
}

func (f *fakeMarket) Execute(_ context.Context, orders []model.Order) []model.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	fills := make([]model.Fill, len(orders))
	for i, o := range orders {
		fills[i] = model.Fill{Order: o}
		if o.Symbol == f.failSym {
			fills[i].Err = errors.New("rejected")
			continue
		}
		f.executed = append(f.executed, o)
	}
	return fills
}

func newManager(t *testing.T, mk *fakeMarket, stateFile string) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		MaxDrawdown:    0.15,
		StopLossMult:   2,
		TakeProfitMult: 3.5,
		QuoteAsset:     "USDT",
		StateFile:      stateFile,
	}, Deps{Prices: mk, Volatility: mk, Balances: mk, Quantizer: mk, Executor: mk}, testutils.NewMockLogger())
	require.NoError(t, err)
	return m
}

func TestLevels(t *testing.T) {
	assert.True(t, d("117.5").Equal(TakeProfitLevel(d("100"), 0.05, 3.5)))
	assert.True(t, d("90").Equal(StopLossLevel(d("100"), 0.05, 2)))
}

func TestUpdateAndRemovePosition(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")

	m.UpdatePosition("BTCUSDT", d("1"), d("100"))
	m.UpdatePosition("BTCUSDT", d("1"), d("200"))
	pos, ok := m.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, d("2").Equal(pos.Quantity))
	assert.True(t, d("150").Equal(pos.EntryPrice))

	m.UpdatePosition("ETHUSDT", d("0"), d("10"))
	_, ok = m.Position("ETHUSDT")
	assert.False(t, ok, "zero quantity must not open a position")

	m.RemovePosition("BTCUSDT")
	assert.Empty(t, m.Positions())
}

func TestPositionsReturnsCopy(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")
	m.UpdatePosition("BTCUSDT", d("1"), d("100"))

	snap := m.Positions()
	snap[0].Quantity = d("999")

	pos, _ := m.Position("BTCUSDT")
	assert.True(t, d("1").Equal(pos.Quantity))
}

func TestCheckPositions(t *testing.T) {
	mk := &fakeMarket{
		prices: map[string]decimal.Decimal{
			"HOLDUSDT": d("100"), // between levels
			"TPUSDT":   d("120"), // entry 100, vol 0.05 -> TP 117.5
			"NOVOL":    d("50"),
		},
		vols: map[string]float64{"HOLDUSDT": 0.05, "TPUSDT": 0.05, "NOPRICE": 0.05},
	}
	m := newManager(t, mk, "")
	m.UpdatePosition("HOLDUSDT", d("1"), d("100"))
	m.UpdatePosition("TPUSDT", d("2"), d("100"))
	m.UpdatePosition("NOVOL", d("1"), d("50"))
	m.UpdatePosition("NOPRICE", d("1"), d("50"))

	orders, err := m.CheckPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "TPUSDT", orders[0].Symbol)
	assert.Equal(t, model.SideSell, orders[0].Side)
	assert.Equal(t, model.ReasonTakeProfit, orders[0].Reason)
	assert.True(t, d("2").Equal(orders[0].Quantity))
}

func TestCheckPositions_StopLossWinsOverTakeProfit(t *testing.T) {
	// zero volatility puts both levels at the current price
	mk := &fakeMarket{
		prices: map[string]decimal.Decimal{"BTCUSDT": d("100")},
		vols:   map[string]float64{"BTCUSDT": 0},
	}
	m := newManager(t, mk, "")
	m.UpdatePosition("BTCUSDT", d("1"), d("100"))

	orders, err := m.CheckPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.ReasonStopLoss, orders[0].Reason)
}

func TestCheckPositions_Cancelled(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")
	m.UpdatePosition("BTCUSDT", d("1"), d("100"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.CheckPositions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckPortfolioHealth_CapturesBaselineLazily(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")

	h := m.CheckPortfolioHealth(context.Background(), 1000)
	assert.False(t, h.Breached)
	assert.Equal(t, 1000.0, h.Initial)

	h = m.CheckPortfolioHealth(context.Background(), 900)
	assert.False(t, h.Breached)
	assert.InDelta(t, 0.1, h.Drawdown, 1e-9)
}

func TestCheckPortfolioHealth_Liquidates(t *testing.T) {
	mk := &fakeMarket{
		prices: map[string]decimal.Decimal{"BTCUSDT": d("20000"), "ETHUSDT": d("1000")},
		balances: map[string]decimal.Decimal{
			"USDT": d("500"),
			"BTC":  d("0.123456"),
			"ETH":  d("2"),
			"DOGE": d("100"), // no price
			"XRP":  d("0"),
		},
		failSym: "ETHUSDT",
	}
	m := newManager(t, mk, "")
	m.UpdatePosition("BTCUSDT", d("0.123"), d("30000"))
	m.UpdatePosition("ETHUSDT", d("2"), d("1500"))

	m.CheckPortfolioHealth(context.Background(), 1000)
	h := m.CheckPortfolioHealth(context.Background(), 850)

	require.True(t, h.Breached)
	require.Len(t, h.Liquidation, 2)
	require.Len(t, mk.executed, 1)
	assert.Equal(t, "BTCUSDT", mk.executed[0].Symbol)
	assert.Equal(t, model.ReasonLiquidation, mk.executed[0].Reason)
	assert.Equal(t, "0.123", mk.executed[0].Quantity.String())

	_, btcOpen := m.Position("BTCUSDT")
	_, ethOpen := m.Position("ETHUSDT")
	assert.False(t, btcOpen, "liquidated position is removed")
	assert.True(t, ethOpen, "failed liquidation keeps the position")

	// baseline re-captured on the next call
	h = m.CheckPortfolioHealth(context.Background(), 600)
	assert.False(t, h.Breached)
	assert.Equal(t, 600.0, h.Initial)
}

func TestEmergencyOrders_BalanceFailure(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")
	_, err := m.EmergencyOrders(context.Background())
	assert.Error(t, err)
}

func TestStatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "positions.json")

	m := newManager(t, &fakeMarket{}, path)
	m.UpdatePosition("BTCUSDT", d("0.5"), d("30000"))
	m.CheckPortfolioHealth(context.Background(), 1234)

	reloaded := newManager(t, &fakeMarket{}, path)
	pos, ok := reloaded.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, d("0.5").Equal(pos.Quantity))
	assert.True(t, d("30000").Equal(pos.EntryPrice))

	h := reloaded.CheckPortfolioHealth(context.Background(), 1234)
	assert.Equal(t, 1234.0, h.Initial)
	assert.Zero(t, h.Drawdown)
}

func TestConcurrentUpdates(t *testing.T) {
	m := newManager(t, &fakeMarket{}, "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.UpdatePosition("BTCUSDT", d("1"), d("100"))
			_ = m.Positions()
		}()
	}
	wg.Wait()
	pos, _ := m.Position("BTCUSDT")
	assert.True(t, d("50").Equal(pos.Quantity))
}
