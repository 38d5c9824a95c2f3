package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BasketPilot/internal/exchange"
	"BasketPilot/internal/executor"
	"BasketPilot/internal/fund"
	"BasketPilot/internal/model"
	"BasketPilot/internal/quantizer"
	"BasketPilot/internal/recorder"
	"BasketPilot/internal/risk"
	"BasketPilot/internal/strategy"
	"BasketPilot/internal/testutils"
)

type fixedScorer []model.ScoredSymbol

func (f fixedScorer) ScoreAll(context.Context, []string) ([]model.ScoredSymbol, error) {
	out := make([]model.ScoredSymbol, len(f))
	copy(out, f)
	return out, nil
}

type captureRecorder struct {
	recorder.NoopRecorder
	mu           sync.Mutex
	cycles       []*recorder.CycleRecord
	positions    []*recorder.PositionEvent
	liquidations []*recorder.LiquidationEvent
}

func (c *captureRecorder) RecordCycle(_ context.Context, r *recorder.CycleRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles = append(c.cycles, r)
	return nil
}

func (c *captureRecorder) RecordPositionEvent(_ context.Context, e *recorder.PositionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = append(c.positions, e)
	return nil
}

func (c *captureRecorder) RecordLiquidation(_ context.Context, e *recorder.LiquidationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liquidations = append(c.liquidations, e)
	return nil
}

type stack struct {
	mock   *exchange.MockClient
	risk   *risk.Manager
	rec    *captureRecorder
	notes  *testutils.MockNotifier
	trader *Trader
}

func newMarket(usdt int64) *exchange.MockClient {
	m := exchange.NewMockClient()
	m.SymbolList = []string{"BTCUSDT", "ETHUSDT"}
	m.Prices["BTCUSDT"] = decimal.NewFromInt(100)
	m.Prices["ETHUSDT"] = decimal.NewFromInt(50)
	m.Steps["BTCUSDT"] = "0.001"
	m.Steps["ETHUSDT"] = "0.001"
	m.Funds["USDT"] = decimal.NewFromInt(usdt)
	return m
}

// newStack wires real components around the mock exchange. A nil scorer
// means the real indicator engine.
func newStack(t *testing.T, mock *exchange.MockClient, scorer Scorer, budget float64, clamp bool) *stack {
	t.Helper()
	log := testutils.NewMockLogger()
	rec := &captureRecorder{}
	notes := testutils.NewMockNotifier()
	q := quantizer.New(mock, log)
	ex := executor.New(mock, false, rec, notes, log)

	rm, err := risk.NewManager(risk.Config{MaxDrawdown: 0.15, QuoteAsset: "USDT"}, risk.Deps{
		Prices:     mock,
		Volatility: strategy.NewCandleVolatility(mock, "1h", 14),
		Balances:   mock,
		Quantizer:  q,
		Executor:   ex,
	}, log)
	require.NoError(t, err)

	if scorer == nil {
		scorer = strategy.NewEngine(mock, strategy.EngineConfig{Interval: "1h", CandleLimit: 100, Workers: 4}, log)
	}
	tr := New(Config{QuoteAsset: "USDT", ClampToBalance: clamp}, Deps{
		Market:    mock,
		Universe:  exchange.NewSymbolCache(mock, "USDT", 100, time.Hour),
		Scorer:    scorer,
		Allocator: fund.NewAllocator(budget, 5),
		Quantizer: q,
		Risk:      rm,
		Executor:  ex,
		Recorder:  rec,
		Notifier:  notes,
	}, log)
	return &stack{mock: mock, risk: rm, rec: rec, notes: notes, trader: tr}
}

func scores(pairs ...any) fixedScorer {
	var out fixedScorer
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, model.ScoredSymbol{Symbol: pairs[i].(string), Score: pairs[i+1].(float64)})
	}
	return out
}

func TestRunCycle_AllocatesAndOpensPositions(t *testing.T) {
	s := newStack(t, newMarket(2000), scores("BTCUSDT", 0.75, "ETHUSDT", 0.25), 1000, true)

	rep, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2000, rep.Value, 1e-9)
	assert.InDelta(t, 750, rep.Allocation["BTCUSDT"], 1e-9)
	assert.InDelta(t, 250, rep.Allocation["ETHUSDT"], 1e-9)

	orders := s.mock.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "BTCUSDT", orders[0].Symbol)
	assert.Equal(t, "7.5", orders[0].Quantity.String())
	assert.Equal(t, "ETHUSDT", orders[1].Symbol)
	assert.Equal(t, "5", orders[1].Quantity.String())

	btc, ok := s.risk.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "7.5", btc.Quantity.String())
	assert.Equal(t, "100", btc.EntryPrice.String())
	assert.Equal(t, "1000", s.mock.Funds["USDT"].String())

	require.Len(t, s.rec.positions, 2)
	assert.Equal(t, "OPEN", s.rec.positions[0].EventType)
	require.Len(t, s.rec.cycles, 1)
	assert.Equal(t, rep.CycleID, s.rec.cycles[0].CycleID)
	assert.Equal(t, 2, s.rec.cycles[0].OrdersPlanned)
	assert.Empty(t, s.rec.cycles[0].Err)
	assert.Same(t, rep, s.trader.LastReport())

	msgs := s.notes.Messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "2 executed, 0 failed")
}

func TestRunCycle_SecondBuyAddsToPosition(t *testing.T) {
	s := newStack(t, newMarket(4000), scores("BTCUSDT", 1.0), 1000, true)
	_, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = s.trader.RunCycle(context.Background())
	require.NoError(t, err)

	btc, ok := s.risk.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "20", btc.Quantity.String())
	require.Len(t, s.rec.positions, 2)
	assert.Equal(t, "ADD", s.rec.positions[1].EventType)
}

func TestRunCycle_ClampsToQuoteBalance(t *testing.T) {
	s := newStack(t, newMarket(600), scores("BTCUSDT", 0.75, "ETHUSDT", 0.25), 1000, true)
	_, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)

	orders := s.mock.Orders()
	require.Len(t, orders, 1, "the 750 allocation does not fit in 600")
	assert.Equal(t, "ETHUSDT", orders[0].Symbol)
}

func TestRunCycle_FallbackSplitWhenNothingScored(t *testing.T) {
	s := newStack(t, newMarket(2000), fixedScorer(nil), 1000, true)
	rep, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Allocation{"BTCUSDT": 500, "ETHUSDT": 500}, rep.Allocation)
	assert.Len(t, s.mock.Orders(), 2)
}

func TestRunCycle_TakeProfitClosesAndBlocksBuy(t *testing.T) {
	mock := newMarket(2000)
	mock.Funds["BTC"] = decimal.NewFromInt(1)
	s := newStack(t, mock, scores("BTCUSDT", 0.75, "ETHUSDT", 0.25), 1000, true)
	s.risk.UpdatePosition("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(50))

	rep, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2100, rep.Value, 1e-9)

	orders := s.mock.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, model.SideSell, orders[0].Side)
	assert.Equal(t, model.ReasonTakeProfit, orders[0].Reason)
	assert.Equal(t, "BTCUSDT", orders[0].Symbol)
	assert.Equal(t, model.SideBuy, orders[1].Side)
	assert.Equal(t, "ETHUSDT", orders[1].Symbol)

	_, open := s.risk.Position("BTCUSDT")
	assert.False(t, open)
	_, open = s.risk.Position("ETHUSDT")
	assert.True(t, open)
}

func TestRunCycle_BalanceFailureAbortsCycle(t *testing.T) {
	mock := newMarket(2000)
	mock.BalancesErr = errors.New("timeout")
	s := newStack(t, mock, scores("BTCUSDT", 1.0), 1000, true)

	_, err := s.trader.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBalanceUnavailable)
	assert.Empty(t, mock.Orders())
	require.Len(t, s.rec.cycles, 1)
	assert.Contains(t, s.rec.cycles[0].Err, "timeout")
	assert.Nil(t, s.trader.LastReport())
}

func TestRunCycle_DrawdownLiquidates(t *testing.T) {
	s := newStack(t, newMarket(2000), scores("BTCUSDT", 0.75, "ETHUSDT", 0.25), 1000, true)
	_, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)

	s.mock.Prices["BTCUSDT"] = decimal.NewFromInt(10)
	s.mock.Prices["ETHUSDT"] = decimal.NewFromInt(5)

	rep, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Health.Breached)
	assert.InDelta(t, 0.45, rep.Health.Drawdown, 1e-9)
	require.Len(t, rep.Fills, 2)
	for _, f := range rep.Fills {
		assert.True(t, f.Executed())
		assert.Equal(t, model.ReasonLiquidation, f.Order.Reason)
	}
	assert.Empty(t, s.risk.Positions())
	assert.True(t, s.mock.Funds["BTC"].IsZero())

	require.Len(t, s.rec.liquidations, 1)
	assert.Equal(t, 2, s.rec.liquidations[0].Orders)
	assert.True(t, s.rec.cycles[1].Liquidated)
	msgs := s.notes.Messages()
	assert.Contains(t, msgs[len(msgs)-1], "Emergency liquidation")
}

func TestRunCycle_WithIndicatorEngine(t *testing.T) {
	s := newStack(t, newMarket(2000), nil, 500, true)
	rep, err := s.trader.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Scored, 2)
	assert.InDelta(t, 500, rep.Allocation.Total(), 1e-6)

	orders := s.mock.Orders()
	require.NotEmpty(t, orders)
	spent := decimal.Zero
	for _, o := range orders {
		assert.Equal(t, model.SideBuy, o.Side)
		_, ok := s.risk.Position(o.Symbol)
		assert.True(t, ok, o.Symbol)
		spent = spent.Add(o.Notional())
	}
	assert.True(t, spent.LessThanOrEqual(decimal.NewFromInt(500)))
}

func TestRunCycle_Cancelled(t *testing.T) {
	s := newStack(t, newMarket(2000), nil, 500, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.trader.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.mock.Orders())
	assert.Empty(t, s.risk.Positions())
}
