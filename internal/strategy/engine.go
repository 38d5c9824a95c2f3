package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"BasketPilot/internal/logger"
	"BasketPilot/internal/metrics"
	"BasketPilot/internal/model"
)

// CandleSource fetches the candle window for one symbol.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error)
}

// EngineConfig is passed once at construction.
type EngineConfig struct {
	Interval    string
	CandleLimit int
	Workers     int
}

// Engine scores a batch of symbols per cycle. Symbols share no state while
// scoring, so they are processed by a bounded pool of workers.
type Engine struct {
	candles CandleSource
	cfg     EngineConfig
	log     logger.Logger
}

func NewEngine(candles CandleSource, cfg EngineConfig, log logger.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	return &Engine{candles: candles, cfg: cfg, log: log}
}

// ScoreSymbol fetches candles and computes the composite score for one symbol.
func (e *Engine) ScoreSymbol(ctx context.Context, symbol string) (model.ScoredSymbol, error) {
	series, err := e.candles.Candles(ctx, symbol, e.cfg.Interval, e.cfg.CandleLimit)
	if err != nil {
		return model.ScoredSymbol{}, err
	}
	ind, err := ComputeIndicators(series)
	if err != nil {
		return model.ScoredSymbol{}, err
	}
	last, _ := series.Last()
	return model.ScoredSymbol{
		Symbol:     symbol,
		LastPrice:  last.Close,
		Score:      Score(ind),
		Indicators: ind,
	}, nil
}

// ScoreAll scores every symbol and returns the usable results ordered by
// score, highest first. Per-symbol failures are logged and excluded. An empty
// result is not an error; only cancellation is.
func (e *Engine) ScoreAll(ctx context.Context, symbols []string) ([]model.ScoredSymbol, error) {
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make([]model.ScoredSymbol, 0, len(symbols))
	)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			scored, err := e.ScoreSymbol(ctx, symbol)
			if err != nil {
				e.log.Warn("symbol_score_failed",
					logger.String("symbol", symbol),
					logger.String("op", "score"),
					logger.Err(err))
				return nil
			}
			mu.Lock()
			results = append(results, scored)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortByScore(results)
	metrics.SymbolsScored.Set(float64(len(results)))
	e.log.Info("batch_scored",
		logger.Int("requested", len(symbols)),
		logger.Int("scored", len(results)),
		logger.Duration("elapsed", time.Since(start)))
	return results, nil
}

// SortByScore orders by score descending, breaking ties by symbol.
func SortByScore(scored []model.ScoredSymbol) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Symbol < scored[j].Symbol
	})
}
