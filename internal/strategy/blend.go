package strategy

import (
	"context"

	"BasketPilot/internal/logger"
	"BasketPilot/internal/model"
)

// SentimentSource supplies best-effort sentiment readings in [0,1].
type SentimentSource interface {
	SymbolSentiment(ctx context.Context, symbol string) (float64, error)
	AggregateNews(ctx context.Context) (float64, error)
}

// Blender mixes sentiment into already computed scores:
//
//	score' = score*(1-w) + (symbol + news)*w
//
// It never fails. If the aggregate news reading is unavailable the scores are
// returned unchanged; a missing per-symbol reading counts as 0.
type Blender struct {
	source SentimentSource
	weight float64
	log    logger.Logger
}

func NewBlender(source SentimentSource, weight float64, log logger.Logger) *Blender {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	return &Blender{source: source, weight: weight, log: log}
}

// Blend returns a new slice; the input is not modified.
func (b *Blender) Blend(ctx context.Context, scored []model.ScoredSymbol) []model.ScoredSymbol {
	if len(scored) == 0 || b.source == nil {
		return scored
	}
	news, err := b.source.AggregateNews(ctx)
	if err != nil {
		b.log.Warn("sentiment_unavailable", logger.String("op", "aggregate_news"), logger.Err(err))
		return scored
	}

	out := make([]model.ScoredSymbol, len(scored))
	for i, s := range scored {
		sym, err := b.source.SymbolSentiment(ctx, s.Symbol)
		if err != nil {
			b.log.Debug("symbol_sentiment_missing", logger.String("symbol", s.Symbol), logger.Err(err))
			sym = 0
		}
		s.Score = s.Score*(1-b.weight) + (sym+news)*b.weight
		s.SymbolSentiment = sym
		s.NewsSentiment = news
		s.Blended = true
		out[i] = s
	}
	SortByScore(out)
	return out
}
