package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/model"
	"BasketPilot/internal/ratelimit"
)

// Limited admits every call through a shared rate limiter before it reaches
// the wrapped client. The network call itself runs outside the limiter.
type Limited struct {
	next    Client
	limiter *ratelimit.Limiter
}

func NewLimited(next Client, limiter *ratelimit.Limiter) *Limited {
	return &Limited{next: next, limiter: limiter}
}

func (l *Limited) Candles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return model.CandleSeries{}, err
	}
	return l.next.Candles(ctx, symbol, interval, limit)
}

func (l *Limited) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return l.next.TickerPrice(ctx, symbol)
}

func (l *Limited) StepSize(ctx context.Context, symbol string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.StepSize(ctx, symbol)
}

func (l *Limited) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Balances(ctx)
}

func (l *Limited) SubmitOrder(ctx context.Context, order model.Order) (model.Receipt, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return model.Receipt{}, err
	}
	return l.next.SubmitOrder(ctx, order)
}

func (l *Limited) Symbols(ctx context.Context, quote string) ([]string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Symbols(ctx, quote)
}
