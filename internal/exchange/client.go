// Package exchange talks to the spot exchange: candles, prices, lot sizes,
// balances and market orders.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/model"
)

// Client is the exchange surface the trading core depends on. Every call may
// block on the network and honours ctx.
type Client interface {
	Candles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	StepSize(ctx context.Context, symbol string) (string, error)
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	SubmitOrder(ctx context.Context, order model.Order) (model.Receipt, error)
	Symbols(ctx context.Context, quote string) ([]string, error)
}

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrNoLotSize      = errors.New("symbol has no LOT_SIZE filter")
)

// APIError is a non-2xx response or an exchange error payload.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: status %d code %d: %s", e.Status, e.Code, e.Message)
}
