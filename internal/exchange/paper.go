package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaperBalances serves account balances from a local wallet so simulation
// mode can run on public market data without account credentials.
type PaperBalances struct {
	Client
	funds map[string]decimal.Decimal
}

// NewPaperBalances seeds the wallet with amount of the quote asset.
func NewPaperBalances(next Client, quote string, amount decimal.Decimal) *PaperBalances {
	return &PaperBalances{Client: next, funds: map[string]decimal.Decimal{quote: amount}}
}

func (p *PaperBalances) Balances(context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.funds))
	for k, v := range p.funds {
		out[k] = v
	}
	return out, nil
}
