package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open long position tracked by the risk manager.
type Position struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OpenedAt   time.Time       `json:"opened_at"`
}
