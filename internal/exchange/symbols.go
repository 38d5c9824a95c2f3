package exchange

import (
	"context"
	"sync"
	"time"
)

// SymbolLister is the part of Client the symbol cache needs.
type SymbolLister interface {
	Symbols(ctx context.Context, quote string) ([]string, error)
}

// SymbolCache keeps the tracked symbol list and refreshes it at most once
// per TTL.
type SymbolCache struct {
	lister SymbolLister
	quote  string
	max    int
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	symbols []string
	updated time.Time
}

// NewSymbolCache tracks at most max symbols quoted in quote (0 means all).
func NewSymbolCache(lister SymbolLister, quote string, max int, ttl time.Duration) *SymbolCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SymbolCache{lister: lister, quote: quote, max: max, ttl: ttl, now: time.Now}
}

// Refresh reloads the list when it is stale. On failure the previous list is
// kept and the error returned.
func (c *SymbolCache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.updated.IsZero() && c.now().Sub(c.updated) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	syms, err := c.lister.Symbols(ctx, c.quote)
	if err != nil {
		return err
	}
	if c.max > 0 && len(syms) > c.max {
		syms = syms[:c.max]
	}

	c.mu.Lock()
	c.symbols = syms
	c.updated = c.now()
	c.mu.Unlock()
	return nil
}

// Symbols returns a copy of the tracked list.
func (c *SymbolCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Contains reports whether symbol is tracked.
func (c *SymbolCache) Contains(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// UpdatedAt returns the time of the last successful refresh.
func (c *SymbolCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}
