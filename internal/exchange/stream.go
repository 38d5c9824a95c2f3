package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"BasketPilot/internal/logger"
)

// PriceCache holds recent prices, each valid for ttl after it was set.
type PriceCache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	prices map[string]cachedPrice
}

type cachedPrice struct {
	price decimal.Decimal
	at    time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &PriceCache{ttl: ttl, now: time.Now, prices: make(map[string]cachedPrice)}
}

func (c *PriceCache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	c.prices[symbol] = cachedPrice{price: price, at: c.now()}
	c.mu.Unlock()
}

// Get returns the cached price if it has not expired.
func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok || c.now().Sub(p.at) >= c.ttl {
		return decimal.Zero, false
	}
	return p.price, true
}

// CachedPrices serves TickerPrice from the cache when fresh and falls through
// to the wrapped client otherwise, caching the result.
type CachedPrices struct {
	Client
	cache *PriceCache
}

func NewCachedPrices(next Client, cache *PriceCache) *CachedPrices {
	return &CachedPrices{Client: next, cache: cache}
}

func (c *CachedPrices) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := c.cache.Get(symbol); ok {
		return p, nil
	}
	p, err := c.Client.TickerPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.Set(symbol, p)
	return p, nil
}

// tickerMsg is a combined-stream 24hr ticker event.
type tickerMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// TickerStream keeps a PriceCache updated from the exchange's 24hr ticker
// websocket streams.
type TickerStream struct {
	URL         string // base websocket URL, e.g. wss://stream.binance.com:9443
	MaxRetries  int
	Backoff     time.Duration
	ReadTimeout time.Duration

	cache  *PriceCache
	log    logger.Logger
	dialer *websocket.Dialer
}

func NewTickerStream(url string, cache *PriceCache, log logger.Logger) *TickerStream {
	return &TickerStream{
		URL:         strings.TrimRight(url, "/"),
		MaxRetries:  3,
		Backoff:     5 * time.Second,
		ReadTimeout: 60 * time.Second,
		cache:       cache,
		log:         log,
		dialer:      websocket.DefaultDialer,
	}
}

func (s *TickerStream) streamURL(symbols []string) string {
	names := make([]string, len(symbols))
	for i, sym := range symbols {
		names[i] = strings.ToLower(sym) + "@ticker"
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.URL, strings.Join(names, "/"))
}

// Run streams until ctx is cancelled or the connection failed MaxRetries
// times in a row. The wait before retry n is Backoff * 5^(n-1).
func (s *TickerStream) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return errors.New("ticker stream: no symbols")
	}
	u := s.streamURL(symbols)
	failures := 0
	for {
		received, err := s.session(ctx, u)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received > 0 {
			failures = 0
		}
		failures++
		if failures > s.MaxRetries {
			return fmt.Errorf("ticker stream: giving up after %d retries: %w", s.MaxRetries, err)
		}
		wait := s.Backoff
		for i := 1; i < failures; i++ {
			wait *= 5
		}
		s.log.Warn("ticker_stream_reconnect",
			logger.Int("attempt", failures),
			logger.Duration("backoff", wait),
			logger.Err(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session reads from one connection until it fails. It returns the number of
// ticker updates applied.
func (s *TickerStream) session(ctx context.Context, u string) (int, error) {
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	received := 0
	for {
		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		var msg tickerMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return received, err
		}
		if msg.Data.Event != "24hrTicker" || msg.Data.Symbol == "" {
			continue
		}
		price, err := decimal.NewFromString(msg.Data.Close)
		if err != nil {
			s.log.Warn("ticker_stream_bad_message", logger.String("symbol", msg.Data.Symbol), logger.Err(err))
			continue
		}
		s.cache.Set(msg.Data.Symbol, price)
		received++
	}
}
