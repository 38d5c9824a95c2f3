package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/model"
)

// BinanceConfig configures the REST client.
type BinanceConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int
	Timeout    time.Duration
	Proxy      string
}

// BinanceClient implements Client against the Binance spot REST API.
type BinanceClient struct {
	BaseURL    string
	Client     *http.Client
	apiKey     string
	apiSecret  string
	recvWindow int

	// server time minus local time, in milliseconds
	timeOffset atomic.Int64
	now        func() time.Time
}

// NewBinanceClient creates a client with optional proxy support.
func NewBinanceClient(cfg BinanceConfig) *BinanceClient {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BinanceClient{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: cfg.RecvWindow,
		now:        time.Now,
	}
}

// SyncTime measures the offset between the exchange clock and ours so signed
// requests carry a timestamp the exchange accepts.
func (c *BinanceClient) SyncTime(ctx context.Context) error {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.get(ctx, "/api/v3/time", nil, &resp); err != nil {
		return fmt.Errorf("sync time: %w", err)
	}
	c.timeOffset.Store(resp.ServerTime - c.now().UnixMilli())
	return nil
}

// Candles fetches the most recent klines, oldest first.
func (c *BinanceClient) Candles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return model.CandleSeries{}, fmt.Errorf("klines %s: %w", symbol, err)
	}

	bars := make([]model.OHLCV, 0, len(rows))
	for i, row := range rows {
		bar, err := parseKline(row)
		if err != nil {
			return model.CandleSeries{}, fmt.Errorf("klines %s row %d: %w", symbol, i, err)
		}
		bars = append(bars, bar)
	}
	return model.CandleSeries{Symbol: symbol, Interval: interval, Bars: bars}, nil
}

// kline rows are [openTime, "open", "high", "low", "close", "volume", closeTime, ...]
func parseKline(row []json.RawMessage) (model.OHLCV, error) {
	if len(row) < 6 {
		return model.OHLCV{}, fmt.Errorf("short kline (%d fields)", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.OHLCV{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return model.OHLCV{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.OHLCV{}, err
		}
		vals[i] = v
	}
	return model.OHLCV{
		Time:   time.UnixMilli(openTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func (c *BinanceClient) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", q, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: bad price %q: %w", symbol, resp.Price, err)
	}
	return price, nil
}

type symbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Filters    []struct {
		FilterType string `json:"filterType"`
		StepSize   string `json:"stepSize"`
	} `json:"filters"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

func (c *BinanceClient) StepSize(ctx context.Context, symbol string) (string, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", q, &info); err != nil {
		return "", fmt.Errorf("exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				return f.StepSize, nil
			}
		}
		return "", fmt.Errorf("%s: %w", symbol, ErrNoLotSize)
	}
	return "", fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}

// Symbols lists every TRADING symbol quoted in quote, in exchange order.
func (c *BinanceClient) Symbols(ctx context.Context, quote string) ([]string, error) {
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && strings.HasSuffix(s.Symbol, quote) {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

// Balances returns free balances above zero.
func (c *BinanceClient) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := c.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &resp); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	out := make(map[string]decimal.Decimal)
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil || !free.IsPositive() {
			continue
		}
		out[b.Asset] = free
	}
	return out, nil
}

// SubmitOrder places a MARKET order.
func (c *BinanceClient) SubmitOrder(ctx context.Context, order model.Order) (model.Receipt, error) {
	q := url.Values{}
	q.Set("symbol", order.Symbol)
	q.Set("side", string(order.Side))
	q.Set("type", "MARKET")
	q.Set("quantity", order.Quantity.String())
	if order.ClientID != "" {
		q.Set("newClientOrderId", order.ClientID)
	}

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
		TransactTime  int64  `json:"transactTime"`
	}
	if err := c.signed(ctx, http.MethodPost, "/api/v3/order", q, &resp); err != nil {
		return model.Receipt{}, fmt.Errorf("order %s %s: %w", order.Side, order.Symbol, err)
	}
	executed, _ := decimal.NewFromString(resp.ExecutedQty)
	at := c.now()
	if resp.TransactTime > 0 {
		at = time.UnixMilli(resp.TransactTime)
	}
	return model.Receipt{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Status:        resp.Status,
		ExecutedQty:   executed,
		At:            at,
	}, nil
}

func (c *BinanceClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BinanceClient) signed(ctx context.Context, method, path string, q url.Values, out any) error {
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli()+c.timeOffset.Load(), 10))
	if c.recvWindow > 0 {
		q.Set("recvWindow", strconv.Itoa(c.recvWindow))
	}
	payload := q.Encode()
	payload += "&signature=" + c.sign(payload)
	return c.do(ctx, method, path, payload, true, out)
}

func (c *BinanceClient) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q.Encode(), false, out)
}

func (c *BinanceClient) do(ctx context.Context, method, path, query string, auth bool, out any) error {
	u := c.BaseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if auth {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(body)}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
