// Package sentiment derives sentiment readings from the CryptoPanic news feed.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Provider supplies best-effort sentiment values in [0,1].
type Provider interface {
	SymbolSentiment(ctx context.Context, symbol string) (float64, error)
	AggregateNews(ctx context.Context) (float64, error)
	Headlines(ctx context.Context) ([]Headline, error)
}

var ErrNoCoverage = errors.New("no news coverage")

// Headline is one news item with its vote-derived sentiment.
type Headline struct {
	Title      string
	URL        string
	Source     string
	Published  time.Time
	Currencies []string
	Sentiment  float64
}

type Config struct {
	BaseURL    string
	APIKey     string
	QuoteAsset string
	Timeout    time.Duration
	CacheTTL   time.Duration
	Proxy      string
}

// CryptoPanic implements Provider. One feed request serves every symbol; the
// feed is cached for CacheTTL.
type CryptoPanic struct {
	cfg    Config
	Client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	posts   []Headline
	fetched time.Time
}

// NewCryptoPanic creates a provider with optional proxy support.
func NewCryptoPanic(cfg Config) *CryptoPanic {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CryptoPanic{
		cfg: cfg,
		Client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		now: time.Now,
	}
}

type postsResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Source      struct {
			Title string `json:"title"`
		} `json:"source"`
		Currencies []struct {
			Code string `json:"code"`
		} `json:"currencies"`
		Votes struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"votes"`
	} `json:"results"`
}

// VoteSentiment maps vote counts to [0,1]; 0.5 when nobody voted.
func VoteSentiment(positive, negative int) float64 {
	if positive+negative <= 0 {
		return 0.5
	}
	return float64(positive) / float64(positive+negative)
}

func (c *CryptoPanic) feed(ctx context.Context) ([]Headline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.cfg.CacheTTL {
		return c.posts, nil
	}

	q := url.Values{}
	q.Set("auth_token", c.cfg.APIKey)
	q.Set("public", "true")
	q.Set("kind", "news")
	u := fmt.Sprintf("%s/posts/?%s", c.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptopanic: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cryptopanic read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptopanic: status %d, body: %s", resp.StatusCode, string(body))
	}
	var parsed postsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("cryptopanic decode: %w", err)
	}

	posts := make([]Headline, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		h := Headline{
			Title:     r.Title,
			URL:       r.URL,
			Source:    r.Source.Title,
			Sentiment: VoteSentiment(r.Votes.Positive, r.Votes.Negative),
		}
		if t, err := time.Parse(time.RFC3339, r.PublishedAt); err == nil {
			h.Published = t
		}
		for _, cur := range r.Currencies {
			h.Currencies = append(h.Currencies, strings.ToUpper(cur.Code))
		}
		posts = append(posts, h)
	}
	c.posts = posts
	c.fetched = c.now()
	return posts, nil
}

// SymbolSentiment averages the sentiment of posts tagged with the symbol's
// base asset.
func (c *CryptoPanic) SymbolSentiment(ctx context.Context, symbol string) (float64, error) {
	posts, err := c.feed(ctx)
	if err != nil {
		return 0, err
	}
	coin := strings.TrimSuffix(strings.ToUpper(symbol), c.cfg.QuoteAsset)
	sum, n := 0.0, 0
	for _, p := range posts {
		for _, cur := range p.Currencies {
			if cur == coin {
				sum += p.Sentiment
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", coin, ErrNoCoverage)
	}
	return sum / float64(n), nil
}

// AggregateNews averages the sentiment of the whole feed; 0 when it is empty.
func (c *CryptoPanic) AggregateNews(ctx context.Context) (float64, error) {
	posts, err := c.feed(ctx)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, p := range posts {
		sum += p.Sentiment
	}
	return sum / float64(len(posts)), nil
}

// Headlines returns the cached feed.
func (c *CryptoPanic) Headlines(ctx context.Context) ([]Headline, error) {
	posts, err := c.feed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Headline, len(posts))
	copy(out, posts)
	return out, nil
}
