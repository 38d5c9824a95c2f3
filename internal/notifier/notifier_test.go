package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BasketPilot/internal/model"
	"BasketPilot/internal/sentiment"
	"BasketPilot/internal/testutils"
)

func newTestTelegram(t *testing.T, h http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tg := NewTelegramNotifier("TOKEN", "123", "", testutils.NewMockLogger())
	tg.BaseURL = srv.URL
	tg.backoff = func(int) time.Duration { return time.Millisecond }
	return tg
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"ok":true}`)
	})

	require.NoError(t, tg.Notify(context.Background(), "hello"))
	assert.Equal(t, "123", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestTelegramAPIErrorPayload(t *testing.T) {
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	})
	assert.ErrorContains(t, tg.Send(context.Background(), "x"), "chat not found")
}

func TestTelegramRetry(t *testing.T) {
	var calls atomic.Int32
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	require.NoError(t, tg.SendWithRetry(context.Background(), "x", 2))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	err := tg.SendWithRetry(context.Background(), "x", 1)
	assert.ErrorContains(t, err, "all 2 retries exhausted")
}

func TestPolling_AnswersConfiguredChatOnly(t *testing.T) {
	replies := make(chan string, 4)
	var polls atomic.Int32
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if polls.Add(1) == 1 {
				assert.Equal(t, float64(0), body["offset"])
				fmt.Fprint(w, `{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/status","chat":{"id":999}}},
					{"update_id":8,"message":{"text":" /status ","chat":{"id":123}}}]}`)
				return
			}
			assert.Equal(t, float64(9), body["offset"])
			time.Sleep(10 * time.Millisecond)
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			replies <- body["text"].(string)
			fmt.Fprint(w, `{"ok":true}`)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tg.StartPolling(ctx, func(cmd string) string { return "got " + cmd })
		close(done)
	}()

	select {
	case r := <-replies:
		assert.Equal(t, "got /status", r)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
	assert.Empty(t, replies, "message from another chat must be ignored")
}

type slowNotifier struct {
	mu    sync.Mutex
	texts []string
	delay time.Duration
	err   error
}

func (s *slowNotifier) Notify(_ context.Context, text string) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func TestAsync_NeverBlocksAndDrainsOnClose(t *testing.T) {
	inner := &slowNotifier{delay: 50 * time.Millisecond}
	log := testutils.NewMockLogger()
	a := NewAsync(inner, 2, log)
	a.Start(context.Background())

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Notify(context.Background(), fmt.Sprint(i)))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Notify must not wait for delivery")
	a.Close()

	inner.mu.Lock()
	delivered := len(inner.texts)
	inner.mu.Unlock()
	assert.GreaterOrEqual(t, delivered, 2)
	assert.Less(t, delivered, 10)
	assert.True(t, log.Has("warn", "notification_dropped"))
}

func TestAsync_LogsDeliveryFailure(t *testing.T) {
	log := testutils.NewMockLogger()
	a := NewAsync(&slowNotifier{err: errors.New("down")}, 4, log)
	a.Start(context.Background())
	_ = a.Notify(context.Background(), "x")
	a.Close()
	assert.True(t, log.Has("warn", "notification_failed"))
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	r.Handle("/status", "bot status", func() string { return "ok" })
	r.Handle("/positions", "open positions", func() string { return "none" })

	assert.Equal(t, "ok", r.Dispatch("/status"))
	assert.Equal(t, "none", r.Dispatch("/positions@basket_bot extra"))
	help := r.Dispatch("/unknown")
	assert.Contains(t, help, "/positions - open positions")
	assert.Contains(t, help, "/status - bot status")
	assert.Equal(t, "", r.Dispatch("   "))
}

func TestFormatters(t *testing.T) {
	fill := model.Fill{
		Order: model.Order{
			Symbol: "BTCUSDT", Side: model.SideSell, Reason: model.ReasonStopLoss,
			Quantity: decimal.RequireFromString("0.5"), Price: decimal.RequireFromString("27000.456"),
		},
		Receipt: model.Receipt{OrderID: "42"},
	}
	alert := FormatOrderAlert(fill)
	assert.Contains(t, alert, "BTCUSDT")
	assert.Contains(t, alert, "STOP_LOSS")
	assert.Contains(t, alert, "27000.46")
	assert.Contains(t, alert, "42")

	fill.Receipt.Simulated = true
	assert.Contains(t, FormatOrderAlert(fill), "Simulated")

	failed := fill
	failed.Err = errors.New("rejected")
	liq := FormatLiquidationAlert(1000, 800, 0.2, []model.Fill{fill, failed})
	assert.Contains(t, liq, "20.00%")
	assert.Contains(t, liq, "1 order(s) failed")

	summary := FormatCycleSummary("0123456789abcdef", []model.ScoredSymbol{{Symbol: "ETHUSDT", Score: 0.42}}, []model.Fill{fill, failed}, 1234.5)
	assert.Contains(t, summary, "01234567")
	assert.Contains(t, summary, "ETHUSDT +0.420")
	assert.Contains(t, summary, "1 executed, 1 failed")

	report := FormatSentimentReport(0.62, []sentiment.Headline{
		{Title: "A & B", URL: "https://x/1", Sentiment: 0.9},
		{Title: "C", URL: "https://x/2", Sentiment: 0.5},
		{Title: "D", URL: "https://x/3", Sentiment: 0.1},
		{Title: "E", URL: "https://x/4", Sentiment: 0.1},
	})
	assert.Contains(t, report, "62.0%")
	assert.Contains(t, report, "A &amp; B")
	assert.NotContains(t, report, "https://x/4")

	assert.Equal(t, "📦 No open positions", FormatPositions(nil))
	assert.Contains(t, FormatPositions([]model.Position{{Symbol: "BTCUSDT", Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)}}), "BTCUSDT: 1 @ 100.0000")
}
