package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"BasketPilot/internal/logger"
)

// CommandHandler turns a chat command into a reply. An empty reply sends
// nothing.
type CommandHandler func(command string) string

type chatUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

const pollTimeout = 30

// StartPolling long-polls getUpdates and answers commands from the
// configured chat. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{Timeout: (pollTimeout + 5) * time.Second, Transport: t.Client.Transport}
	offset := 0
	for ctx.Err() == nil {
		var updates []chatUpdate
		err := t.call(ctx, client, "getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         pollTimeout,
			"allowed_updates": []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Warn("telegram_polling_failed", logger.Err(err))
			_ = sleepCtx(ctx, 5*time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			t.handleUpdate(ctx, u, handler)
		}
	}
	t.log.Info("telegram_polling_stopped")
}

func (t *TelegramNotifier) handleUpdate(ctx context.Context, u chatUpdate, handler CommandHandler) {
	if u.Message == nil || strconv.FormatInt(u.Message.Chat.ID, 10) != t.ChatID {
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return
	}
	t.log.Info("telegram_command", logger.String("command", text))
	reply := handler(text)
	if reply == "" {
		return
	}
	if err := t.Send(ctx, reply); err != nil {
		t.log.Error("telegram_reply_failed", logger.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
