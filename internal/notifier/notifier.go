// Package notifier delivers alerts and reports to Telegram.
package notifier

import "context"

// Notifier delivers a text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
