package notifier

import (
	"context"
	"sync"
	"time"

	"BasketPilot/internal/logger"
)

// Async delivers messages on a background goroutine so callers never wait
// on the network. When the queue is full new messages are dropped.
type Async struct {
	next    Notifier
	queue   chan string
	log     logger.Logger
	timeout time.Duration

	once sync.Once
	wg   sync.WaitGroup
}

func NewAsync(next Notifier, size int, log logger.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	return &Async{next: next, queue: make(chan string, size), log: log, timeout: 2 * time.Minute}
}

// Start launches the delivery goroutine. It exits when ctx is cancelled or
// Close is called, after draining queued messages in the Close case.
func (a *Async) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-a.queue:
				if !ok {
					return
				}
				a.deliver(ctx, text)
			}
		}
	}()
}

func (a *Async) deliver(parent context.Context, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, text); err != nil {
		a.log.Warn("notification_failed", logger.Err(err))
	}
}

// Notify enqueues text and returns immediately.
func (a *Async) Notify(_ context.Context, text string) error {
	select {
	case a.queue <- text:
	default:
		a.log.Warn("notification_dropped", logger.Int("queue_size", cap(a.queue)))
	}
	return nil
}

// Close stops accepting messages and waits for the queue to drain.
func (a *Async) Close() {
	a.once.Do(func() { close(a.queue) })
	a.wg.Wait()
}
