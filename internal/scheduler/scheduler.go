// Package scheduler drives the trading cycle and the periodic sentiment
// report from cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"BasketPilot/internal/logger"
	"BasketPilot/internal/model"
	"BasketPilot/internal/notifier"
	"BasketPilot/internal/sentiment"
	"BasketPilot/internal/trader"
)

// ErrRetryBudgetExhausted is sent on Errors() once too many cycles in a row
// failed on a hard dependency.
var ErrRetryBudgetExhausted = errors.New("consecutive cycle failures exceeded retry budget")

// CycleRunner runs one trading cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*trader.Report, error)
	LastReport() *trader.Report
}

// NewsSource feeds the sentiment report.
type NewsSource interface {
	AggregateNews(ctx context.Context) (float64, error)
	Headlines(ctx context.Context) ([]sentiment.Headline, error)
}

type PositionSource interface {
	Positions() []model.Position
}

type Config struct {
	Interval               time.Duration
	SummaryCron            string
	MaxConsecutiveFailures int
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron      *cron.Cron
	ctx       context.Context
	cfg       Config
	runner    CycleRunner
	news      NewsSource
	positions PositionSource
	notify    notifier.Notifier
	log       logger.Logger

	running  chan struct{}
	mu       sync.Mutex
	failures int
	errs     chan error
}

// New creates a Scheduler. news may be nil, which disables the report.
func New(ctx context.Context, cfg Config, runner CycleRunner, news NewsSource, positions PositionSource, notify notifier.Notifier, log logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:       ctx,
		cfg:       cfg,
		runner:    runner,
		news:      news,
		positions: positions,
		notify:    notify,
		log:       log,
		running:   make(chan struct{}, 1),
		errs:      make(chan error, 1),
	}
}

// RegisterAll registers the trading cycle and, when configured, the
// sentiment report.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.cron.AddFunc("@every "+s.cfg.Interval.String(), s.RunCycleNow); err != nil {
		return fmt.Errorf("register trading cycle: %w", err)
	}
	if s.news != nil && s.cfg.SummaryCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.SummaryCron, s.SendSentimentReport); err != nil {
			return fmt.Errorf("register sentiment report: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler_started", logger.Duration("interval", s.cfg.Interval))
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler_stopped")
}

// Errors delivers ErrRetryBudgetExhausted when the failure budget runs out.
func (s *Scheduler) Errors() <-chan error { return s.errs }

// tryAcquire takes the single cycle slot without blocking.
func (s *Scheduler) tryAcquire() bool {
	select {
	case s.running <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) release() { <-s.running }

// RunCycleNow runs one cycle unless another one is in flight.
func (s *Scheduler) RunCycleNow() {
	if !s.tryAcquire() {
		s.log.Info("cycle_skipped", logger.String("op", "already_running"))
		return
	}
	defer s.release()
	s.runCycle()
}

// runCycle runs one cycle and tracks consecutive hard failures. The caller
// holds the cycle slot. Cancellation is not counted.
func (s *Scheduler) runCycle() {
	_, err := s.runner.RunCycle(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.failures = 0
	case s.ctx.Err() != nil:
		return
	default:
		s.failures++
		s.log.Warn("cycle_failure_counted",
			logger.Int("consecutive", s.failures),
			logger.Int("budget", s.cfg.MaxConsecutiveFailures),
			logger.Err(err))
		if s.failures >= s.cfg.MaxConsecutiveFailures {
			select {
			case s.errs <- fmt.Errorf("%w: %d in a row, last: %w", ErrRetryBudgetExhausted, s.failures, err):
			default:
			}
		}
	}
}

// SendSentimentReport notifies the aggregate news sentiment and top headlines.
func (s *Scheduler) SendSentimentReport() {
	text, err := s.sentimentReport()
	if err != nil {
		s.log.Warn("sentiment_report_failed", logger.Err(err))
		return
	}
	if err := s.notify.Notify(s.ctx, text); err != nil {
		s.log.Warn("sentiment_report_failed", logger.Err(err))
	}
}

func (s *Scheduler) sentimentReport() (string, error) {
	if s.news == nil {
		return "", errors.New("news sentiment disabled")
	}
	news, err := s.news.AggregateNews(s.ctx)
	if err != nil {
		return "", fmt.Errorf("aggregate news: %w", err)
	}
	headlines, err := s.news.Headlines(s.ctx)
	if err != nil {
		return "", fmt.Errorf("headlines: %w", err)
	}
	return notifier.FormatSentimentReport(news, headlines), nil
}

// RegisterCommands wires the chat commands onto r.
func (s *Scheduler) RegisterCommands(r *notifier.Router) {
	r.Handle("/status", "last cycle summary", s.statusCommand)
	r.Handle("/health", "portfolio value and drawdown", s.healthCommand)
	r.Handle("/positions", "open positions", func() string {
		if s.positions == nil {
			return notifier.FormatPositions(nil)
		}
		return notifier.FormatPositions(s.positions.Positions())
	})
	r.Handle("/sentiment", "news sentiment report", func() string {
		text, err := s.sentimentReport()
		if err != nil {
			return "Sentiment unavailable: " + err.Error()
		}
		return text
	})
	r.Handle("/run", "run a cycle now", func() string {
		if !s.tryAcquire() {
			return "Cycle already running"
		}
		go func() {
			defer s.release()
			s.runCycle()
		}()
		return "Cycle started"
	})
}

func (s *Scheduler) statusCommand() string {
	rep := s.runner.LastReport()
	if rep == nil {
		return "No cycle completed yet"
	}
	return notifier.FormatCycleSummary(rep.CycleID, rep.Scored, rep.Fills, rep.Value)
}

func (s *Scheduler) healthCommand() string {
	rep := s.runner.LastReport()
	if rep == nil {
		return "No cycle completed yet"
	}
	h := rep.Health
	return fmt.Sprintf("Initial: %.2f\nCurrent: %.2f\nDrawdown: %.2f%%", h.Initial, h.Current, h.Drawdown*100)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron_"+msg, fields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron_"+msg, append(fields(keysAndValues), logger.Err(err))...)
}

func fields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
