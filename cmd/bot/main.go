package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"BasketPilot/internal/config"
	"BasketPilot/internal/exchange"
	"BasketPilot/internal/executor"
	"BasketPilot/internal/fund"
	"BasketPilot/internal/logger"
	"BasketPilot/internal/metrics"
	"BasketPilot/internal/notifier"
	"BasketPilot/internal/quantizer"
	"BasketPilot/internal/ratelimit"
	"BasketPilot/internal/recorder"
	"BasketPilot/internal/risk"
	"BasketPilot/internal/scheduler"
	"BasketPilot/internal/sentiment"
	"BasketPilot/internal/strategy"
	"BasketPilot/internal/trader"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("bot_stopped_with_error", logger.Err(err))
		os.Exit(1)
	}
	log.Info("bot_stopped")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("bot_starting",
		logger.String("mode", cfg.Mode),
		logger.Bool("simulation", cfg.SimulationMode),
		logger.String("quote", cfg.Exchange.QuoteAsset))

	// Recorder
	rec, err := recorder.Open(ctx, cfg.Database.PostgresURL, cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn("recorder_unavailable", logger.Err(err))
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	// Exchange: every call passes the shared rate limiter; prices prefer the
	// websocket cache.
	binance := exchange.NewBinanceClient(exchange.BinanceConfig{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		RecvWindow: cfg.Exchange.RecvWindow,
		Timeout:    cfg.Exchange.Timeout,
		Proxy:      cfg.Proxy,
	})
	if err := binance.SyncTime(ctx); err != nil {
		log.Warn("time_sync_failed", logger.Err(err))
	}
	var client exchange.Client = exchange.NewLimited(binance, ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window))
	if cfg.SimulationMode && cfg.Exchange.APIKey == "" {
		log.Warn("paper_balances", logger.Float64("quote_balance", cfg.Trading.MaxTradeUSD))
		client = exchange.NewPaperBalances(client, cfg.Exchange.QuoteAsset, decimal.NewFromFloat(cfg.Trading.MaxTradeUSD))
	}
	prices := exchange.NewPriceCache(60 * time.Second)
	market := exchange.NewCachedPrices(client, prices)
	universe := exchange.NewSymbolCache(market, cfg.Exchange.QuoteAsset, cfg.Exchange.MaxSymbols, time.Hour)
	if err := universe.Refresh(ctx); err != nil {
		log.Warn("symbols_refresh_failed", logger.Err(err))
	}

	// Notifications
	var notify notifier.Notifier = notifier.Nop{}
	var tg *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tg = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		async := notifier.NewAsync(tg, 64, log)
		async.Start(ctx)
		defer async.Close()
		notify = async
	}

	// Trading core
	q := quantizer.New(market, log)
	engine := strategy.NewEngine(market, strategy.EngineConfig{
		Interval:    cfg.Exchange.Interval,
		CandleLimit: cfg.Exchange.CandleLimit,
		Workers:     cfg.Trading.Workers,
	}, log)
	exec := executor.New(market, cfg.SimulationMode, rec, notify, log)
	rm, err := risk.NewManager(risk.Config{
		MaxDrawdown:    cfg.Risk.MaxDrawdown,
		StopLossMult:   cfg.Risk.StopLossMult,
		TakeProfitMult: cfg.Risk.TakeProfitMult,
		QuoteAsset:     cfg.Exchange.QuoteAsset,
		StateFile:      cfg.Risk.StateFile,
	}, risk.Deps{
		Prices:     market,
		Volatility: strategy.NewCandleVolatility(market, cfg.Exchange.Interval, cfg.Risk.VolatilityPeriod),
		Balances:   market,
		Quantizer:  q,
		Executor:   exec,
	}, log)
	if err != nil {
		return fmt.Errorf("init risk manager: %w", err)
	}

	var (
		blender trader.Blender
		news    scheduler.NewsSource
	)
	if cfg.Sentiment.EnableNews && cfg.Sentiment.APIKey != "" {
		cp := sentiment.NewCryptoPanic(sentiment.Config{
			BaseURL:    cfg.Sentiment.BaseURL,
			APIKey:     cfg.Sentiment.APIKey,
			QuoteAsset: cfg.Exchange.QuoteAsset,
			Timeout:    cfg.Sentiment.Timeout,
			Proxy:      cfg.Proxy,
		})
		news = cp
		if cfg.SentimentActive() {
			blender = strategy.NewBlender(cp, cfg.Sentiment.NewsWeight, log)
		}
	}

	tr := trader.New(trader.Config{
		QuoteAsset:     cfg.Exchange.QuoteAsset,
		ClampToBalance: cfg.Trading.Clamp(),
	}, trader.Deps{
		Market:    market,
		Universe:  universe,
		Scorer:    engine,
		Blender:   blender,
		Allocator: fund.NewAllocator(cfg.Trading.MaxTradeUSD, cfg.Trading.FallbackSymbols),
		Quantizer: q,
		Risk:      rm,
		Executor:  exec,
		Recorder:  rec,
		Notifier:  notify,
	}, log)

	// Scheduler
	sched := scheduler.New(ctx, scheduler.Config{
		Interval:               cfg.Trading.AnalysisInterval,
		SummaryCron:            cfg.Telegram.SummaryCron,
		MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
	}, tr, news, rm, notify, log)
	if err := sched.RegisterAll(); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tg != nil {
		router := notifier.NewRouter()
		sched.RegisterCommands(router)
		go tg.StartPolling(ctx, router.Dispatch)
		log.Info("telegram_polling_started")
	}

	if cfg.Exchange.Stream {
		stream := exchange.NewTickerStream(cfg.Exchange.WSURL, prices, log)
		go func() {
			if err := stream.Run(ctx, universe.Symbols()); err != nil && ctx.Err() == nil {
				log.Warn("ticker_stream_stopped", logger.Err(err))
			}
		}()
	}

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", logger.Err(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("run_on_start")
		go sched.RunCycleNow()
	}

	log.Info("bot_running", logger.String("metrics_addr", cfg.Metrics.Addr))

	select {
	case <-ctx.Done():
		log.Info("shutdown_signal_received")
		return nil
	case err := <-sched.Errors():
		return err
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
