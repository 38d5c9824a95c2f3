package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketpilot_orders_submitted_total",
			Help: "Orders passed to the execution sink, by side, reason and mode.",
		},
		[]string{"side", "reason", "mode"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketpilot_order_failures_total",
			Help: "Orders rejected by the exchange or failing in transit.",
		},
		[]string{"side"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketpilot_positions_open",
			Help: "Positions currently tracked by the risk manager.",
		},
	)

	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketpilot_portfolio_value",
			Help: "Last observed portfolio value in quote currency.",
		},
	)

	Drawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketpilot_drawdown_ratio",
			Help: "Drawdown relative to the initial balance.",
		},
	)

	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "basketpilot_ratelimit_wait_seconds",
			Help:    "Time callers spent throttled by the rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "basketpilot_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	CycleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "basketpilot_cycle_failures_total",
			Help: "Cycles aborted by a hard dependency failure.",
		},
	)

	SymbolsScored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketpilot_symbols_scored",
			Help: "Symbols that produced a usable score in the last cycle.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted, OrderFailures, PositionsOpen, PortfolioValue, Drawdown,
		RateLimitWait, CycleDuration, CycleFailures, SymbolsScored,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
