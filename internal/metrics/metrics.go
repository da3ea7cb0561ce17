// Package metrics exposes the Prometheus series the bot updates while
// running:
//   - bot_orders_total{strategy,side,mode} – orders placed (mode: mock|live)
//   - bot_risk_denials_total{strategy}     – trades denied by the risk gate
//   - bot_ticks_total{strategy,result}     – strategy ticks by outcome
//   - bot_confidence_score                 – latest combined confidence (gauge)
//   - bot_equity_usd                       – latest portfolio value (gauge)
//
// Registered in init() and served at /metrics by the API server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"strategy", "side", "mode"},
	)

	RiskDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_risk_denials_total",
			Help: "Trades denied by the risk gate",
		},
		[]string{"strategy"},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Strategy ticks by result (traded|skipped|error)",
		},
		[]string{"strategy", "result"},
	)

	ConfidenceScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_confidence_score",
			Help: "Latest combined confidence score",
		},
	)

	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_equity_usd",
			Help: "Latest total portfolio value in USD",
		},
	)
)

func init() {
	prometheus.MustRegister(Orders, RiskDenials, Ticks, ConfidenceScore, EquityUSD)
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
