// Package metrics holds the Prometheus instruments the trader updates during
// operation, served at /metrics by the API server:
//   - trader_signals_total{direction,admitted} – gating decisions
//   - trader_orders_total{side,status}         – order submissions by outcome
//   - trader_order_cancels_total{result}       – cancel attempts
//   - trader_orders_expired_total              – stale pending orders expired
//   - trader_pending_orders                    – current local pending set size
//   - trader_running                           – 1 while the scan loop runs
//   - trader_scan_ticks_total                  – completed scan ticks
//   - trader_realized_pnl                      – cumulative realized P&L
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals by direction and gating outcome",
		},
		[]string{"direction", "admitted"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order submissions by side and resulting status",
		},
		[]string{"side", "status"},
	)

	cancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_order_cancels_total",
			Help: "Cancel attempts by result (ok|failed)",
		},
		[]string{"result"},
	)

	expiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_orders_expired_total",
			Help: "Pending orders force-expired as stale",
		},
	)

	pendingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_pending_orders",
			Help: "Locally tracked pending orders",
		},
	)

	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_running",
			Help: "1 while the scan loop is running",
		},
	)

	scanTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_scan_ticks_total",
			Help: "Completed scan ticks",
		},
	)

	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_realized_pnl",
			Help: "Cumulative realized profit and loss",
		},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal, ordersTotal, cancelsTotal)
	prometheus.MustRegister(expiredTotal, pendingOrders, running)
	prometheus.MustRegister(scanTicks, realizedPnL)
}

func IncSignal(direction string, admitted bool) {
	label := "false"
	if admitted {
		label = "true"
	}
	signalsTotal.WithLabelValues(direction, label).Inc()
}

func IncOrder(side, status string) { ordersTotal.WithLabelValues(side, status).Inc() }

func IncCancel(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	cancelsTotal.WithLabelValues(result).Inc()
}

func AddExpired(n int) { expiredTotal.Add(float64(n)) }

func SetPendingOrders(n int) { pendingOrders.Set(float64(n)) }

func SetRunning(on bool) { running.Set(boolToGauge(on)) }

func IncScanTick() { scanTicks.Inc() }

func SetRealizedPnL(v float64) { realizedPnL.Set(v) }

func boolToGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
