package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics exposes the bot's counters and gauges as Prometheus collectors.
// Collectors live on a private registry so tests can create fresh instances.
type Metrics struct {
	Registry *prometheus.Registry

	activeOrders   prometheus.Gauge
	executedOrders prometheus.Gauge
	totalProfit    prometheus.Gauge
	tradingEnabled prometheus.Gauge

	exchangeErrors    *prometheus.CounterVec
	backoffRetries    *prometheus.CounterVec
	ordersCreated     *prometheus.CounterVec
	ordersFinished    *prometheus.CounterVec
	notificationsSent prometheus.Counter
	commandsReceived  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		activeOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobay_active_orders",
			Help: "Active sell orders tracked by the controller",
		}),
		executedOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobay_executed_orders",
			Help: "Sell orders closed since the state was created",
		}),
		totalProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobay_total_profit_quote",
			Help: "Cumulative realized profit in quote currency",
		}),
		tradingEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autobay_trading_enabled",
			Help: "1 when autobay replenishment is running, 0 when stopped",
		}),
		exchangeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobay_exchange_errors_total",
			Help: "Exchange call failures by operation and kind",
		}, []string{"op", "kind"}),
		backoffRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobay_backoff_retries_total",
			Help: "Retries performed by the backoff executor",
		}, []string{"op"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobay_orders_created_total",
			Help: "Buy+sell pairs created by role",
		}, []string{"role"}),
		ordersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobay_orders_finished_total",
			Help: "Sell orders that left the active set by status",
		}, []string{"status"}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autobay_notifications_sent_total",
			Help: "Notifications delivered to the operator",
		}),
		commandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobay_commands_received_total",
			Help: "Operator commands received",
		}, []string{"command"}),
	}

	m.Registry.MustRegister(
		m.activeOrders,
		m.executedOrders,
		m.totalProfit,
		m.tradingEnabled,
		m.exchangeErrors,
		m.backoffRetries,
		m.ordersCreated,
		m.ordersFinished,
		m.notificationsSent,
		m.commandsReceived,
	)
	return m
}

// SetBook publishes the order book gauges.
func (m *Metrics) SetBook(active, executed int, profit decimal.Decimal, trading bool) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(active))
	m.executedOrders.Set(float64(executed))
	m.totalProfit.Set(profit.InexactFloat64())
	if trading {
		m.tradingEnabled.Set(1)
	} else {
		m.tradingEnabled.Set(0)
	}
}

// RecordExchangeError records a failed exchange call.
func (m *Metrics) RecordExchangeError(op, kind string) {
	if m == nil {
		return
	}
	m.exchangeErrors.WithLabelValues(op, kind).Inc()
}

// RecordRetry records one backoff retry of op.
func (m *Metrics) RecordRetry(op string) {
	if m == nil {
		return
	}
	m.backoffRetries.WithLabelValues(op).Inc()
}

// RecordOrderCreated records a new sell order by role.
func (m *Metrics) RecordOrderCreated(role string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(role).Inc()
}

// RecordOrderFinished records an order that closed or was canceled.
func (m *Metrics) RecordOrderFinished(status string) {
	if m == nil {
		return
	}
	m.ordersFinished.WithLabelValues(status).Inc()
}

// RecordNotification records a delivered notification.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notificationsSent.Inc()
}

// RecordCommand records an operator command.
func (m *Metrics) RecordCommand(cmd string) {
	if m == nil {
		return
	}
	m.commandsReceived.WithLabelValues(cmd).Inc()
}
