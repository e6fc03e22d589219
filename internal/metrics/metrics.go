package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladder_bot_orders_placed_total",
			Help: "Orders placed",
		},
		[]string{"side", "kind"},
	)

	orderEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladder_bot_order_events_total",
			Help: "Observed order status transitions",
		},
		[]string{"side", "status"},
	)

	sessionProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladder_bot_session_profit_quote",
			Help: "Realized profit of the current session in quote currency",
		},
	)

	freeRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladder_bot_free_quote_ratio",
			Help: "Free quote divided by total quote incl. open sells",
		},
	)

	currentMargin = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ladder_bot_margin",
			Help: "Margin applied to the last counter order",
		},
	)

	openOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladder_bot_open_orders",
			Help: "Open orders tracked by the monitor",
		},
		[]string{"side"},
	)

	rebalances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladder_bot_rebalances_total",
			Help: "Ladder replacements by result (ok|partial|rejected)",
		},
		[]string{"result"},
	)

	merges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ladder_bot_merges_total",
			Help: "Pairs of sell orders merged after hitting the order count limit",
		},
	)

	gatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladder_bot_gateway_errors_total",
			Help: "Exchange call failures by operation and class",
		},
		[]string{"op", "class"},
	)

	invariantViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ladder_bot_invariant_violations_total",
			Help: "Bookkeeping invariant violations",
		},
		[]string{"component"},
	)
)

func init() {
	prometheus.MustRegister(ordersPlaced, orderEvents)
	prometheus.MustRegister(sessionProfit, freeRatio, currentMargin, openOrders)
	prometheus.MustRegister(rebalances, merges)
	prometheus.MustRegister(gatewayErrors, invariantViolations)
}

func IncOrderPlaced(side, kind string)  { ordersPlaced.WithLabelValues(side, kind).Inc() }
func IncOrderEvent(side, status string) { orderEvents.WithLabelValues(side, status).Inc() }
func IncRebalance(result string)        { rebalances.WithLabelValues(result).Inc() }
func AddMerges(n int)                   { merges.Add(float64(n)) }
func IncGatewayError(op, class string)  { gatewayErrors.WithLabelValues(op, class).Inc() }
func IncInvariantViolation(c string)    { invariantViolations.WithLabelValues(c).Inc() }

func SetSessionProfit(v decimal.Decimal) { sessionProfit.Set(v.InexactFloat64()) }
func SetFreeRatio(v decimal.Decimal)     { freeRatio.Set(v.InexactFloat64()) }
func SetMargin(v decimal.Decimal)        { currentMargin.Set(v.InexactFloat64()) }

func SetOpenOrders(buys, sells int) {
	openOrders.WithLabelValues("BUY").Set(float64(buys))
	openOrders.WithLabelValues("SELL").Set(float64(sells))
}
