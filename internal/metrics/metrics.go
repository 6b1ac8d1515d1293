package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

const namespace = "courier"

// Metrics holds the lifecycle counters and the order gauge collector.
type Metrics struct {
	Packets *prometheus.CounterVec
	Events  *prometheus.CounterVec
}

// New registers the order metrics on reg. stats is called on every scrape.
func New(reg prometheus.Registerer, stats func() orders.Statistics) *Metrics {
	packets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_total",
		Help:      "Player packets dispatched, by action and outcome.",
	}, []string{"action", "outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_total",
		Help:      "Committed order lifecycle events.",
	}, []string{"type"})

	reg.MustRegister(packets, events, newOrderCollector(stats))
	return &Metrics{Packets: packets, Events: events}
}

// ObservePacket counts one dispatched packet.
func (m *Metrics) ObservePacket(action, outcome string) {
	m.Packets.WithLabelValues(action, outcome).Inc()
}

// Notify counts one lifecycle event.
func (m *Metrics) Notify(ev orders.Event) {
	m.Events.WithLabelValues(string(ev.Type)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// orderCollector reports the current order count per status at scrape time.
type orderCollector struct {
	stats  func() orders.Statistics
	orders *prometheus.Desc
}

func newOrderCollector(stats func() orders.Statistics) *orderCollector {
	return &orderCollector{
		stats: stats,
		orders: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "orders"),
			"Orders currently held, by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *orderCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.orders
}

func (c *orderCollector) Collect(ch chan<- prometheus.Metric) {
	for status, n := range c.stats().ByStatus() {
		ch <- prometheus.MustNewConstMetric(c.orders, prometheus.GaugeValue, float64(n), string(status))
	}
}
