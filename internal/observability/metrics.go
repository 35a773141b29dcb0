package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the client's Prometheus registry.
type Metrics struct {
	registry          *prometheus.Registry
	connectionsTotal  *prometheus.CounterVec
	mintsTotal        *prometheus.CounterVec
	contractEvents    *prometheus.CounterVec
	totalMinted       prometheus.Gauge
	subscriptionsLive prometheus.Gauge
}

func NewMetrics() *Metrics {
	connections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "senseimint_connections_total",
		Help: "Wallet connection attempts by outcome",
	}, []string{"status"})

	mints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "senseimint_mint_submissions_total",
		Help: "Mint submissions by outcome",
	}, []string{"status"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "senseimint_contract_events_total",
		Help: "Contract events received",
	}, []string{"event"})

	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "senseimint_total_minted",
		Help: "Last known total of minted tokens",
	})

	subs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "senseimint_event_subscriptions",
		Help: "Live contract event subscriptions",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(connections, mints, events, total, subs)

	return &Metrics{
		registry:          r,
		connectionsTotal:  connections,
		mintsTotal:        mints,
		contractEvents:    events,
		totalMinted:       total,
		subscriptionsLive: subs,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncConnection(status string) {
	m.connectionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncMint(status string) {
	m.mintsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncEvent(name string) {
	m.contractEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) SetTotalMinted(total uint64) {
	m.totalMinted.Set(float64(total))
}

func (m *Metrics) SetSubscriptions(n int) {
	m.subscriptionsLive.Set(float64(n))
}
