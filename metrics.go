package lite3

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// routerMetrics records router activity. Collectors are always created so
// call sites need no nil checks; they are only exported when a registerer
// is configured.
type routerMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	refreshesTotal   *prometheus.CounterVec
	topologyNodes    prometheus.Gauge
	routingFallbacks prometheus.Counter
}

func newRouterMetrics(reg prometheus.Registerer) *routerMetrics {
	m := &routerMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lite3_requests_total",
			Help: "Total number of key-value requests by operation, node and result",
		}, []string{"op", "node", "result"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lite3_request_duration_seconds",
			Help:    "Key-value request latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"op"}),

		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lite3_topology_refreshes_total",
			Help: "Total number of topology refreshes by result",
		}, []string{"result"}),

		topologyNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lite3_topology_nodes",
			Help: "Number of nodes in the installed topology",
		}),

		routingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lite3_routing_fallbacks_total",
			Help: "Requests sent to a fallback node because the owner was missing from the pool",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requestsTotal,
			m.requestDuration,
			m.refreshesTotal,
			m.topologyNodes,
			m.routingFallbacks,
		)
	}

	return m
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}

func (m *routerMetrics) requestCompleted(op string, node uint32, started time.Time, err error) {
	label := "none"
	if node != 0 {
		label = strconv.FormatUint(uint64(node), 10)
	}
	m.requestsTotal.WithLabelValues(op, label, resultLabel(err)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *routerMetrics) refreshCompleted(nodes int, err error) {
	m.refreshesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.topologyNodes.Set(float64(nodes))
	}
}
