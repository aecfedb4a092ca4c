// Package metric provides Prometheus metrics for MeshSync.
//
// All protocol and session metrics live in one Metrics struct wired
// at startup; the storage engine registers its own gauges against the
// same registry. Metrics are exposed at /metrics on the observability
// listener.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshsync"

// Metrics holds every application metric.
type Metrics struct {
	registry *prometheus.Registry

	// Protocol
	PacketsReceived   *prometheus.CounterVec
	PacketsSent       *prometheus.CounterVec
	PacketsMalformed  prometheus.Counter
	VersionMismatches prometheus.Counter
	BytesReceived     prometheus.Counter
	BytesSent         prometheus.Counter

	// Sessions
	PeersConnected prometheus.Gauge
	PeersEvicted   prometheus.Counter
	PeerRTT        prometheus.Histogram

	// Replication
	SnapshotsBuilt   prometheus.Counter
	SnapshotEntities prometheus.Histogram
	EntitiesTracked  prometheus.Gauge
	Corrections      prometheus.Counter

	// Reliability
	Retransmits      prometheus.Counter
	PeersUnreachable prometheus.Counter
	PacketLossRate   prometheus.Gauge

	// Channels
	MessagesDropped *prometheus.CounterVec

	// Tick loop
	TickDuration prometheus.Histogram
}

// New creates a Metrics set on a fresh registry that also carries the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Datagrams received, by packet kind.",
		}, []string{"kind"}),
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Datagrams sent, by packet kind.",
		}, []string{"kind"}),
		PacketsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_malformed_total",
			Help:      "Datagrams rejected as malformed.",
		}),
		VersionMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_mismatches_total",
			Help:      "Datagrams rejected for an unknown protocol version.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Payload bytes received.",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Payload bytes sent.",
		}),

		PeersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Currently connected peers.",
		}),
		PeersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_evicted_total",
			Help:      "Peers evicted for missed keepalives.",
		}),
		PeerRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "peer_rtt_seconds",
			Help:      "Smoothed peer round-trip time.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),

		SnapshotsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_built_total",
			Help:      "State snapshots assembled.",
		}),
		SnapshotEntities: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_entities",
			Help:      "Entities per snapshot.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		EntitiesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities_tracked",
			Help:      "Entities in the replication table.",
		}),
		Corrections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Reconciliation corrections issued.",
		}),

		Retransmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmits_total",
			Help:      "Reliable packets retransmitted.",
		}),
		PeersUnreachable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_unreachable_total",
			Help:      "Peers declared unreachable after retry exhaustion.",
		}),
		PacketLossRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "packet_loss_rate",
			Help:      "Smoothed inbound packet loss estimate across peers.",
		}),

		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Channel messages dropped, by channel and reason.",
		}, []string{"channel", "reason"}),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent per simulation tick.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 2, 12),
		}),
	}
}

// Registerer returns the underlying registerer so other components
// (storage, transports) can add their own metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
