package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cluster_node",
			Name:      "messages_total",
			Help:      "Inbound protocol messages handled, by body kind.",
		},
		[]string{"kind"},
	)

	RepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cluster_node",
			Name:      "replies_total",
			Help:      "Reply messages written to the output stream.",
		},
	)

	GossipRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cluster_node",
			Name:      "gossip_rounds_total",
			Help:      "Gossip timer ticks processed by the event loop.",
		},
	)

	GossipMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cluster_node",
			Name:      "gossip_messages_total",
			Help:      "Gossip messages sent to neighbors.",
		},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cluster_node",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "cluster_node",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(MessagesTotal, RepliesTotal, GossipRounds, GossipMessages, buildInfo, uptime)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// Serve exposes the registry on its own listener so the protocol stream on
// stdout stays untouched. Blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	return http.ListenAndServe(addr, mux)
}
