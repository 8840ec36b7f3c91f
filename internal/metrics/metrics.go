// Package metrics provides Prometheus instrumentation for the realtime
// messaging core: connection lifecycle counters, frame throughput, and
// presence gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected reports whether the WebSocket transport is currently open
	// (1) or not (0).
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connected",
		Help: "Whether the realtime transport is currently open",
	})

	// ReconnectsTotal counts reconnect attempts, labeled by outcome:
	// "scheduled", "success", or "failure".
	ReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_reconnects_total",
		Help: "Total number of reconnect attempts by outcome",
	}, []string{"outcome"})

	// FramesTotal counts inbound frames, labeled by parsed event kind
	// ("new_message", "pong", "unknown", ...).
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_frames_total",
		Help: "Total number of inbound frames by event kind",
	}, []string{"kind"})

	// FramesDroppedTotal counts inbound frames dropped because they could
	// not be parsed.
	FramesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_frames_dropped_total",
		Help: "Total number of malformed inbound frames dropped",
	})

	// SendFailuresTotal counts outbound commands rejected because the
	// transport was not open.
	SendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_send_failures_total",
		Help: "Total number of outbound commands rejected while disconnected",
	})

	// OnlineUsers tracks the size of the observed online-user set.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_online_users",
		Help: "Current number of users observed online",
	})

	// DirectoryLookupsTotal counts user-directory lookups, labeled by
	// outcome: "hit", "resolved", or "fallback".
	DirectoryLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_directory_lookups_total",
		Help: "Total number of user directory lookups by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		Connected,
		ReconnectsTotal,
		FramesTotal,
		FramesDroppedTotal,
		SendFailuresTotal,
		OnlineUsers,
		DirectoryLookupsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
