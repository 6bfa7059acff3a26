package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry backs the console's /metrics endpoint. A dedicated registry
// keeps the surface limited to what we register here.
var Registry = prometheus.NewRegistry()

var (
	StreamConnectsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dispatch_stream_connects_total",
		Help: "Successful push-channel opens.",
	})
	StreamReconnectsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dispatch_stream_reconnects_total",
		Help: "Reconnect attempts scheduled after a closure or dial failure.",
	})
	StreamDroppedTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dispatch_stream_dropped_messages_total",
		Help: "Push-channel payloads dropped as malformed or unknown.",
	})
	AlertEventsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_alert_events_total",
		Help: "Typed alert events received, by kind.",
	}, []string{"kind"})
	IncidentAutoCloses = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dispatch_incident_autocloses_total",
		Help: "Incidents closed by the settle timer.",
	})
	SnapshotRestores = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_session_restores_total",
		Help: "Continuity snapshot restore outcomes.",
	}, []string{"outcome"})
	VideoSessions = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_video_sessions",
		Help: "Live video sessions by connection state.",
	}, []string{"state"})
	VideoRetriesTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dispatch_video_retries_total",
		Help: "Video session retry attempts, automatic and manual.",
	})
)

// Handler serves the console registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
