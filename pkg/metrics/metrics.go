// Package metrics holds the Prometheus collectors for streamrelay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive tracks relay sessions whose pump has not finished.
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamrelay_sessions_active",
		Help: "Relay sessions currently pumping",
	}, []string{"route"})

	// SessionsClosed counts closed sessions by route and close reason.
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_sessions_closed_total",
		Help: "Relay sessions closed, by route and reason",
	}, []string{"route", "reason"})

	// FramesForwarded counts frames written downstream.
	FramesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_frames_forwarded_total",
		Help: "Frames written to downstream clients",
	}, []string{"route"})

	// ErrorFrames counts synthetic terminal error frames.
	ErrorFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_error_frames_total",
		Help: "Synthetic error frames emitted after mid-stream failures",
	}, []string{"route"})

	// GuardRejections counts streams refused before any byte was committed.
	GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_guard_rejections_total",
		Help: "Upstream failures answered synchronously, by status",
	}, []string{"route", "status"})

	// ThemeRefreshes counts theme cache refreshes by result.
	ThemeRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_theme_cache_refresh_total",
		Help: "Theme default cache refreshes by result",
	}, []string{"result"})

	// OverlayPassthrough counts theme frames forwarded unmodified because
	// their payload could not be merged.
	OverlayPassthrough = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrelay_theme_overlay_passthrough_total",
		Help: "Theme frames forwarded without overlay",
	})

	// FirstChunkLatency observes the time from upstream request to first chunk.
	FirstChunkLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrelay_first_chunk_seconds",
		Help:    "Time from upstream request to the first streamed chunk",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
