package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the recorder. All methods are
// safe on a nil *Metrics.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsAutoStop  prometheus.Counter
	RecordingsEmpty     prometheus.Counter
	DeviceDenials       prometheus.Counter
	RecordingLength     prometheus.Histogram
	RecordingSize       prometheus.Histogram

	// Playback metrics
	PlaybackStarts     prometheus.Counter
	PlaybackRejections prometheus.Counter
	PlaybackEnded      prometheus.Counter

	// Persistence metrics
	Saves        prometheus.Counter
	SaveFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_recordings_started_total",
			Help: "Total number of recordings whose input device was granted",
		}),
		RecordingsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_recordings_completed_total",
			Help: "Total number of recordings that produced a clip",
		}),
		RecordingsAutoStop: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_recordings_auto_stopped_total",
			Help: "Total number of recordings stopped by the duration cap",
		}),
		RecordingsEmpty: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_recordings_empty_total",
			Help: "Total number of recordings that captured no audio",
		}),
		DeviceDenials: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_device_denials_total",
			Help: "Total number of refused or missing input devices",
		}),
		RecordingLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cliprec_recording_length_seconds",
			Help:    "Length of captured clips",
			Buckets: prometheus.LinearBuckets(0, 5, 13), // 0s to 60s
		}),
		RecordingSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cliprec_recording_size_bytes",
			Help:    "Size of encoded clips in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),

		PlaybackStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_playback_starts_total",
			Help: "Total number of accepted play requests",
		}),
		PlaybackRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_playback_rejections_total",
			Help: "Total number of play requests refused by the output device",
		}),
		PlaybackEnded: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_playback_ended_total",
			Help: "Total number of clips played to the end",
		}),

		Saves: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_saves_total",
			Help: "Total number of clips persisted",
		}),
		SaveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cliprec_save_failures_total",
			Help: "Total number of failed persistence attempts",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cliprec_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cliprec_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func (m *Metrics) RecordingStarted() {
	if m != nil {
		m.RecordingsStarted.Inc()
	}
}

func (m *Metrics) DeviceDenied() {
	if m != nil {
		m.DeviceDenials.Inc()
	}
}

// RecordingFinished records a stopped capture. A zero size means nothing
// was captured.
func (m *Metrics) RecordingFinished(length time.Duration, size int, auto bool) {
	if m == nil {
		return
	}
	if auto {
		m.RecordingsAutoStop.Inc()
	}
	if size == 0 {
		m.RecordingsEmpty.Inc()
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordingLength.Observe(length.Seconds())
	m.RecordingSize.Observe(float64(size))
}

func (m *Metrics) PlaybackStarted() {
	if m != nil {
		m.PlaybackStarts.Inc()
	}
}

func (m *Metrics) PlaybackRejected() {
	if m != nil {
		m.PlaybackRejections.Inc()
	}
}

func (m *Metrics) PlaybackFinished() {
	if m != nil {
		m.PlaybackEnded.Inc()
	}
}

func (m *Metrics) Saved(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Saves.Inc()
		return
	}
	m.SaveFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
