package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordingFinished(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordingStarted()
	m.RecordingFinished(3*time.Second, 96000, false)
	m.RecordingFinished(30*time.Second, 960000, true)
	m.RecordingFinished(0, 0, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordingsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsAutoStop))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingsEmpty))
}

func TestSavesAndPlayback(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Saved(true)
	m.Saved(false)
	m.Saved(false)
	m.PlaybackStarted()
	m.PlaybackRejected()
	m.PlaybackFinished()
	m.DeviceDenied()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Saves))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SaveFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaybackStarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaybackRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaybackEnded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceDenials))
}

func TestHTTPRequests(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordHTTPRequest("POST", "/record/start", "200", 5*time.Millisecond)
	m.RecordHTTPRequest("POST", "/record/start", "200", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/record/start", "200")))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordingStarted()
		m.RecordingFinished(time.Second, 10, true)
		m.PlaybackStarted()
		m.PlaybackRejected()
		m.PlaybackFinished()
		m.Saved(true)
		m.DeviceDenied()
		m.RecordHTTPRequest("GET", "/status", "200", time.Millisecond)
	})
}
