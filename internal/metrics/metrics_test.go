package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DeviceStarted(nil)
	m.DeviceStarted(errors.New("denied"))
	m.Captured(nil)
	m.Recorded(nil)
	m.Chunk(10)
	m.Chunk(5)
	m.DeviceFault()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceStarts.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceStarts.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captures.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordings.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordedChunks))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.recordedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceFaults))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DeviceStarted(nil)
		m.DeviceFault()
		m.Captured(nil)
		m.Recorded(nil)
		m.Chunk(1)
	})
}
