// Package metrics exposes Prometheus counters for the capture pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camkit"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics groups the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	deviceStarts   *prometheus.CounterVec
	deviceFaults   prometheus.Counter
	captures       *prometheus.CounterVec
	recordings     *prometheus.CounterVec
	recordedChunks prometheus.Counter
	recordedBytes  prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deviceStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_starts_total",
			Help:      "Camera acquisitions by result.",
		}, []string{"result"}),
		deviceFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_faults_total",
			Help:      "Camera tracks that ended without being stopped.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Still captures by result.",
		}, []string{"result"}),
		recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finished recordings by result.",
		}, []string{"result"}),
		recordedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorded_chunks_total",
			Help:      "Encoder chunks emitted while recording.",
		}),
		recordedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorded_bytes_total",
			Help:      "Encoded bytes emitted while recording.",
		}),
	}
	reg.MustRegister(m.deviceStarts, m.deviceFaults, m.captures, m.recordings, m.recordedChunks, m.recordedBytes)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *Metrics) DeviceStarted(err error) {
	if m == nil {
		return
	}
	m.deviceStarts.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) DeviceFault() {
	if m == nil {
		return
	}
	m.deviceFaults.Inc()
}

func (m *Metrics) Captured(err error) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Recorded(err error) {
	if m == nil {
		return
	}
	m.recordings.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Chunk(n int) {
	if m == nil {
		return
	}
	m.recordedChunks.Inc()
	m.recordedBytes.Add(float64(n))
}

// Serve exposes reg on addr at /metrics until the server fails.
func Serve(addr string, reg *prometheus.Registry) error {
	reg.MustRegister(collectors.NewGoCollector())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
