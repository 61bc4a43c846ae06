package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. Values are plain atomics so the hot
// paths stay cheap; Prometheus reads them lazily through GaugeFuncs on a
// private registry.
type Metrics struct {
	FramesIngested   atomic.Uint64
	SnapshotsTaken   atomic.Uint64
	InferencesOK     atomic.Uint64
	InferencesFailed atomic.Uint64
	FramesBroadcast  atomic.Uint64
	AnalyzeRequests  atomic.Uint64
	InferLatencyMs   atomic.Uint64
	ActiveClients    atomic.Int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"detmap_frames_ingested_total", "Camera frames decoded from the capture feed", func() float64 { return float64(m.FramesIngested.Load()) }},
		{"detmap_snapshots_total", "Snapshots captured for inference", func() float64 { return float64(m.SnapshotsTaken.Load()) }},
		{"detmap_inferences_ok_total", "Successful inference cycles", func() float64 { return float64(m.InferencesOK.Load()) }},
		{"detmap_inferences_failed_total", "Failed inference cycles", func() float64 { return float64(m.InferencesFailed.Load()) }},
		{"detmap_frames_broadcast_total", "Rendered frames pushed to websocket clients", func() float64 { return float64(m.FramesBroadcast.Load()) }},
		{"detmap_analyze_requests_total", "Batch analyze requests handled", func() float64 { return float64(m.AnalyzeRequests.Load()) }},
		{"detmap_inference_latency_ms", "Latency of the most recent inference call", func() float64 { return float64(m.InferLatencyMs.Load()) }},
		{"detmap_ws_clients", "Connected websocket clients", func() float64 { return float64(m.ActiveClients.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// RecordCycle is wired into the capture loop's per-attempt hook.
func (m *Metrics) RecordCycle(ok bool, latency time.Duration) {
	m.SnapshotsTaken.Add(1)
	if ok {
		m.InferencesOK.Add(1)
	} else {
		m.InferencesFailed.Add(1)
	}
	m.InferLatencyMs.Store(uint64(latency.Milliseconds()))
}

// Snapshot returns the counters for the /status payload.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_ingested_total":   m.FramesIngested.Load(),
		"snapshots_total":         m.SnapshotsTaken.Load(),
		"inferences_ok_total":     m.InferencesOK.Load(),
		"inferences_failed_total": m.InferencesFailed.Load(),
		"frames_broadcast_total":  m.FramesBroadcast.Load(),
		"analyze_requests_total":  m.AnalyzeRequests.Load(),
		"inference_latency_ms":    m.InferLatencyMs.Load(),
		"ws_clients":              m.ActiveClients.Load(),
	}
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
