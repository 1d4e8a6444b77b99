// Package metrics exposes pipeline, session and lane counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

const namespace = "traffic"

// Metrics holds all application metrics
type Metrics struct {
	// Per-frame pipeline counters
	FramesProcessed  atomic.Uint64
	FramesSkipped    atomic.Uint64 // Frames whose counts were not published
	MalformedTensors atomic.Uint64
	InvalidFrames    atomic.Uint64
	InferenceErrors  atomic.Uint64
	Detections       atomic.Uint64 // Detections surviving decode, summed over frames
	Publishes        atomic.Uint64

	// Latency of the last processed frame
	InferenceLatencyMs atomic.Uint64
	DecodeLatencyUs    atomic.Uint64

	// Dataset capture
	ImagesSaved atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPipelineMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, labels prometheus.Labels, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help, ConstLabels: labels},
		fn,
	))
}

func (m *Metrics) registerPipelineMetrics() {
	m.counter("frames_processed_total", "Frames run through inference and decode", &m.FramesProcessed)
	m.counter("frames_skipped_total", "Frames whose counts were not published", &m.FramesSkipped)
	m.counter("malformed_tensors_total", "Detector outputs rejected as malformed", &m.MalformedTensors)
	m.counter("invalid_frames_total", "Frames rejected before inference", &m.InvalidFrames)
	m.counter("inference_errors_total", "Detector failures", &m.InferenceErrors)
	m.counter("detections_total", "Detections surviving decode", &m.Detections)
	m.counter("publishes_total", "Lane count publishes", &m.Publishes)
	m.counter("dataset_images_saved_total", "Frames written by dataset capture", &m.ImagesSaved)

	m.gauge("inference_latency_ms", "Inference latency of the last frame in milliseconds", nil,
		func() float64 { return float64(m.InferenceLatencyMs.Load()) })
	m.gauge("decode_latency_us", "Decode latency of the last frame in microseconds", nil,
		func() float64 { return float64(m.DecodeLatencyUs.Load()) })
}

// ObserveInference records the duration of one detector call.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
}

// ObserveDecode records the duration of one decode and classify step.
func (m *Metrics) ObserveDecode(d time.Duration) {
	m.DecodeLatencyUs.Store(uint64(d.Microseconds()))
}

// SessionSource is satisfied by session.Manager.
type SessionSource interface {
	State() session.State
	Stats() session.Stats
}

// AttachSession exports the session state and counters. Call at most once.
func (m *Metrics) AttachSession(s SessionSource) {
	m.gauge("session_state", "Session state (0 idle, 1 acquiring_token, 2 connecting, 3 streaming, 4 stopped)", nil,
		func() float64 { return float64(s.State()) })

	stat := func(name, help string, pick func(session.Stats) uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "session", Name: name, Help: help},
			func() float64 { return float64(pick(s.Stats())) },
		))
	}
	stat("started_total", "Sessions that reached streaming", func(st session.Stats) uint64 { return st.Sessions })
	stat("token_failures_total", "Failed token acquisitions", func(st session.Stats) uint64 { return st.TokenFailures })
	stat("open_failures_total", "Streams that failed to open", func(st session.Stats) uint64 { return st.OpenFailures })
	stat("stream_drops_total", "Streams lost while streaming", func(st session.Stats) uint64 { return st.StreamDrops })
	stat("frames_total", "Frames pulled from streams", func(st session.Stats) uint64 { return st.Frames })
	stat("handler_errors_total", "Frames the handler failed on", func(st session.Stats) uint64 { return st.HandlerErrors })
}

// AttachLanes exports the latest published lane counts. Call at most once.
func (m *Metrics) AttachLanes(state *traffic.State) {
	for _, lane := range []traffic.Lane{traffic.Lane1, traffic.Lane2, traffic.Lane3, traffic.Lane4} {
		lane := lane
		m.gauge("lane_count", "Latest published detections per lane", prometheus.Labels{"lane": lane.String()},
			func() float64 { return float64(state.Read().Get(lane)) })
	}
	m.gauge("last_publish_timestamp_seconds", "Unix time of the latest publish", nil, func() float64 {
		snap := state.Snapshot()
		if snap.UpdatedAt.IsZero() {
			return 0
		}
		return float64(snap.UpdatedAt.UnixNano()) / 1e9
	})
}

// ClientSource reports websocket fan-out. Implemented by *hub.Hub.
type ClientSource interface {
	ClientCount() int
	Superseded() uint64
}

// AttachClients exports the websocket client count and the number of queued
// updates slow clients skipped. Call at most once.
func (m *Metrics) AttachClients(src ClientSource) {
	m.gauge("websocket_clients", "Connected websocket clients", nil, func() float64 { return float64(src.ClientCount()) })
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Name: "websocket_superseded_total", Help: "Queued updates replaced by newer ones before delivery"},
		func() float64 { return float64(src.Superseded()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
