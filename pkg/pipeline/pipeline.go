// Package pipeline runs one frame through inference, decoding, lane
// classification and publishing. It is the session.Handler of the traffic server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/geometry"
	"github.com/teslashibe/go-traffic/pkg/metrics"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

// Detector runs the model on a frame and reports the letterbox it applied.
type Detector[F any] interface {
	Infer(frame F) (detection.Tensor, geometry.Letterbox, error)
}

// Result is what one processed frame produced.
type Result struct {
	Detections []detection.Detection
	Counts     traffic.Counts
	Snapshot   traffic.Snapshot
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	debug     bool
	onPublish []func(traffic.Snapshot)
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records counters and latencies into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDebugDetections logs the count and first box of every non-empty frame.
func WithDebugDetections(on bool) Option {
	return func(o *options) { o.debug = on }
}

// OnPublish registers fn to run after each publish, on the ingestion goroutine.
// fn must not block.
func OnPublish(fn func(traffic.Snapshot)) Option {
	return func(o *options) { o.onPublish = append(o.onPublish, fn) }
}

// Pipeline turns frames into published lane counts.
type Pipeline[F any] struct {
	detector   Detector[F]
	decoder    *detection.Decoder
	classifier traffic.Classifier
	state      *traffic.State
	opts       options
}

var _ session.Handler[int] = (*Pipeline[int])(nil)

// New creates a Pipeline publishing into state.
func New[F any](det Detector[F], dec *detection.Decoder, cls traffic.Classifier, state *traffic.State, opts ...Option) *Pipeline[F] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Component("pipeline")
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return &Pipeline[F]{
		detector:   det,
		decoder:    dec,
		classifier: cls,
		state:      state,
		opts:       o,
	}
}

// HandleFrame implements session.Handler. On error nothing is published and the
// previous counts stay visible.
func (p *Pipeline[F]) HandleFrame(_ context.Context, frame F) error {
	_, err := p.Process(frame)
	return err
}

// Process runs the full cycle for one frame and returns what was published.
func (p *Pipeline[F]) Process(frame F) (Result, error) {
	m := p.opts.metrics

	start := time.Now()
	tensor, lb, err := p.detector.Infer(frame)
	m.ObserveInference(time.Since(start))
	if err != nil {
		p.reject(err)
		return Result{}, fmt.Errorf("pipeline: infer: %w", err)
	}

	start = time.Now()
	dets, err := p.decoder.Decode(tensor, lb)
	if err != nil {
		p.reject(err)
		return Result{}, fmt.Errorf("pipeline: decode: %w", err)
	}
	counts := p.classifier.Classify(dets)
	m.ObserveDecode(time.Since(start))

	snap := p.state.Publish(counts)
	m.FramesProcessed.Add(1)
	m.Publishes.Add(1)
	m.Detections.Add(uint64(len(dets)))

	if p.opts.debug && len(dets) > 0 {
		first := dets[0]
		p.opts.logger.Info("detections",
			"count", len(dets),
			"first_box", fmt.Sprintf("(%.0f,%.0f,%.0f,%.0f)", first.Box.X1, first.Box.Y1, first.Box.X2, first.Box.Y2),
			"confidence", fmt.Sprintf("%.2f", first.Confidence),
			"counts", counts)
	}

	for _, fn := range p.opts.onPublish {
		fn(snap)
	}

	return Result{Detections: dets, Counts: counts, Snapshot: snap}, nil
}

// reject counts a frame that produced no publish.
func (p *Pipeline[F]) reject(err error) {
	m := p.opts.metrics
	m.FramesSkipped.Add(1)
	switch {
	case errors.Is(err, detection.ErrMalformedTensor):
		m.MalformedTensors.Add(1)
	case errors.Is(err, geometry.ErrInvalidFrame):
		m.InvalidFrames.Add(1)
	default:
		m.InferenceErrors.Add(1)
	}
}
