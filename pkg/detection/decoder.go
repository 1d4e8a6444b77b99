// Package detection turns raw YOLO output tensors into deduplicated detections in
// source-frame coordinates, and runs the model itself through OpenCV's dnn module.
package detection

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-traffic/pkg/geometry"
)

// ErrMalformedTensor is returned for tensors with the wrong attribute count or
// non-finite values. Callers treat it as "no detections this frame".
var ErrMalformedTensor = errors.New("detection: malformed tensor")

// boxAttrs is the number of leading box columns before the class scores.
const boxAttrs = 4

// Detection is one object found in a frame.
type Detection struct {
	Box        geometry.Box `json:"box"`        // Source-frame pixels
	Confidence float64      `json:"confidence"` // (0, 1]
	ClassID    int          `json:"class_id"`
}

// Decoder converts tensors into detections according to its Config.
type Decoder struct {
	config Config
	scaler CoordinateScaler
}

// NewDecoder creates a decoder using the threshold heuristic for coordinate scaling.
func NewDecoder(cfg Config) *Decoder {
	cutoff := cfg.NormalizationCutoff
	if cutoff == 0 {
		cutoff = DefaultNormalizationCutoff
	}
	if cfg.BoxFormat == "" {
		cfg.BoxFormat = BoxXYXY
	}
	return &Decoder{
		config: cfg,
		scaler: ThresholdScaler{Cutoff: cutoff},
	}
}

// WithScaler replaces the coordinate scaling heuristic.
func (d *Decoder) WithScaler(s CoordinateScaler) *Decoder {
	d.scaler = s
	return d
}

// Config returns the decoder configuration.
func (d *Decoder) Config() Config {
	return d.config
}

// Decode filters, rescales and deduplicates the candidates in t.
// lb is the letterbox the frame went through before inference.
// On ErrMalformedTensor the returned slice is nil.
func (d *Decoder) Decode(t Tensor, lb geometry.Letterbox) ([]Detection, error) {
	t = t.Normalize()
	rows, cols := t.Dims()
	if t.Empty() {
		return nil, nil
	}

	if cols <= boxAttrs {
		return nil, fmt.Errorf("%w: %d attributes, need at least %d", ErrMalformedTensor, cols, boxAttrs+1)
	}
	if n := d.config.NumClasses; n > 0 && cols != boxAttrs+n {
		return nil, fmt.Errorf("%w: %d attributes, want %d", ErrMalformedTensor, cols, boxAttrs+n)
	}
	if !t.Finite() {
		return nil, fmt.Errorf("%w: non-finite values", ErrMalformedTensor)
	}
	if lb.Scale <= 0 {
		return nil, fmt.Errorf("detection: %w: letterbox scale %v", geometry.ErrInvalidFrame, lb.Scale)
	}

	sx, sy := d.scaler.Scale(t, d.config.Canvas)

	candidates := make([]Detection, 0, 16)
	for i := 0; i < rows; i++ {
		row := t.Row(i)

		classID, conf := bestClass(row[boxAttrs:])
		if conf <= d.config.ConfidenceThreshold {
			continue
		}

		box := d.canvasBox(row, sx, sy)
		box = lb.InvertBox(box)

		if d.config.ExclusionLineY > 0 && box.Y1 < d.config.ExclusionLineY {
			continue
		}

		candidates = append(candidates, Detection{
			Box:        box,
			Confidence: conf,
			ClassID:    classID,
		})
	}

	return NonMaxSuppression(candidates, d.config.IoUThreshold, d.config.PerClassNMS), nil
}

// canvasBox reads the box columns of a row as corner coordinates in canvas pixels.
func (d *Decoder) canvasBox(row []float64, sx, sy float64) geometry.Box {
	a, b, c, e := row[0]*sx, row[1]*sy, row[2]*sx, row[3]*sy
	if d.config.BoxFormat == BoxCXCYWH {
		return geometry.BoxFromCenter(a, b, c, e)
	}
	return geometry.Box{X1: a, Y1: b, X2: c, Y2: e}
}

// bestClass returns the argmax class and its logistic score. The first index wins ties.
func bestClass(logits []float64) (int, float64) {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best, sigmoid(logits[best])
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
