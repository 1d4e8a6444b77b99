package detection

import "github.com/teslashibe/go-traffic/pkg/geometry"

// DefaultNormalizationCutoff is the column-0 maximum below which box coordinates are
// treated as unit-normalized. It is a guess from typical model output ranges, not a
// contract of the model.
const DefaultNormalizationCutoff = 2.0

// CoordinateScaler decides the multipliers that bring a tensor's box columns into
// canvas pixel units.
type CoordinateScaler interface {
	Scale(t Tensor, canvas geometry.Size) (sx, sy float64)
}

// ThresholdScaler inspects the largest first-coordinate value: strictly below Cutoff
// means unit-normalized output, anything else is already in canvas pixels.
type ThresholdScaler struct {
	Cutoff float64
}

// Scale implements CoordinateScaler.
func (s ThresholdScaler) Scale(t Tensor, canvas geometry.Size) (float64, float64) {
	if t.ColumnMax(0) < s.Cutoff {
		return float64(canvas.W), float64(canvas.H)
	}
	return 1, 1
}

// FixedScaler skips the heuristic when the model's output range is known.
type FixedScaler struct {
	Normalized bool
}

// Scale implements CoordinateScaler.
func (s FixedScaler) Scale(_ Tensor, canvas geometry.Size) (float64, float64) {
	if s.Normalized {
		return float64(canvas.W), float64(canvas.H)
	}
	return 1, 1
}
