package detection

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-traffic/pkg/geometry"
)

func TestNewTensor_ShapeMismatch(t *testing.T) {
	if _, err := NewTensor(2, 3, []float64{1, 2, 3}); !errors.Is(err, ErrMalformedTensor) {
		t.Errorf("expected ErrMalformedTensor, got %v", err)
	}
	if _, err := NewTensor(-1, 3, nil); !errors.Is(err, ErrMalformedTensor) {
		t.Errorf("expected ErrMalformedTensor for negative rows, got %v", err)
	}
}

func TestTensor_Normalize(t *testing.T) {
	// Attribute-major: 5 attributes, 7 candidates.
	data := make([]float64, 5*7)
	for i := range data {
		data[i] = float64(i)
	}
	tensor, err := NewTensor(5, 7, data)
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	n := tensor.Normalize()
	rows, cols := n.Dims()
	if rows != 7 || cols != 5 {
		t.Fatalf("Dims: got [%d %d], want [7 5]", rows, cols)
	}
	if got := n.At(2, 3); got != tensor.At(3, 2) {
		t.Errorf("At(2,3): got %v, want %v", got, tensor.At(3, 2))
	}

	again := n.Normalize()
	if r, c := again.Dims(); r != 7 || c != 5 {
		t.Errorf("Normalize is not idempotent: got [%d %d]", r, c)
	}
}

func TestTensor_ColumnMax(t *testing.T) {
	tensor, err := NewTensor(3, 2, []float64{0.5, 9, 1.9, 3, -1, 4})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}
	if got := tensor.ColumnMax(0); got != 1.9 {
		t.Errorf("ColumnMax(0): got %v, want 1.9", got)
	}
	if got := (Tensor{}).ColumnMax(0); !math.IsInf(got, -1) {
		t.Errorf("empty ColumnMax: got %v, want -Inf", got)
	}
}

func TestTensor_Finite(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want bool
	}{
		{"finite", []float64{1, 2, 3, 4}, true},
		{"nan", []float64{1, math.NaN(), 3, 4}, false},
		{"positive inf", []float64{1, 2, math.Inf(1), 4}, false},
		{"negative inf", []float64{math.Inf(-1), 2, 3, 4}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := NewTensor(2, 2, tc.data)
			if err != nil {
				t.Fatalf("NewTensor: %v", err)
			}
			if got := tensor.Finite(); got != tc.want {
				t.Errorf("Finite: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestThresholdScaler_Boundary(t *testing.T) {
	canvas := geometry.Sz(640, 480)
	s := ThresholdScaler{Cutoff: DefaultNormalizationCutoff}

	tests := []struct {
		name   string
		maxX   float64
		wantSx float64
		wantSy float64
	}{
		{"unit range", 0.9, 640, 480},
		{"just below cutoff", 1.999, 640, 480},
		{"exactly cutoff is pixel space", 2.0, 1, 1},
		{"pixel range", 320, 1, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := NewTensor(2, 5, []float64{
				0.1, 0.1, 0.2, 0.2, 1,
				tc.maxX, 0.1, 0.2, 0.2, 1,
			})
			if err != nil {
				t.Fatalf("NewTensor: %v", err)
			}
			sx, sy := s.Scale(tensor, canvas)
			if sx != tc.wantSx || sy != tc.wantSy {
				t.Errorf("Scale: got (%v, %v), want (%v, %v)", sx, sy, tc.wantSx, tc.wantSy)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"confidence at one", func(c *Config) { c.ConfidenceThreshold = 1 }, true},
		{"negative confidence", func(c *Config) { c.ConfidenceThreshold = -0.1 }, true},
		{"zero iou", func(c *Config) { c.IoUThreshold = 0 }, true},
		{"empty canvas", func(c *Config) { c.Canvas = geometry.Size{} }, true},
		{"unknown format", func(c *Config) { c.BoxFormat = "yxyx" }, true},
		{"center format", func(c *Config) { c.BoxFormat = BoxCXCYWH }, false},
		{"negative classes", func(c *Config) { c.NumClasses = -1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate: got %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
