package detection

import (
	"fmt"

	"github.com/teslashibe/go-traffic/pkg/geometry"
)

// BoxFormat names the layout of the first four tensor columns.
type BoxFormat string

const (
	// BoxXYXY is corner format (x1, y1, x2, y2); the traffic model emits this.
	BoxXYXY BoxFormat = "xyxy"
	// BoxCXCYWH is center format (cx, cy, w, h); stock YOLOv8 exports emit this.
	BoxCXCYWH BoxFormat = "cxcywh"
)

// Config holds decoder tuning.
type Config struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"` // Keep candidates strictly above this
	IoUThreshold        float64       `yaml:"iou_threshold"`        // Suppress overlaps strictly above this
	Canvas              geometry.Size `yaml:"canvas"`               // Model input size
	ExclusionLineY      float64       `yaml:"exclusion_line_y"`     // Drop boxes whose top edge is above this; <=0 disables
	NormalizationCutoff float64       `yaml:"normalization_cutoff"` // See ThresholdScaler
	BoxFormat           BoxFormat     `yaml:"box_format"`
	PerClassNMS         bool          `yaml:"per_class_nms"` // Scope suppression per class instead of across all classes
	NumClasses          int           `yaml:"num_classes"`   // Expected class columns; 0 accepts any
}

// DefaultConfig returns the tuning the traffic server runs with.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.4,
		IoUThreshold:        0.45,
		Canvas:              geometry.Sz(640, 640),
		ExclusionLineY:      200, // Sky
		NormalizationCutoff: DefaultNormalizationCutoff,
		BoxFormat:           BoxXYXY,
	}
}

// Validate checks thresholds and sizes.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("detection: confidence threshold %.3f out of range [0, 1)", c.ConfidenceThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("detection: IoU threshold %.3f out of range (0, 1]", c.IoUThreshold)
	}
	if c.Canvas.Empty() {
		return fmt.Errorf("detection: %w: canvas %s", geometry.ErrInvalidTarget, c.Canvas)
	}
	switch c.BoxFormat {
	case BoxXYXY, BoxCXCYWH:
	default:
		return fmt.Errorf("detection: unknown box format %q", c.BoxFormat)
	}
	if c.NumClasses < 0 {
		return fmt.Errorf("detection: negative class count %d", c.NumClasses)
	}
	return nil
}
