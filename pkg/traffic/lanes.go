// Package traffic assigns detections to the four monitored lanes and holds the
// latest lane counts for concurrent readers.
package traffic

import (
	"fmt"

	"github.com/teslashibe/go-traffic/pkg/detection"
	"github.com/teslashibe/go-traffic/pkg/geometry"
)

// Lane is one quadrant of the monitored frame.
type Lane int

const (
	Lane1 Lane = iota + 1 // top-left
	Lane2                 // top-right
	Lane3                 // bottom-left
	Lane4                 // bottom-right
)

func (l Lane) String() string {
	return fmt.Sprintf("lane%d", int(l))
}

// Counts holds the number of detections per lane for one frame.
type Counts struct {
	Lane1 int `json:"lane1_count"`
	Lane2 int `json:"lane2_count"`
	Lane3 int `json:"lane3_count"`
	Lane4 int `json:"lane4_count"`
}

// Total returns the sum over all lanes.
func (c Counts) Total() int {
	return c.Lane1 + c.Lane2 + c.Lane3 + c.Lane4
}

// Get returns the count for a lane, 0 for unknown lanes.
func (c Counts) Get(l Lane) int {
	switch l {
	case Lane1:
		return c.Lane1
	case Lane2:
		return c.Lane2
	case Lane3:
		return c.Lane3
	case Lane4:
		return c.Lane4
	}
	return 0
}

func (c *Counts) add(l Lane) {
	switch l {
	case Lane1:
		c.Lane1++
	case Lane2:
		c.Lane2++
	case Lane3:
		c.Lane3++
	case Lane4:
		c.Lane4++
	}
}

// Classifier splits the frame at two divider coordinates in source-frame pixels.
type Classifier struct {
	XDivider float64 `yaml:"x_divider"`
	YDivider float64 `yaml:"y_divider"`
}

// DefaultClassifier returns the dividers for the Osman Kavuncu camera.
func DefaultClassifier() Classifier {
	return Classifier{XDivider: 1105, YDivider: 300}
}

// LaneOf maps a centroid to its lane. A centroid exactly on a divider counts
// as top or left.
func (c Classifier) LaneOf(p geometry.Point) Lane {
	top := p.Y <= c.YDivider
	left := p.X <= c.XDivider
	switch {
	case top && left:
		return Lane1
	case top:
		return Lane2
	case left:
		return Lane3
	default:
		return Lane4
	}
}

// Classify counts detections per lane by box centroid.
func (c Classifier) Classify(dets []detection.Detection) Counts {
	var counts Counts
	for _, d := range dets {
		counts.add(c.LaneOf(d.Box.Center()))
	}
	return counts
}
