// Package hub pushes lane count updates to websocket subscribers.
package hub

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-traffic/pkg/traffic"
)

// Message is one encoded websocket text frame.
type Message []byte

// CountsEvent is pushed to clients on connect and after every publish.
type CountsEvent struct {
	Type      string         `json:"type"` // Always "counts"
	Seq       uint64         `json:"seq"`
	UpdatedAt time.Time      `json:"updated_at"`
	Counts    traffic.Counts `json:"counts"`
	Total     int            `json:"total"`
}

// NewCountsMessage encodes a snapshot as a CountsEvent.
func NewCountsMessage(snap traffic.Snapshot) (Message, error) {
	return json.Marshal(CountsEvent{
		Type:      "counts",
		Seq:       snap.Seq,
		UpdatedAt: snap.UpdatedAt,
		Counts:    snap.Counts,
		Total:     snap.Counts.Total(),
	})
}
