package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-traffic/pkg/hub"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Counts     traffic.Counts `json:"counts"`
	Seq        uint64         `json:"seq"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	AgeSeconds *float64       `json:"age_seconds,omitempty"`
	Uptime     string         `json:"uptime"`
	Clients    int            `json:"websocket_clients"`
	Session    *SessionStatus `json:"session,omitempty"`
}

// SessionStatus describes the ingestion session.
type SessionStatus struct {
	State     session.State `json:"state"`
	ID        string        `json:"id,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Stats     session.Stats `json:"stats"`
}

// handleTraffic returns the latest counts. It always succeeds; zeros before the
// first frame.
func (s *Server) handleTraffic(c *fiber.Ctx) error {
	return c.JSON(s.state.Read())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns counts freshness and session details
func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap := s.state.Snapshot()
	resp := StatusResponse{
		Counts: snap.Counts,
		Seq:    snap.Seq,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if !snap.UpdatedAt.IsZero() {
		age := time.Since(snap.UpdatedAt).Seconds()
		resp.UpdatedAt = &snap.UpdatedAt
		resp.AgeSeconds = &age
	}
	if s.hub != nil {
		resp.Clients = s.hub.ClientCount()
	}
	if s.status != nil {
		st := &SessionStatus{
			State: s.status.State(),
			Stats: s.status.Stats(),
		}
		if sess, ok := s.status.Session(); ok {
			st.ID = sess.ID.String()
			st.StartedAt = &sess.StartedAt
		}
		resp.Session = st
	}
	return c.JSON(resp)
}

// handleTrafficWS sends the current counts, then every publish
func (s *Server) handleTrafficWS(c *websocket.Conn) {
	greeting, err := hub.NewCountsMessage(s.state.Snapshot())
	if err != nil {
		s.logger.Error("encode greeting", "err", err)
		greeting = nil
	}
	hub.Serve(s.hub, c, greeting)
}
