package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-traffic/pkg/hub"
	"github.com/teslashibe/go-traffic/pkg/metrics"
	"github.com/teslashibe/go-traffic/pkg/session"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

type fakeStatus struct {
	sess session.Session
}

func (f fakeStatus) State() session.State { return session.Streaming }
func (f fakeStatus) Session() (session.Session, bool) {
	return f.sess, true
}
func (f fakeStatus) Stats() session.Stats { return session.Stats{Sessions: 3, StreamDrops: 2} }

func get(t *testing.T, s *Server, path string) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestTraffic_ZerosBeforeFirstFrame(t *testing.T) {
	s := NewServer(DefaultConfig(), traffic.NewState())

	code, body := get(t, s, "/traffic")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"lane1_count":0,"lane2_count":0,"lane3_count":0,"lane4_count":0}`, string(body))
}

func TestTraffic_LatestPublish(t *testing.T) {
	state := traffic.NewState()
	s := NewServer(DefaultConfig(), state)

	state.Publish(traffic.Counts{Lane1: 1, Lane2: 2, Lane3: 3, Lane4: 4})
	state.Publish(traffic.Counts{Lane1: 5, Lane4: 1})

	_, body := get(t, s, "/traffic")
	assert.JSONEq(t, `{"lane1_count":5,"lane2_count":0,"lane3_count":0,"lane4_count":1}`, string(body))
}

func TestHealth(t *testing.T) {
	code, body := get(t, NewServer(DefaultConfig(), traffic.NewState()), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestStatus(t *testing.T) {
	state := traffic.NewState()
	id := uuid.New()
	s := NewServer(DefaultConfig(), state, WithStatus(fakeStatus{sess: session.Session{ID: id, StartedAt: time.Now()}}))

	_, body := get(t, s, "/api/status")
	var before StatusResponse
	require.NoError(t, json.Unmarshal(body, &before))
	assert.Nil(t, before.UpdatedAt)
	assert.Equal(t, uint64(0), before.Seq)

	state.Publish(traffic.Counts{Lane2: 4})

	_, body = get(t, s, "/api/status")
	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))

	sess := raw["session"].(map[string]any)
	assert.Equal(t, "streaming", sess["state"])
	assert.Equal(t, id.String(), sess["id"])
	assert.Equal(t, float64(2), sess["stats"].(map[string]any)["stream_drops"])
	assert.Equal(t, float64(1), raw["seq"])
	assert.NotNil(t, raw["updated_at"])
}

func TestMetricsEndpoint(t *testing.T) {
	state := traffic.NewState()
	m := metrics.New()
	m.AttachLanes(state)
	state.Publish(traffic.Counts{Lane4: 6})

	code, body := get(t, NewServer(DefaultConfig(), state, WithMetrics(m)), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `traffic_lane_count{lane="lane4"} 6`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	code, _ := get(t, NewServer(DefaultConfig(), traffic.NewState()), "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTrafficWS_RequiresUpgrade(t *testing.T) {
	s := NewServer(DefaultConfig(), traffic.NewState(), WithHub(hub.New("traffic")))
	code, _ := get(t, s, "/ws/traffic")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestTrafficWS_PushesCounts(t *testing.T) {
	state := traffic.NewState()
	state.Publish(traffic.Counts{Lane1: 2})

	h := hub.New("traffic")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	s := NewServer(DefaultConfig(), state, WithHub(h))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.App().Listener(ln)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		s.Shutdown(sctx)
	}()

	url := "ws://" + ln.Addr().String() + "/ws/traffic"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() hub.CountsEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev hub.CountsEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	greeting := read()
	assert.Equal(t, "counts", greeting.Type)
	assert.Equal(t, 2, greeting.Counts.Lane1)
	assert.Equal(t, uint64(1), greeting.Seq)

	h.PublishCounts(state.Publish(traffic.Counts{Lane3: 5}))

	next := read()
	assert.Equal(t, uint64(2), next.Seq)
	assert.Equal(t, 5, next.Counts.Lane3)
	assert.Equal(t, 5, next.Total)

	_, body := get(t, s, "/api/status")
	assert.True(t, strings.Contains(string(body), `"websocket_clients":1`))
}
