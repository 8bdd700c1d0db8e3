package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/timersync/go/internal/controller"
	"github.com/mcdev12/timersync/go/internal/discovery"
	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/replication"
	"github.com/mcdev12/timersync/go/internal/session"
)

type node struct {
	ctrl   *controller.Controller
	server *httptest.Server
	wsURL  string
}

func startNode(t *testing.T, id session.Identity, registry discovery.Registry) *node {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)

	cfg := controller.DefaultConfig()
	cfg.Identity = id
	cfg.ConnectTimeout = 2 * time.Second
	cfg.AdvertiseAddress = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/sync"

	ctrl := controller.New(cfg,
		NewDialer(registry, DefaultConnectionConfig()),
		controller.WithClock(clockwork.NewFakeClock()),
		controller.WithRegistry(registry),
	)
	NewService(DefaultConfig(), ctrl).RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})
	return &node{ctrl: ctrl, server: server, wsURL: cfg.AdvertiseAddress}
}

func (n *node) call(t *testing.T, method, path string, body any) (int, controller.State) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, n.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var st controller.State
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	}
	return resp.StatusCode, st
}

func (n *node) state(t *testing.T) controller.State {
	t.Helper()
	code, st := n.call(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, code)
	return st
}

func TestStateAPI_TimerLifecycle(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))

	st := n.state(t)
	assert.Equal(t, "AAAA1111", st.SessionID)
	assert.Equal(t, session.RoleStandalone, st.Role)
	assert.Equal(t, models.MaxTimers, st.MaxTimers)
	assert.NotNil(t, st.Timers)

	code, st := n.call(t, http.MethodPost, "/api/timers", map[string]any{"label": "Break", "durationSeconds": 5})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, st.Timers, 1)
	id := st.Timers[0].ID

	code, st = n.call(t, http.MethodPost, "/api/timers/"+id+"/toggle", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.TimerStatusRunning, st.Timers[0].Status)

	code, st = n.call(t, http.MethodPost, "/api/timers/global", map[string]string{"action": "pause"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.TimerStatusPaused, st.Timers[0].Status)

	code, st = n.call(t, http.MethodPost, "/api/timers/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.TimerStatusIdle, st.Timers[0].Status)

	code, st = n.call(t, http.MethodDelete, "/api/timers/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, st.Timers)
}

func TestStateAPI_ErrorMapping(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"zero duration", http.MethodPost, "/api/timers", map[string]any{"label": "x", "durationSeconds": 0}, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/timers", "not an object", http.StatusBadRequest},
		{"unknown timer", http.MethodPost, "/api/timers/nope/toggle", nil, http.StatusNotFound},
		{"unknown action", http.MethodPost, "/api/timers/global", map[string]string{"action": "STOP"}, http.StatusBadRequest},
		{"unknown role", http.MethodPost, "/api/role", map[string]string{"role": "observer"}, http.StatusBadRequest},
		{"connect as standalone", http.MethodPost, "/api/connect", map[string]string{"target": "BBBB2222"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := n.call(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestStateAPI_SlaveIsReadOnly(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))

	code, st := n.call(t, http.MethodPost, "/api/role", map[string]string{"role": "SLAVE"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.RoleSlave, st.Role)

	code, _ = n.call(t, http.MethodPost, "/api/timers", map[string]any{"label": "x", "durationSeconds": 5})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = n.call(t, http.MethodPost, "/api/presets", map[string]string{"prompt": "pomodoro"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = n.call(t, http.MethodPost, "/api/connect", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebSocketHandler_RejectsOtherSessions(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))

	_, resp, err := websocket.DefaultDialer.Dial(n.wsURL+"?session=FFFF0000", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(n.wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketHandler_NonMasterClosesChannel(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))

	conn, _, err := websocket.DefaultDialer.Dial(n.wsURL+"?session=aaaa1111", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketHandler_MasterGreetsPeer(t *testing.T) {
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))
	n.call(t, http.MethodPost, "/api/timers", map[string]any{"label": "Break", "durationSeconds": 5})
	n.call(t, http.MethodPost, "/api/role", map[string]string{"role": "master"})

	conn, _, err := websocket.DefaultDialer.Dial(n.wsURL+"?session=AAAA1111", nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := replication.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, replication.MessageTypeSyncUpdate, msg.Type)
	assert.Equal(t, "AAAA1111", msg.SourceID)
	require.NotNil(t, msg.Payload.Timers)
	require.Len(t, *msg.Payload.Timers, 1)
	assert.Equal(t, "Break", (*msg.Payload.Timers)[0].Label)
	assert.Equal(t, 1, n.state(t).Peers)

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)))
	conn.Close()

	assert.Eventually(t, func() bool { return n.state(t).Peers == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestReplicationOverWebSocket(t *testing.T) {
	registry := discovery.NewStaticRegistry(nil)
	master := startNode(t, "AAAA1111", registry)
	slave := startNode(t, "BBBB2222", registry)

	master.call(t, http.MethodPost, "/api/timers", map[string]any{"label": "Break", "durationSeconds": 5})
	master.call(t, http.MethodPost, "/api/role", map[string]string{"role": "master"})
	require.Eventually(t, func() bool {
		addr, err := registry.Resolve(context.Background(), "AAAA1111")
		return err == nil && addr == master.wsURL
	}, 2*time.Second, 10*time.Millisecond)

	slave.call(t, http.MethodPost, "/api/role", map[string]string{"role": "slave"})
	code, st := slave.call(t, http.MethodPost, "/api/connect", map[string]string{"target": " aaaa1111 "})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "AAAA1111", st.Target)

	require.Eventually(t, func() bool {
		st := slave.state(t)
		return st.Status == session.StatusConnected && len(st.Timers) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, master.state(t).Timers, slave.state(t).Timers)
	assert.Eventually(t, func() bool { return master.state(t).Peers == 1 }, 2*time.Second, 10*time.Millisecond)

	master.call(t, http.MethodPost, "/api/timers", map[string]any{"label": "Lunch", "durationSeconds": 60})
	require.Eventually(t, func() bool { return len(slave.state(t).Timers) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, master.state(t).Timers, slave.state(t).Timers)

	// Leaving master closes the link; the slave keeps its last snapshot.
	master.call(t, http.MethodPost, "/api/role", map[string]string{"role": "standalone"})
	require.Eventually(t, func() bool {
		return slave.state(t).Status == session.StatusDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, slave.state(t).Timers, 2)
}

func TestDialer_UnknownSession(t *testing.T) {
	d := NewDialer(discovery.NewStaticRegistry(nil), DefaultConnectionConfig())
	_, err := d.Connect(context.Background(), "CCCC3333", nil)
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(out)
	t.Cleanup(func() { log.Logger = prev })
	return out
}

func TestConnection_SendAfterClose(t *testing.T) {
	logs := captureLogs(t)
	n := startNode(t, "AAAA1111", discovery.NewStaticRegistry(nil))
	n.call(t, http.MethodPost, "/api/role", map[string]string{"role": "master"})

	registry := discovery.NewStaticRegistry(map[string]string{"AAAA1111": n.wsURL})
	d := NewDialer(registry, DefaultConnectionConfig())

	events := make(chan replication.Event, 8)
	ch, err := d.Connect(context.Background(), "AAAA1111", func(ev replication.Event) { events <- ev })
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, replication.EventOpen, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no open event")
	}

	require.NoError(t, ch.Close())
	assert.False(t, ch.IsOpen())
	assert.ErrorIs(t, ch.Send([]byte("{}")), ErrConnectionClosed)

	for {
		select {
		case ev := <-events:
			if ev.Kind == replication.EventClose || ev.Kind == replication.EventError {
				assert.Equal(t, replication.EventClose, ev.Kind)
				assert.Contains(t, logs.String(), `"connection_age"`)
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no close event")
		}
	}
}
