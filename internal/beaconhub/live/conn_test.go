package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/pkg/options"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startLiveServer(t *testing.T, reg *Registry, role model.Role) *httptest.Server {
	t.Helper()
	opts := options.NewLiveOptions()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewConn(ws, role, opts).Serve(context.Background(), reg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestConnHelloReplayThenBroadcast(t *testing.T) {
	states := state.NewTable()
	states.Upsert(record("A", model.ModeEmergency))
	reg := newTestRegistry(states)
	srv := startLiveServer(t, reg, model.RoleViewer)

	ws := dial(t, srv)

	hello := readFrame(t, ws)
	assert.Equal(t, KindHello, hello.Type)
	assert.Contains(t, string(hello.Data), `"role":"viewer"`)

	replayed := readFrame(t, ws)
	assert.Equal(t, KindTelemetry, replayed.Type)
	assert.Contains(t, string(replayed.Data), `"deviceId":"A"`)

	require.Eventually(t, func() bool { return reg.Count(model.RoleViewer) == 1 }, time.Second, 10*time.Millisecond)

	next := record("B", model.ModeNormal)
	states.Upsert(next)
	reg.Broadcast(context.Background(), next)

	live := readFrame(t, ws)
	assert.Equal(t, KindTelemetry, live.Type)
	assert.Contains(t, string(live.Data), `"deviceId":"B"`)
}

func TestConnReceiverGetsCommands(t *testing.T) {
	reg := newTestRegistry(state.NewTable())
	srv := startLiveServer(t, reg, model.RoleReceiver)

	ws := dial(t, srv)
	assert.Equal(t, KindHello, readFrame(t, ws).Type)
	require.Eventually(t, func() bool { return reg.Count(model.RoleReceiver) == 1 }, time.Second, 10*time.Millisecond)

	n, err := reg.Relay(context.Background(), &model.Command{Name: model.CommandAck, DeviceID: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cmd := readFrame(t, ws)
	assert.Equal(t, KindCommand, cmd.Type)
	assert.Contains(t, string(cmd.Data), `"deviceId":"A"`)
}

func TestConnUnregistersOnClientClose(t *testing.T) {
	reg := newTestRegistry(state.NewTable())
	srv := startLiveServer(t, reg, model.RoleViewer)

	ws := dial(t, srv)
	readFrame(t, ws)
	require.Eventually(t, func() bool { return reg.Count(model.RoleViewer) == 1 }, time.Second, 10*time.Millisecond)

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()

	assert.Eventually(t, func() bool { return reg.Count(model.RoleViewer) == 0 }, 2*time.Second, 10*time.Millisecond)
}
