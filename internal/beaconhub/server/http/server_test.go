package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/decoder"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/beaconhub/store"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

const scenarioA = "DEV1|EMERGENCY|14.6|120.9|0km/h|7sat|120,-80,9.5"

type testHub struct {
	srv      *httptest.Server
	registry *live.Registry
	svc      *service.Service
	states   *state.Table
}

func newTestHub(t *testing.T, gen decoder.Generation, checks ...ReadyCheck) *testHub {
	t.Helper()

	states := state.NewTable()
	registry := live.NewRegistry(states, log.NewNopLogger())
	svc := service.New(
		decoder.New(decoder.Options{Generation: gen, ImplicitDeviceID: "default"}),
		states, store.NewMemory(), registry, registry,
		service.WithLogger(log.NewNopLogger()),
	)

	httpOpts := options.NewHttpOptions()
	httpOpts.MaxBodyBytes = 1024
	s := NewServer(httpOpts, options.NewLiveOptions(), svc, registry, checks...)
	s.logger = log.NewNopLogger()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testHub{srv: srv, registry: registry, svc: svc, states: states}
}

func (h *testHub) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (h *testHub) dial(t *testing.T, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?role=" + role
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readType(t *testing.T, ws *websocket.Conn) (string, map[string]any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&f))
	return f.Type, f.Data
}

func TestIngestEmergencyRecordsAndLists(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)

	resp, body := h.do(t, http.MethodPost, "/alerts", map[string]string{"status": "EMERGENCY", "payload": scenarioA})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["persisted"])
	assert.Equal(t, "DEV1", body["deviceId"])
	assert.NotEmpty(t, body["eventId"])

	resp, body = h.do(t, http.MethodGet, "/alerts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = h.do(t, http.MethodGet, "/alerts/device/DEV1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = h.do(t, http.MethodGet, "/alerts/device/OTHER", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])
	assert.NotNil(t, body["events"])
}

func TestIngestStatusUpdatesStateOnly(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)

	resp, body := h.do(t, http.MethodPost, "/alerts", map[string]string{
		"payload": "DEV1|STATUS|14.6|120.9|0km/h|7sat|120,-80,9.5",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["persisted"])

	_, body = h.do(t, http.MethodGet, "/alerts", nil)
	assert.EqualValues(t, 0, body["count"])

	resp, body = h.do(t, http.MethodGet, "/status/DEV1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "STATUS", body["mode"])
	assert.Equal(t, "120", body["uptime"])

	_, body = h.do(t, http.MethodGet, "/status", nil)
	assert.EqualValues(t, 1, body["count"])

	_, body = h.do(t, http.MethodGet, "/devices", nil)
	assert.EqualValues(t, 1, body["count"])
}

func TestIngestRejections(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)

	tests := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{"not json", "{nope", http.StatusBadRequest, reasonMalformed},
		{"no payload", map[string]string{"status": "STATUS"}, http.StatusBadRequest, reasonMalformed},
		{"too few fields", map[string]string{"payload": "DEV1|STATUS"}, http.StatusBadRequest, reasonInsufficient},
		{"empty device", map[string]string{"payload": "|NORMAL|1|2|3|4|5"}, http.StatusBadRequest, reasonMissingDeviceID},
		{"too large", map[string]string{"payload": strings.Repeat("x", 2048)}, http.StatusRequestEntityTooLarge, reasonBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, "/alerts", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.NotEmpty(t, body["error"])
		})
	}

	_, body := h.do(t, http.MethodGet, "/devices", nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestDeleteEvents(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)

	_, ack := h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": scenarioA})
	_, _ = h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": "DEV2|NORMAL|1|2|3|4|5"})

	resp, _ := h.do(t, http.MethodDelete, "/alerts/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, body := h.do(t, http.MethodGet, "/alerts", nil)
	assert.EqualValues(t, 2, body["count"])

	resp, body = h.do(t, http.MethodDelete, fmt.Sprintf("/alerts/%s", ack["eventId"]), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	_, body = h.do(t, http.MethodGet, "/alerts", nil)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = h.do(t, http.MethodDelete, "/alerts", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = h.do(t, http.MethodGet, "/alerts", nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestLegacyStatus(t *testing.T) {
	h := newTestHub(t, decoder.GenerationLegacy)

	resp, _ := h.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": "NORMAL|14.6|120.9|0km/h|7sat|120,-80,9.5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "default", body["deviceId"])
	assert.Equal(t, "NORMAL", body["mode"])

	_, body = h.do(t, http.MethodGet, "/config/policy", nil)
	assert.Equal(t, "legacy", body["generation"])
	assert.Equal(t, "default", body["implicitDeviceId"])
}

func TestLegacyStatusIgnoresOtherDevices(t *testing.T) {
	h := newTestHub(t, decoder.GenerationLegacy)
	// Left over from a multi-device deployment sharing the store.
	h.states.Seed(&model.TelemetryRecord{DeviceID: "ALPHA", Mode: model.ModeNormal, Uptime: "0", ReceivedAt: time.Now()})

	resp, _ := h.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": "STATUS|1|2|0km/h|5|30,-60,8"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "default", body["deviceId"])
	assert.Equal(t, "STATUS", body["mode"])
}

func TestAcknowledgeWithoutReceivers(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)
	h.dial(t, "viewer")

	resp, body := h.do(t, http.MethodPost, "/acknowledge", map[string]string{"deviceId": "DEV1"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, body = h.do(t, http.MethodPost, "/acknowledge", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, reasonMalformed, body["reason"])
}

func TestAcknowledgeReachesReceiver(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)
	ws := h.dial(t, "receiver")

	typ, hello := readType(t, ws)
	require.Equal(t, live.KindHello, typ)
	assert.Equal(t, "receiver", hello["role"])
	require.Eventually(t, func() bool { return h.registry.Count(model.RoleReceiver) == 1 }, time.Second, 10*time.Millisecond)

	resp, body := h.do(t, http.MethodPost, "/acknowledge", map[string]string{"deviceId": "DEV1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["delivered"])

	typ, cmd := readType(t, ws)
	assert.Equal(t, live.KindCommand, typ)
	assert.Equal(t, "ACK", cmd["name"])
	assert.Equal(t, "DEV1", cmd["deviceId"])
}

func TestViewerGetsReplayThenLiveUpdates(t *testing.T) {
	h := newTestHub(t, decoder.GenerationMulti)
	_, _ = h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": scenarioA})

	ws := h.dial(t, "")
	typ, _ := readType(t, ws)
	require.Equal(t, live.KindHello, typ)

	typ, rec := readType(t, ws)
	require.Equal(t, live.KindTelemetry, typ)
	assert.Equal(t, "DEV1", rec["deviceId"])
	require.Eventually(t, func() bool { return h.registry.Count(model.RoleViewer) == 1 }, time.Second, 10*time.Millisecond)

	_, _ = h.do(t, http.MethodPost, "/alerts", map[string]string{"payload": "DEV2|STATUS|1|2|3|4|5"})
	typ, rec = readType(t, ws)
	require.Equal(t, live.KindTelemetry, typ)
	assert.Equal(t, "DEV2", rec["deviceId"])
	assert.Equal(t, "DEV2|STATUS|1|2|3|4|5", rec["rawPayload"])
}

func TestProbesAndMetrics(t *testing.T) {
	var failing atomic.Bool
	h := newTestHub(t, decoder.GenerationMulti, func(_ context.Context) error {
		if failing.Load() {
			return errors.New("store unreachable")
		}
		return nil
	})

	resp, _ := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	failing.Store(true)
	resp, _ = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPut, "/alerts", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRecovererReturns500(t *testing.T) {
	h := &handler{logger: log.NewNopLogger()}
	panicky := h.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{"payload":"x"}`))
	panicky.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestCheckOrigin(t *testing.T) {
	anyOrigin := checkOrigin(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, anyOrigin(req))

	only := checkOrigin([]string{"https://ops.example"})
	assert.False(t, only(req))
	req.Header.Set("Origin", "https://ops.example")
	assert.True(t, only(req))
}
