package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/decoder"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

const transportHTTP = "http"

type handler struct {
	svc      *service.Service
	registry *live.Registry
	liveOpts *options.LiveOptions
	upgrader websocket.Upgrader
	maxBody  int64
	checks   []ReadyCheck
	logger   log.Logger
}

type eventList struct {
	Events []*model.Event `json:"events"`
	Count  int            `json:"count"`
}

type deviceSummary struct {
	DeviceID string                 `json:"deviceId"`
	Latest   *model.TelemetryRecord `json:"latest"`
}

type deviceList struct {
	Devices []deviceSummary `json:"devices"`
	Count   int             `json:"count"`
}

type statusList struct {
	Devices []*model.TelemetryRecord `json:"devices"`
	Count   int                      `json:"count"`
}

type ackRequest struct {
	DeviceID string `json:"deviceId"`
}

type ackResponse struct {
	Success   bool   `json:"success"`
	DeviceID  string `json:"deviceId"`
	Delivered int    `json:"delivered"`
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := h.decodeBody(w, r, &sub); err != nil {
		writeError(w, err)
		return
	}
	sub.Transport = transportHTTP

	ack, err := h.svc.Ingest(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventList(events))
}

func (h *handler) deviceEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.DeviceEvents(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventList(events))
}

func (h *handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEvent(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true})
}

func (h *handler) deleteEvents(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEvents(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Message: "all events deleted"})
}

// status returns the implicit device's record in legacy mode and every latest
// record otherwise.
func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	if policy := h.svc.Policy(); policy.Generation == decoder.GenerationLegacy {
		rec, err := h.svc.State(policy.ImplicitDeviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	states := h.svc.States()
	writeJSON(w, http.StatusOK, statusList{Devices: states, Count: len(states)})
}

func (h *handler) deviceStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.State(mux.Vars(r)["deviceId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) devices(w http.ResponseWriter, _ *http.Request) {
	states := h.svc.States()
	out := deviceList{Devices: make([]deviceSummary, 0, len(states)), Count: len(states)}
	for _, rec := range states {
		out.Devices = append(out.Devices, deviceSummary{DeviceID: rec.DeviceID, Latest: rec})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.svc.Acknowledge(r.Context(), req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true, DeviceID: req.DeviceID, Delivered: n})
}

func (h *handler) live(w http.ResponseWriter, r *http.Request) {
	role := model.ParseRole(r.URL.Query().Get("role"))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	live.NewConn(ws, role, h.liveOpts).Serve(r.Context(), h.registry)
}

func (h *handler) policy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Policy())
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	for _, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &requestError{err: err}
	}
	return nil
}

func newEventList(events []*model.Event) eventList {
	if events == nil {
		events = []*model.Event{}
	}
	return eventList{Events: events, Count: len(events)}
}
