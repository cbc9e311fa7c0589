package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

const readyCheckTimeout = 2 * time.Second

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	logger  log.Logger
}

// NewServer builds the REST, live channel and probe routes.
func NewServer(
	opts *options.HttpOptions,
	liveOpts *options.LiveOptions,
	svc *service.Service,
	registry *live.Registry,
	checks ...ReadyCheck,
) *Server {
	logger := log.WithName("http")
	h := &handler{
		svc:      svc,
		registry: registry,
		liveOpts: liveOpts,
		maxBody:  opts.MaxBodyBytes,
		checks:   checks,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(liveOpts.AllowedOrigins),
		},
	}

	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           h.routes(),
			ReadHeaderTimeout: opts.Timeout,
			ReadTimeout:       opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
		options: opts,
		logger:  logger,
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP Server", "addr", s.server.Addr)

	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}

	// Live connections derive from ctx and close when it is cancelled;
	// Shutdown does not track hijacked connections.
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (h *handler) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(h.recoverer, h.accessLog)

	r.HandleFunc("/alerts", h.ingest).Methods(http.MethodPost)
	r.HandleFunc("/alerts", h.listEvents).Methods(http.MethodGet)
	r.HandleFunc("/alerts", h.deleteEvents).Methods(http.MethodDelete)
	r.HandleFunc("/alerts/device/{deviceId}", h.deviceEvents).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}", h.deleteEvent).Methods(http.MethodDelete)

	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/status/{deviceId}", h.deviceStatus).Methods(http.MethodGet)
	r.HandleFunc("/devices", h.devices).Methods(http.MethodGet)

	r.HandleFunc("/acknowledge", h.acknowledge).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.live).Methods(http.MethodGet)

	r.HandleFunc("/config/policy", h.policy).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
