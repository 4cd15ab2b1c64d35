// Package http exposes the runtime core's dashboard boundary: read-only
// status/topic endpoints, a websocket telemetry feed, and a Prometheus
// scrape endpoint. None of this is the dashboard itself (out of scope);
// it is exactly how a dashboard collaborator subscribes to the runtime.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/horus-robotics/horus/internal/hfail"
	"github.com/horus-robotics/horus/internal/scheduler"
)

// ServerConfig configures the dashboard's read-only HTTP+WS server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns a local-only default, matching the teacher's
// own local-only default ("read-only, local-only dashboard"): no
// environment variable overrides listen address here since the run
// manifest (internal/config) already owns that surface.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the dashboard boundary server: a thin read-only view over one
// Scheduler's node table, its bus registry, and its telemetry ring.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig

	sched *scheduler.Scheduler
}

// NewServer builds a Server bound to sched. It checks the configured
// address is free before returning, the same throwaway-listener check the
// teacher's NewServer performs.
func NewServer(config ServerConfig, sched *scheduler.Scheduler) (*Server, error) {
	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("horus: dashboard address %s is busy or unavailable: %w", config.Addr, err)
	}
	listener.Close()

	s := &Server{
		router: mux.NewRouter(),
		config: config,
		sched:  sched,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.HandleFunc("/v1/status", s.jsonHandler(s.handleStatus)).Methods(http.MethodGet)
	api.HandleFunc("/v1/status/{name}", s.jsonHandler(s.handleNodeStatus)).Methods(http.MethodGet)
	api.HandleFunc("/v1/topics", s.jsonHandler(s.handleTopics)).Methods(http.MethodGet)
	api.HandleFunc("/v1/telemetry/ws", s.handleTelemetryWS).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("dashboard request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonHandler(fn func(r *http.Request) (any, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, status := fn(r)
		w.WriteHeader(status)
		writeJSON(w, body)
	}
}

// nodeStatus is the /v1/status response shape for one node.
type nodeStatus struct {
	Name      string `json:"name"`
	Priority  string `json:"priority"`
	State     string `json:"state"`
	TickCount uint64 `json:"tick_count"`
}

type statusResponse struct {
	RunID  string       `json:"run_id"`
	Name   string       `json:"name"`
	Uptime string       `json:"uptime"`
	Ticks  uint64       `json:"ticks"`
	Nodes  []nodeStatus `json:"nodes"`
}

func (s *Server) handleStatus(r *http.Request) (any, int) {
	nodes := s.sched.Nodes()
	out := make([]nodeStatus, len(nodes))
	for i, n := range nodes {
		out[i] = nodeStatus{
			Name:      n.Name(),
			Priority:  n.Priority().String(),
			State:     n.State().String(),
			TickCount: n.TickCount(),
		}
	}
	return statusResponse{
		RunID:  s.sched.RunID().String(),
		Name:   s.sched.Name(),
		Uptime: s.sched.Uptime().String(),
		Ticks:  s.sched.TickSeq(),
		Nodes:  out,
	}, http.StatusOK
}

// handleNodeStatus returns one node's status by name, or 404 when no node
// with that name was ever registered with the scheduler.
func (s *Server) handleNodeStatus(r *http.Request) (any, int) {
	name := mux.Vars(r)["name"]
	n, err := s.sched.Node(name)
	if err != nil {
		if errors.Is(err, hfail.ErrNodeNotFound) {
			return map[string]string{"error": err.Error()}, http.StatusNotFound
		}
		return map[string]string{"error": err.Error()}, http.StatusInternalServerError
	}
	return nodeStatus{
		Name:      n.Name(),
		Priority:  n.Priority().String(),
		State:     n.State().String(),
		TickCount: n.TickCount(),
	}, http.StatusOK
}

type topicStatus struct {
	Name        string `json:"name"`
	ElementSize int    `json:"element_size"`
	Capacity    int    `json:"capacity"`
	LatestSeq   uint64 `json:"latest_seq"`
	Publishers  int    `json:"publishers"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleTopics(r *http.Request) (any, int) {
	topics := s.sched.Registry().Topics()
	out := make([]topicStatus, len(topics))
	for i, t := range topics {
		pubs, subs := t.Counts()
		out[i] = topicStatus{
			Name:        t.Name(),
			ElementSize: t.ElementSize(),
			Capacity:    t.Capacity(),
			LatestSeq:   t.LatestSeq(),
			Publishers:  pubs,
			Subscribers: subs,
		}
	}
	return out, http.StatusOK
}

// Start begins serving; it blocks until Shutdown is called or the server
// errors.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("dashboard server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
