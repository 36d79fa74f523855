// Package http exposes the service's operational surface: health and
// readiness probes, Prometheus metrics, and a read-only view of the
// station registry for field diagnostics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viu-hydromet/wx-ingest/internal/station"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes health, readiness, metrics, and station endpoints.
type Server struct {
	httpServer *http.Server
	stations   []station.Station
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /stations routes.
func NewServer(addr string, ready ReadinessChecker, stations []station.Station, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		stations: stations,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.HandleFunc("GET /stations", s.handleStations)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// stationSummary is the public shape of one registry entry. Column specs
// stay internal; field techs only need identities and table names.
type stationSummary struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Arity      int    `json:"message_arity"`
	RawTable   string `json:"raw_table"`
	CleanTable string `json:"clean_table"`
	Exclusions int    `json:"exclusion_windows"`
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]stationSummary, len(s.stations))
	for i, st := range s.stations {
		summaries[i] = stationSummary{
			ID:         st.ID,
			Label:      st.Layout.Label,
			Arity:      st.Layout.Arity,
			RawTable:   st.RawTable,
			CleanTable: st.CleanTable,
			Exclusions: len(st.Exclusions),
		}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
