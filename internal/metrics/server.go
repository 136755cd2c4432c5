// Package metrics serves the Prometheus scrape endpoint and a strategy
// status readout
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"condor_trader/internal/core"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot produces the current strategy readout rendered at /statusz
type Snapshot func() map[string]interface{}

// Server exposes /metrics, /statusz and /healthz on one port
type Server struct {
	port     int
	snapshot Snapshot
	logger   core.ILogger
	srv      *http.Server
}

// NewServer creates an ops server. snapshot may be nil, in which case
// /statusz serves an empty object.
func NewServer(port int, snapshot Snapshot, logger core.ILogger) *Server {
	return &Server{
		port:     port,
		snapshot: snapshot,
		logger:   logger.WithField("component", "ops_server"),
	}
}

// Start serves in the background until Stop
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/statusz", s.handleStatus)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("Starting ops server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Ops server failed", "error", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{}
	if s.snapshot != nil {
		status = s.snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("Status encode failed", "error", err.Error())
	}
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping ops server")
	return s.srv.Shutdown(ctx)
}
