// Package statusapi is a small local HTTP surface for inspecting an
// in-progress discovery run and recent run history: a chi.NewRouter() with
// a /healthz liveness route plus a read-only run-inspection API (no
// webhook verification needed here — there is no inbound event source in
// this module, only a local status query surface).
package statusapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moti-malka/gl2gh-sub000/internal/discovery"
	"github.com/moti-malka/gl2gh-sub000/internal/runlog"
)

// Server exposes read-only progress and run-history endpoints. Monitor may
// be nil when no discovery run is active, and /api/status then answers 404.
// Only the gl2gh-discover CLI starts this server.
type Server struct {
	monitor *discovery.StateMonitor
	runs    *runlog.Store
	log     *log.Logger
}

func New(monitor *discovery.StateMonitor, runs *runlog.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "gl2gh-status ", log.LstdFlags|log.LUTC)
	}
	return &Server{monitor: monitor, runs: runs, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs/{agent}", s.handleRuns)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		http.Error(w, "no discovery run active", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "run history unavailable", http.StatusNotFound)
		return
	}
	agent := runlog.Agent(chi.URLParam(r, "agent"))
	runs, err := s.runs.Recent(r.Context(), agent, 50)
	if err != nil {
		s.log.Printf("runs query error agent=%s: %v", agent, err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// Serve blocks serving the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
