// Package health serves the liveness endpoint.
//
// Routes:
//
//	GET  /health → 200 "ok", X-Import-State: <phase>
//	HEAD /health → same headers, no body
package health

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Phase is where the import currently is.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseImporting Phase = "importing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// StateHeader carries the current Phase on every health response.
const StateHeader = "X-Import-State"

// State is the import phase shared between the pipeline and the handler.
type State struct {
	v atomic.Value
}

func NewState() *State {
	s := &State{}
	s.Set(PhaseStarting)
	return s
}

func (s *State) Set(p Phase) { s.v.Store(p) }

func (s *State) Get() Phase {
	p, _ := s.v.Load().(Phase)
	if p == "" {
		return PhaseStarting
	}
	return p
}

// NewRouter returns the health router. Liveness does not depend on the
// phase: a failed import still answers 200.
func NewRouter(state *State) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set(StateHeader, string(state.Get()))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet, http.MethodHead).Name("Health")
	return r
}

// Serve listens on addr until ctx ends, then shuts down gracefully within
// five seconds. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("health: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
