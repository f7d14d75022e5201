package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docmill/docmill/internal/queue"
)

// StatusServer exposes supervisor liveness and queue depths over HTTP.
type StatusServer struct {
	sup    *Supervisor
	queue  *queue.Queue
	logger *slog.Logger
}

// NewStatusServer creates a StatusServer.
func NewStatusServer(sup *Supervisor, q *queue.Queue, logger *slog.Logger) *StatusServer {
	return &StatusServer{sup: sup, queue: q, logger: logger.With("component", "status")}
}

func (s *StatusServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	return r
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Workers []SlotStatus `json:"workers"`
		Queue   *queue.Stats `json:"queue,omitempty"`
	}
	resp := response{Workers: s.sup.Status()}

	if s.queue != nil {
		stats, err := s.queue.Depths(r.Context())
		if err != nil {
			s.logger.Warn("failed to read queue depths", "error", err)
		} else {
			resp.Queue = &stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Serve runs the status server until ctx is done.
func (s *StatusServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("status server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
