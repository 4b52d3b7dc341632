// Package api exposes the registry over HTTP: JSON endpoints plus an SSE
// stream for image pulls.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vulnlab"
	"vulnlab/internal/compose"
	"vulnlab/internal/docker"
	"vulnlab/internal/registry"
)

// Registry is the interface the API server needs from the registry.
type Registry interface {
	List(ctx context.Context, force bool) (vulnlab.Snapshot, error)
	Get(ctx context.Context, id string) (registry.Detail, error)
	Stats(ctx context.Context) (vulnlab.Stats, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	CheckImages(ctx context.Context, id string) compose.ImageCheck
	Pull(ctx context.Context, id string) (*compose.Stream, error)
	WaitReady(ctx context.Context, id string, timeout time.Duration) (compose.Ready, error)
	Running(ctx context.Context) ([]docker.ContainerInfo, error)
	Refresh(ctx context.Context) (vulnlab.Snapshot, error)
}

// defaultReadyTimeout applies when /api/wait-ready gets no timeout param.
const defaultReadyTimeout = 20 * time.Second

type Server struct {
	registry Registry
	router   chi.Router
}

func New(reg Registry) *Server {
	s := &Server{registry: reg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/scan", s.handleScan)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/env/*", s.handleEnvDetail)
	r.Post("/api/start", s.handleStart)
	r.Post("/api/stop", s.handleStop)
	r.Get("/api/check-images", s.handleCheckImages)
	r.Get("/api/pull-stream", s.handlePullStream)
	r.Get("/api/wait-ready", s.handleWaitReady)
	r.Get("/api/running", s.handleRunning)
	r.Post("/api/refresh-cache", s.handleRefreshCache)
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	slog.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		<-errs
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve api: %w", err)
	}
}
