// Package httpserver exposes the job submission/lifecycle operations
// and the scheduled-job manager over HTTP: POST /jobs (licensed),
// POST /jobs/standard, POST /jobs/k8s, GET/DELETE /jobs, and the
// /scheduled-job family. A chi router with the usual middleware, a
// health endpoint outside auth, and a typed Server wrapping the
// http.Server lifecycle.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/scheduler"
	"github.com/riftscan/sentinel/internal/submission"
)

// Options configures the listener and auth posture.
type Options struct {
	Address     string
	AuthEnabled bool
}

// Server is the HTTP facade over the controller and the scheduler.
type Server struct {
	opts       Options
	controller *submission.Controller
	scheduler  *scheduler.Manager
	auth       *APIKeyAuth
	log        *zap.Logger

	httpServer *http.Server
}

// New builds a Server. auth may be nil when opts.AuthEnabled is false.
func New(opts Options, controller *submission.Controller, sched *scheduler.Manager, auth *APIKeyAuth, log *zap.Logger) *Server {
	return &Server{opts: opts, controller: controller, scheduler: sched, auth: auth, log: log}
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.health)

	r.Group(func(r chi.Router) {
		if s.opts.AuthEnabled && s.auth != nil {
			r.Use(s.auth.Middleware)
		}

		h := &jobHandlers{controller: s.controller, log: s.log}
		r.Post("/jobs", h.submitLicensed)
		r.Post("/jobs/standard", h.submitStandard)
		r.Post("/jobs/k8s", h.submitK8s)
		r.Get("/jobs", h.list)
		r.Get("/jobs/{id}", h.get)
		r.Delete("/jobs/{id}", h.terminate)

		sh := &scheduledHandlers{manager: s.scheduler, log: s.log}
		r.Post("/scheduled-job", sh.register)
		r.Get("/scheduled-job", sh.list)
		r.Get("/scheduled-job/{name}", sh.get)
		r.Delete("/scheduled-job/{name}", sh.delete)
		r.Patch("/scheduled-job/{name}", sh.update)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// drains in-flight requests with a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.log != nil {
			s.log.Info("starting http server", zap.String("address", s.opts.Address))
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
