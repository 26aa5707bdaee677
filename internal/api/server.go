// Package api exposes the HTTP surface: the certificate trigger, case and run
// polling, static document files, health and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dharsanguruparan/certdossier/internal/model"
	"github.com/dharsanguruparan/certdossier/internal/orchestrator"
)

// Cases reads case and owner records.
type Cases interface {
	GetCase(ctx context.Context, id int64) (*model.Case, error)
	ListOwners(ctx context.Context, caseID int64) ([]model.Owner, error)
}

// Runs is the run ledger.
type Runs interface {
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, caseID int64) ([]model.Run, error)
	LatestRun(ctx context.Context, caseID int64) (*model.Run, error)
}

// Scheduler hands a run to the background mechanism.
type Scheduler interface {
	Schedule(ctx context.Context, req orchestrator.Request) error
}

// Files resolves stored document names. Only regular files are served.
type Files interface {
	Path(name string) (string, error)
	Exists(name string) bool
}

// Dependencies wires a Server. Files and Metrics are optional.
type Dependencies struct {
	Address         string
	Files           Files
	ShutdownTimeout time.Duration
	Cases           Cases
	Runs            Runs
	Scheduler       Scheduler
	Metrics         http.Handler
	Logger          *slog.Logger
	Now             func() time.Time
}

// Server exposes HTTP endpoints for triggering and polling certificate runs.
type Server struct {
	deps    Dependencies
	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = 5 * time.Second
	}
	return &Server{deps: deps}
}

// Handler returns the routed handler, building it on first use.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.deps.Logger))
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	if s.deps.Files != nil {
		r.Get("/files/*", s.handleFile)
	}
	r.Route("/analises", func(r chi.Router) {
		r.Post("/certidoes", s.handleTrigger)
		r.Get("/certidoes/runs/{runID}", s.handleRun)
		r.Route("/{caseID}", func(r chi.Router) {
			r.Get("/", s.handleCase)
			r.Get("/proprietarios", s.handleOwners)
			r.Get("/certidoes/runs", s.handleRuns)
			r.Get("/certidoes/runs/latest", s.handleLatestRun)
		})
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.deps.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.deps.ShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.deps.Logger.Info("api listening", "address", s.deps.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"status", status,
				"method", r.Method,
				"path", r.URL.Path,
				"latency_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			}
			switch {
			case status >= 500:
				logger.ErrorContext(r.Context(), "request completed", attrs...)
			case status >= 400:
				logger.WarnContext(r.Context(), "request completed", attrs...)
			default:
				logger.InfoContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}
