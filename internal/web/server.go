package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/experiment"
	"github.com/emiliopalmerini/caseconf/internal/ports"
)

// maxUploadBytes bounds a configuration file upload.
const maxUploadBytes = 10 << 20

type Server struct {
	router      *http.ServeMux
	handler     http.Handler
	port        int
	experiments *experiment.Service
	engine      *assignment.Engine
	configs     ports.DisplayConfigRepository
	logger      *slog.Logger
}

func NewServer(
	port int,
	experiments *experiment.Service,
	engine *assignment.Engine,
	configs ports.DisplayConfigRepository,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		port:        port,
		experiments: experiments,
		engine:      engine,
		configs:     configs,
		logger:      logger,
	}
	s.setupRoutes()
	s.handler = chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
	).Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Pages
	s.router.HandleFunc("GET /{$}", s.handleOverview)

	// Experiments
	s.router.HandleFunc("POST /api/experiments", s.handleCreateExperiment)
	s.router.HandleFunc("GET /api/experiments", s.handleListExperiments)
	s.router.HandleFunc("GET /api/experiments/{id}", s.handleGetExperiment)
	s.router.HandleFunc("PATCH /api/experiments/{id}/status", s.handleUpdateExperimentStatus)

	// Runs
	s.router.HandleFunc("POST /api/experiments/{id}/runs", s.handleCreateRun)
	s.router.HandleFunc("GET /api/experiments/{id}/runs", s.handleListRuns)
	s.router.HandleFunc("POST /api/runs/{id}/start", s.handleStartRun)
	s.router.HandleFunc("POST /api/runs/{id}/complete", s.handleCompleteRun)
	s.router.HandleFunc("POST /api/runs/{id}/fail", s.handleFailRun)

	// Configurations
	s.router.HandleFunc("POST /api/configs/batch", s.handleBatchConfigs)
	s.router.HandleFunc("POST /api/configs/upload", s.handleUploadConfigs)
	s.router.HandleFunc("GET /api/configs", s.handleListConfigs)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", "error", err)
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
