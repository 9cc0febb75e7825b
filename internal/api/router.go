package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"clickreplay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	svc        *service.Service
	mcpHandler http.Handler
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server. mcpHandler may be nil.
func NewServer(addr string, authToken string, svc *service.Service, mcpHandler http.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		svc:        svc,
		mcpHandler: mcpHandler,
		logger:     logger,
		authToken:  authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.mcpHandler != nil {
		// Mount MCP endpoint with optional authentication
		mcpHandler := s.mcpHandler
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", s.handleListSequences)
			r.Post("/", s.handleSaveSequence)
			r.Post("/record", s.handleRecordSequence)

			r.Route("/{sequenceID}", func(r chi.Router) {
				r.Get("/", s.handleGetSequence)
				r.Put("/", s.handleUpdateSequence)
				r.Delete("/", s.handleDeleteSequence)
				r.Post("/play", s.handlePlaySequence)
				r.Get("/sessions", s.handleListSequenceSessions)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{sessionID}", s.handleGetSession)
			r.Delete("/{sessionID}", s.handleDeleteSession)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Put("/", s.handleUpdateJob)
				r.Delete("/", s.handleDeleteJob)
				r.Post("/run", s.handleRunJob)
				r.Post("/pause", s.handlePauseJob)
				r.Post("/resume", s.handleResumeJob)
				r.Get("/sessions", s.handleListJobSessions)
			})
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/", s.handleSchedulerStatus)
			r.Post("/start", s.handleStartScheduler)
			r.Post("/stop", s.handleStopScheduler)
			r.Get("/log", s.handleSchedulerLog)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Get("/", s.handlePlaybackStatus)
			r.Post("/stop", s.handleStopPlayback)
		})

		r.Post("/launch", s.handleLaunch)
	})
}
