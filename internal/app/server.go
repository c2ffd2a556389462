package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/prescodata/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/prescodata/internal/api/middlewares"
	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter builds and wires all routes.
func NewRouter(cfg *config.Config, svc *Services, logger *slog.Logger) http.Handler {
	rs := respond.New(logger, !cfg.IsProduction())
	authHandler := handlers.NewAuthHandler(svc.Users, rs)
	uploadHandler := handlers.NewUploadHandler(svc.Ingestor, svc.Archive, rs, cfg.UploadDir, cfg.MaxUploadBytes(), logger)
	dataHandler := handlers.NewDataHandler(svc.Records, rs)
	archiveHandler := handlers.NewArchiveHandler(svc.Metadata, svc.Archive, rs, logger)
	limiter := appMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(appMiddleware.SecurityHeaders)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appMiddleware.APIKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rs.Error(w, r, apperr.NotFound("Route not found"))
	})

	r.Get("/health", handlers.Health(svc.DB, logger))

	// API routes
	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Handler(rs))

		// public endpoints
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/register", authHandler.Register)
		api.Get("/fetch-with-account/{id}", dataHandler.FetchWithAccount)

		// static key
		api.Group(func(keyed chi.Router) {
			keyed.Use(appMiddleware.APIKey(cfg.APIKey, rs))
			keyed.Get("/search", dataHandler.Search)
			keyed.Get("/search/{field}", dataHandler.SearchByField)
			keyed.Get("/data", dataHandler.ListAll)
			keyed.Get("/stats", dataHandler.Stats)
			keyed.Get("/collections", dataHandler.Collections)

			// static key and token
			keyed.Group(func(protected chi.Router) {
				protected.Use(appMiddleware.JWTMiddleware(svc.Tokens, rs))
				protected.Post("/upload", uploadHandler.Upload)
				protected.Post("/refresh", uploadHandler.Upload)
				protected.Get("/collections/{name}/file", archiveHandler.Download)
			})
		})
	})

	return r
}

func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
