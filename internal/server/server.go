package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vidhub/apiserver/config"
	"github.com/vidhub/apiserver/internal/db"
	"github.com/vidhub/apiserver/internal/events"
	"github.com/vidhub/apiserver/internal/handlers"
	"github.com/vidhub/apiserver/internal/logging"
	"github.com/vidhub/apiserver/internal/media"
	"github.com/vidhub/apiserver/internal/mq"
	"github.com/vidhub/apiserver/internal/services"
	"github.com/vidhub/apiserver/internal/storage"
	"github.com/vidhub/apiserver/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	closers    []func(context.Context) error
}

// New connects the configured backends and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}

	userRepo, err := s.openUserRepository(ctx, cfg)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	objectStorage, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return objectStorage.Close() })
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("ensure bucket %s: %w", objectStorage.Bucket(), err)
	}

	publisher, err := s.openPublisher(ctx, cfg.MQ)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	tokens := services.NewTokenIssuer(cfg.Auth)
	userService := services.NewUserService(
		userRepo,
		tokens,
		media.NewUploader(objectStorage),
		publisher,
		logging.WithComponent(logger, "users"),
	)
	cookies := handlers.CookieConfig{
		Secure:     cfg.CookieSecure,
		AccessTTL:  tokens.AccessTTL(),
		RefreshTTL: tokens.RefreshTTL(),
	}

	router := NewRouter(cfg, logger, func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, cookies, logging.WithComponent(logger, "http"))
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter builds the middleware stack and mounts the API routes under
// /api/v1.
func NewRouter(cfg config.Config, logger *zap.Logger, api func(r chi.Router)) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logging.WithComponent(logger, "access")),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", api)
	return router
}

func (s *Server) openUserRepository(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, database, err := db.OpenMongo(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		s.closers = append(s.closers, client.Disconnect)

		repo := store.NewMongoUserRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		return repo, nil
	case config.DriverPostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return dbConn.Close() })
		return store.NewUserRepository(dbConn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func (s *Server) openPublisher(ctx context.Context, cfg config.MQConfig) (events.Publisher, error) {
	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}
	if queue == nil {
		s.logger.Info("auth events disabled")
		return events.Nop{}, nil
	}
	s.closers = append(s.closers, func(context.Context) error { return queue.Close() })
	return events.NewMQPublisher(queue, cfg.Channel, logging.WithComponent(s.logger, "events")), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close(ctx)
	return err
}

func (s *Server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn("close backend", zap.Error(err))
		}
	}
	s.closers = nil
}
