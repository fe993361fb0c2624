package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/cosmetica/apiserver/config"
	"github.com/cosmetica/apiserver/internal/db"
	"github.com/cosmetica/apiserver/internal/handlers"
	"github.com/cosmetica/apiserver/internal/mq"
	"github.com/cosmetica/apiserver/internal/notify"
	"github.com/cosmetica/apiserver/internal/services"
	"github.com/cosmetica/apiserver/internal/storage"
	"github.com/cosmetica/apiserver/internal/store"
	"github.com/cosmetica/apiserver/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and its shared resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *zap.Logger
}

// New constructs a Server with all dependencies wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	media, err := newMediaStorage(ctx, cfg.Media)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := media.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure media bucket: %w", err)
	}

	queue, err := NewQueue(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	notifier := notify.NewPublisher(queue, cfg.MQ.NotificationsQueue, logger)

	userRepo := store.NewUserRepository(dbConn)
	productRepo := store.NewProductRepository(dbConn)

	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, tokens, notifier, logger)
	productService := services.NewProductService(productRepo, media, cfg.Media.PublicBaseURL, logger)

	authHandler := handlers.NewAuthHandler(authService, userService, notifier, tokens.RefreshTTL(), logger)
	authMiddleware := handlers.RequireAuth(tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", handlers.Healthz)
	router.Post("/register", authHandler.Register)
	router.Post("/login", authHandler.Login)
	router.Get("/refresh", authHandler.Refresh)
	router.With(authMiddleware).Get("/me", authHandler.Me)
	router.Route("/products", func(r chi.Router) {
		handlers.ProductRouter(r, productService, authMiddleware, cfg.Roles, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 3500
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	_ = s.logger.Sync()
	return s.httpServer.Close()
}

func newMediaStorage(ctx context.Context, cfg config.MediaConfig) (*storage.Storage, error) {
	switch cfg.Backend {
	case "", "minio":
		backend, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	case "gcs":
		backend, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

// NewQueue selects and constructs the configured message queue backend.
// It is shared by the API server and the notifier worker.
func NewQueue(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "", "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
