package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ustoz-edu/apiserver/config"
	"github.com/ustoz-edu/apiserver/internal/db"
	"github.com/ustoz-edu/apiserver/internal/handlers"
	"github.com/ustoz-edu/apiserver/internal/metrics"
	"github.com/ustoz-edu/apiserver/internal/mq"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/storage"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
)

// App holds the services the HTTP layer is built from.
type App struct {
	Identities *services.IdentityService
	Tokens     *services.TokenService
	Subjects   *services.SubjectService
	Storage    *storage.Storage
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewApp wires repositories and services on top of an open database.
// broker may be nil, in which case identity events are not published.
func NewApp(conn *sql.DB, cfg config.Config, objects *storage.Storage, broker *mq.MQ, m *metrics.Metrics, logger *zap.Logger) *App {
	identities := services.NewIdentityService(store.NewIdentityRepository(conn), logger).
		WithMetrics(m).
		WithImages(objects)
	if broker != nil {
		identities.WithEvents(broker, cfg.MQ.Channel)
	}

	tokens := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, objects, identities)
	subjects := services.NewSubjectService(store.NewSubjectRepository(conn))

	return &App{
		Identities: identities,
		Tokens:     tokens,
		Subjects:   subjects,
		Storage:    objects,
		Metrics:    m,
		Logger:     logger,
	}
}

// NewRouter builds the route table.
func NewRouter(app *App) *chi.Mux {
	logger := app.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	authMiddleware := handlers.RequireAuth(app.Tokens)
	optionalAuth := handlers.OptionalAuth(app.Tokens)
	permMiddleware := handlers.RequirePerm(app.Identities, "users.view_user")

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	if app.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	}
	router.Route("/token", func(r chi.Router) {
		handlers.AuthRouter(r, handlers.NewAuthHandler(app.Identities, app.Tokens, app.Metrics, logger))
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, handlers.NewUserHandler(app.Identities, app.Storage, logger), authMiddleware, optionalAuth)
	})
	views := map[string]types.Role{
		"/students": types.RoleStudent,
		"/teachers": types.RoleTeacher,
		"/admins":   types.RoleAdmin,
	}
	for prefix, role := range views {
		view := services.NewRoleScopedRepository(app.Identities, role)
		handler := handlers.NewRoleHandler(view, app.Storage, logger)
		router.Route(prefix, func(r chi.Router) {
			handlers.RoleRouter(r, handler, authMiddleware, permMiddleware)
		})
	}
	router.Route("/subjects", func(r chi.Router) {
		handlers.SubjectRouter(r, handlers.NewSubjectHandler(app.Subjects, logger), authMiddleware)
	})
	return router
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     *zap.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}

	app := NewApp(dbConn, cfg, objects, broker, metrics.New(), logger)
	router := NewRouter(app)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
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
		mq:         broker,
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
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if closeErr := s.mq.Close(); closeErr != nil {
			s.logger.Warn("failed to close mq", zap.Error(closeErr))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
