// Package server contains the HTML pages, JSON API and WebSocket handlers of WebCarros.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "webcarros/docs" // swagger docs
	"webcarros/internal/cache"
	"webcarros/internal/config"
	"webcarros/internal/database"
	"webcarros/internal/docstore"
	"webcarros/internal/identity"
	"webcarros/internal/middleware"
	"webcarros/internal/models"
	"webcarros/internal/objectstore"
	"webcarros/internal/repository"
	"webcarros/internal/service"
	"webcarros/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// guardWait bounds how long a gated page waits for the initial auth check.
	guardWait     = 3 * time.Second
	sweepInterval = time.Minute
	// globalRateLimit is the per-IP request budget per minute.
	globalRateLimit = 300
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	objects        objectstore.Store
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	views          *views
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	globalLimit    int

	provider   *identity.Provider
	registry   *session.Registry
	workspaces *service.Workspaces

	listingRepo repository.ListingRepository
	imageRepo   repository.ImageRepository
	profileRepo repository.ProfileRepository

	createFlow    *service.CreateFlow
	browseService *service.BrowseService
	detailService *service.DetailService
	ownerFlow     *service.OwnerFlow
	accountFlow   *service.AccountFlow
	reconciler    *service.Reconciler
}

// NewServer connects the database, Redis and object storage described by cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := cache.Connect(cfg.RedisURL)

	objects, err := objectstore.NewDiskStore(cfg.StorageDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("object storage init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, redisClient, objects)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; sign-ins and rate limits then stay in process.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, objects objectstore.Store) (*Server, error) {
	v, err := loadViews()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	docs := docstore.NewGormStore(db)
	listingRepo := repository.NewListingRepository(docs)
	imageRepo := repository.NewImageRepository(objects)
	profileRepo := repository.NewProfileRepository(docs)

	var sessions identity.SessionStore
	if redisClient != nil {
		sessions = identity.NewRedisSessions(redisClient)
	}
	provider := identity.NewProvider(
		identity.NewAccounts(db),
		identity.NewTokenIssuer(cfg.JWTSecret, 0),
		sessions,
	)

	registry := session.NewRegistry(provider, profileRepo, cfg.SessionIdle())
	workspaces := service.NewWorkspaces()
	registry.OnEvict(workspaces.Discard)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		objects:        objects,
		promMiddleware: middleware.InitMetrics("webcarros"),
		views:          v,
		globalLimit:    globalRateLimit,
		provider:       provider,
		registry:       registry,
		workspaces:     workspaces,
		listingRepo:    listingRepo,
		imageRepo:      imageRepo,
		profileRepo:    profileRepo,
		createFlow:     service.NewCreateFlow(listingRepo, imageRepo, cfg),
		browseService:  service.NewBrowseService(listingRepo, imageRepo),
		detailService:  service.NewDetailService(listingRepo),
		ownerFlow:      service.NewOwnerFlow(listingRepo, imageRepo),
		accountFlow:    service.NewAccountFlow(profileRepo),
		reconciler:     service.NewReconciler(objects, listingRepo, imageRepo, workspaces, cfg.ReconcileGrace()),
	}
	return s, nil
}

// Registry exposes the client session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// usesClientSession reports whether a path belongs to the browser app.
// Probes, metrics, docs and media never create client sessions.
func usesClientSession(path string) bool {
	for _, prefix := range []string{"/health", "/metrics", "/media/", "/api/swagger", "/api/listings", "/api/me"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers. Listing photos and thumbnails are same-origin.
	app.Use(helmet.New(helmet.Config{
		CrossOriginEmbedderPolicy: "credentialless",
	}))

	// Structured Logging middleware. It logs after c.Next, so it still sees the
	// ids that ContextMiddleware puts on the user context further down.
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:8080"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP). Media is exempt:
	// a browse page alone loads one thumbnail per listing.
	app.Use(limiter.New(limiter.Config{
		Max:        s.globalLimit,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/media/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	// Client sessions start only for requests the limiter let through.
	clientSession := middleware.ClientSession(s.registry, s.config.IsProduction())
	app.Use(func(c *fiber.Ctx) error {
		if !usesClientSession(c.Path()) {
			return c.Next()
		}
		return clientSession(c)
	})

	// Context Middleware to propagate request, client and user ids
	app.Use(middleware.ContextMiddleware())
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Get("/media/*", s.ServeMedia)

	// Pages
	app.Get("/", s.HomePage)
	app.Get("/car/:id", s.CarPage)
	app.Get("/login", s.LoginPage)
	app.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	app.Get("/register", s.RegisterPage)
	app.Post("/register", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Register)
	app.Post("/logout", s.Logout)

	dashboard := app.Group("/dashboard", middleware.RequireIdentity(guardWait))
	dashboard.Get("/", s.DashboardPage)
	dashboard.Get("/new", s.NewListingPage)
	dashboard.Post("/new", middleware.RateLimit(s.redis, 10, 10*time.Minute, "create_listing"), s.SubmitListing)
	dashboard.Post("/new/images", middleware.RateLimit(s.redis, 30, 5*time.Minute, "upload_image"), s.UploadImages)
	dashboard.Post("/new/images/:name/delete", s.RemoveStagedImage)
	dashboard.Post("/cars/:id/delete", s.DeleteListing)

	api := app.Group("/api")

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	listings := api.Group("/listings")
	listings.Get("/", s.GetListings)
	listings.Get("/:id", s.GetListing)

	me := api.Group("/me", middleware.BearerAuth(s.provider))
	me.Get("/listings", s.GetMyListings)

	api.Get("/session", s.GetSession)
	api.Post("/cards/:id/loaded", s.MarkCardLoaded)

	app.Get("/ws/notifications", s.NotificationsUpgrade, s.NotificationsHandler())
}

// NewApp builds the Fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "WebCarros",
		BodyLimit:    int(8*s.config.MaxUploadBytes()) + 1<<20,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return models.RespondWithError(c, fe.Code, models.NewValidationError(fe.Message))
	}
	slog.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "err", err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: without it sign-ins and rate limits are kept in process.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"sessions": s.registry.Len(),
		"time":     time.Now(),
	})
}

// StartBackground launches the session sweeper and the orphan reconciler.
func (s *Server) StartBackground(ctx context.Context) {
	go s.registry.Run(ctx, sweepInterval)
	s.reconciler.Start(ctx, s.config.ReconcileInterval())
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()
	s.StartBackground(ctx)

	slog.Info("server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the sweeper and reconciler
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", "err", err)
		}
	}

	// Tear down client sessions and their notification streams
	s.registry.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", "err", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", "err", rerr)
		}
	}

	slog.Info("server shutdown complete")
	return nil
}
