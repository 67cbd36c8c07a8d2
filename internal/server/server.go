// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/database"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/repository"
	"threads/internal/service"
	"threads/internal/upload"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("threads-api")
	})
	return prom
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	DB      database.Provider
	Redis   *redis.Client
	Pages   *cache.Cache
	Uploads upload.Uploader
	// MediaDir is served at /media when uploads are stored on disk.
	MediaDir string
	Closer   func() error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config   *config.Config
	db       database.Provider
	redis    *redis.Client
	pages    *cache.Cache
	uploads  upload.Uploader
	mediaDir string
	closer   func() error
	app      *fiber.App

	userService     *service.UserService
	threadService   *service.ThreadService
	profileWorkflow *service.ProfileWorkflow
	threadWorkflow  *service.ThreadWorkflow
	commentWorkflow *service.CommentWorkflow
}

// NewServer creates a new server instance with all dependencies built from cfg.
// The store is connected lazily on first use; Redis is optional.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	manager := database.NewManager(cfg)

	redisClient := cache.Connect(ctx, cfg.RedisURL)

	uploads, store, err := upload.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("upload backend: %w", err)
	}
	var mediaDir string
	if disk, ok := store.(*upload.DiskStore); ok {
		mediaDir = disk.Dir()
	}

	return NewServerWithDeps(cfg, Deps{
		DB:       manager,
		Redis:    redisClient,
		Pages:    cache.New(redisClient, cfg.PageCacheTTL),
		Uploads:  uploads,
		MediaDir: mediaDir,
		Closer:   manager.Close,
	}), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this to inject in-memory stores.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	pages := deps.Pages
	if pages == nil {
		pages = cache.New(deps.Redis, cfg.PageCacheTTL)
	}

	userRepo := repository.NewUserRepository(deps.DB, cfg.DBTimeout)
	threadRepo := repository.NewThreadRepository(deps.DB, cfg.DBTimeout)

	s := &Server{
		config:   cfg,
		db:       deps.DB,
		redis:    deps.Redis,
		pages:    pages,
		uploads:  deps.Uploads,
		mediaDir: deps.MediaDir,
		closer:   deps.Closer,
	}
	s.userService = service.NewUserService(userRepo, threadRepo, pages)
	s.threadService = service.NewThreadService(threadRepo, userRepo, pages)
	s.profileWorkflow = service.NewProfileWorkflow(s.userService, deps.Uploads)
	s.threadWorkflow = service.NewThreadWorkflow(s.userService, s.threadService)
	s.commentWorkflow = service.NewCommentWorkflow(s.userService, s.threadService)

	middleware.InitMiddleware(cfg)
	return s
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	app := fiber.New(fiber.Config{
		AppName:      "Threads API",
		BodyLimit:    (s.config.UploadMaxMB + 1) << 20,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.ErrorResponse{Error: fiberErr.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "Unhandled error", slog.String("error", err.Error()))
	return models.RespondWithAppError(c, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	p := httpMetrics()
	p.RegisterAt(app, "/metrics")
	app.Use(p.Middleware)

	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.mediaDir != "" {
		app.Static("/media", s.mediaDir)
	}

	api := app.Group("/api", middleware.AuthRequired)
	onboarded := middleware.OnboardingRequired(s.userService)
	writes := middleware.RateLimit(s.redis, 30, time.Minute, "writes")

	api.Get("/me", s.GetMe)
	api.Post("/onboarding", writes, s.SubmitOnboarding)
	api.Post("/uploads", writes, s.UploadFiles)

	api.Put("/profile", onboarded, writes, s.UpdateProfile)
	api.Get("/profile/:externalId", onboarded, s.GetProfile)
	api.Get("/profile/:externalId/threads", onboarded, s.GetProfileThreads)

	api.Get("/feed", onboarded, s.GetFeed)
	api.Post("/threads", onboarded, writes, s.CreateThread)
	api.Get("/threads/:id", onboarded, s.GetThread)
	api.Post("/threads/:id/comments", onboarded, writes, s.AddComment)

	api.Get("/search", onboarded, s.SearchUsers)
	api.Get("/activity", onboarded, s.GetActivity)
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
	if db, err := s.db.Conn(ctx); err != nil {
		dbStatus = "unhealthy"
	} else if sqlDB, err := db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// The page cache is optional; without Redis reads go to the store.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.closer != nil {
		if err := s.closer(); err != nil {
			middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
