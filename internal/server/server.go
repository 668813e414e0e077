// Package server contains the HTTP handlers for the lending API.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gamelend/internal/cache"
	"gamelend/internal/config"
	"gamelend/internal/database"
	"gamelend/internal/middleware"
	"gamelend/internal/repository"
	"gamelend/internal/scheduler"
	"gamelend/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	clock          service.Clock

	requests *service.BorrowRequestService
	records  *service.LendingRecordService
	sweeper  *scheduler.OverdueSweeper
}

// Option customises a Server built by NewServerWithDeps.
type Option func(*Server)

// WithClock replaces the wall clock used by the services.
func WithClock(clock service.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	promOnce.Do(func() {
		prom = middleware.InitMetrics("gamelend-api")
	})

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		clock:          service.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	requestRepo := repository.NewBorrowRequestRepository(db)
	recordRepo := repository.NewLendingRecordRepository(db)
	gameRepo := repository.NewGameRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	guard := service.NewGuard(requestRepo, recordRepo)

	s.records = service.NewLendingRecordService(db, recordRepo, guard, s.clock, service.NewULIDGen())
	s.requests = service.NewBorrowRequestService(db, requestRepo, gameRepo, accountRepo, s.records, guard, s.clock)
	s.sweeper = scheduler.NewOverdueSweeper(s.records, redisClient, cfg.OverdueSweepInterval(), cfg.OverdueAutoMark)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	protected := api.Group("", middleware.AuthRequired, middleware.ContextMiddleware())

	createLimit := s.config.RateLimitPerMinute
	if createLimit <= 0 {
		createLimit = 30
	}

	requests := protected.Group("/borrow-requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, createLimit, time.Minute, "create_borrow_request"), s.CreateBorrowRequest)
	requests.Get("/", s.ListBorrowRequests)
	requests.Patch("/:id/status", s.UpdateBorrowRequestStatus)
	requests.Delete("/:id", s.DeleteBorrowRequest)
	requests.Get("/:id", s.GetBorrowRequest)

	protected.Get("/games/:id/approved-periods", s.GetApprovedPeriods)

	// Specific routes before generic /:id
	records := protected.Group("/lending-records")
	records.Get("/", s.ListLendingRecords)
	records.Get("/overdue", s.ListOverdueLendingRecords)
	records.Get("/:id/history", s.GetLendingRecordHistory)
	records.Patch("/:id/status", s.UpdateLendingRecordStatus)
	records.Post("/:id/return", s.MarkLendingRecordReturned)
	records.Post("/:id/close", s.CloseLendingRecord)
	records.Patch("/:id/end-date", s.UpdateLendingRecordEndDate)
	records.Delete("/:id", s.DeleteLendingRecord)
	records.Get("/:id", s.GetLendingRecord)
}

// StartBackground launches the overdue sweep.
func (s *Server) StartBackground(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// LivenessCheck handles GET /health/live
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles GET /health/ready. Redis is optional; the
// service runs without cache and sweep lock when it is absent.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

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

// Shutdown stops background work and releases connections.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sweeper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("overdue sweep did not stop in time: %v", ctx.Err())
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
