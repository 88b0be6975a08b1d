// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"murmur/internal/cache"
	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/identity"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/repository"
	"murmur/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// consumedTicketEntry caches a WebSocket ticket that was already consumed
// from Redis. Fiber's upgrade handshake runs the middleware chain more than
// once, so a GETDEL'd ticket must stay valid in-process for a short grace
// window.
// wsTicketGrace is how long a redeemed ticket stays usable in-process while
// the websocket upgrade handshake re-runs the middleware chain.
const wsTicketGrace = time.Minute

type consumedTicketEntry struct {
	ident     identity.Identity
	consumeAt time.Time
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	verifier       identity.Verifier
	postRepo       repository.PostRepository
	quarantineRepo repository.QuarantineRepository
	reportRepo     repository.ReportRepository
	notifier       *notifications.Notifier
	feedHub        *notifications.FeedHub

	submissionService *service.SubmissionService

	adminSubjects map[string]struct{}

	consumedTicketsMu sync.Mutex
	consumedTickets   map[string]consumedTicketEntry
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	gateway, err := buildGateway(cfg)
	if err != nil {
		return nil, err
	}

	return NewServerWithDeps(cfg, db, redisClient, gateway)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this to inject an in-memory database, miniredis, and a stub
// classifier gateway.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, gateway classifier.Gateway) (*Server, error) {
	postRepo := repository.NewPostRepository(db)
	quarantineRepo := repository.NewQuarantineRepository(db)
	reportRepo := repository.NewReportRepository(db)

	prom := middleware.InitMetrics("murmur-api")

	server := &Server{
		config:          cfg,
		db:              db,
		redis:           redisClient,
		promMiddleware:  prom,
		verifier: identity.NewJWTVerifier(cfg.JWTSecret, redisClient).
			RequireIssuer(cfg.JWTIssuer).
			RequireAudience(cfg.JWTAudience),
		postRepo:        postRepo,
		quarantineRepo:  quarantineRepo,
		reportRepo:      reportRepo,
		adminSubjects:   parseAdminSubjects(cfg.AdminSubjects),
		consumedTickets: make(map[string]consumedTicketEntry),
	}

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		server.feedHub = notifications.NewFeedHub()
	}

	server.submissionService = service.NewSubmissionService(
		postRepo, quarantineRepo, reportRepo,
		gateway, server.notifier, cfg.FailOpen(),
	)

	return server, nil
}

// buildGateway constructs the classifier gateway from configuration. With
// moderation disabled (or no API key outside production) every submission is
// permitted.
func buildGateway(cfg *config.Config) (classifier.Gateway, error) {
	if !cfg.ModerationEnabled {
		log.Println("Moderation disabled: all submissions will be published")
		return classifier.PermitAll{}, nil
	}
	if cfg.GeminiAPIKey == "" {
		log.Println("No classifier API key configured: all submissions will be published")
		return classifier.PermitAll{}, nil
	}

	thresholds, err := config.LoadSafetyThresholds(cfg.ModerationConfigPath)
	if err != nil {
		return nil, err
	}
	return classifier.NewGeminiGateway(
		context.Background(),
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		time.Duration(cfg.ModerationTimeoutSec)*time.Second,
		thresholds,
	)
}

func parseAdminSubjects(raw string) map[string]struct{} {
	subjects := make(map[string]struct{})
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			subjects[s] = struct{}{}
		}
	}
	return subjects
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and Subject ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
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
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Murmur Backend Metrics Dashboard",
	}))

	// Public read routes
	api.Get("/feed", s.GetFeed)
	api.Get("/submissions/:id/comments", s.GetComments)
	api.Get("/submissions/:id", s.GetSubmission)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	protected.Post("/submissions", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_submission"), s.CreateSubmission)
	protected.Post("/submissions/:id/report", middleware.RateLimit(
		s.redis, 5, time.Minute, "report_post"), s.ReportSubmission)
	protected.Delete("/submissions/:id", s.DeleteSubmission)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// Websocket endpoint - protected by AuthRequired (ticket flow)
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/", s.WebsocketHandler())

	// Admin review routes
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/quarantine", s.GetQuarantine)
	admin.Get("/reports", s.GetReports)
	admin.Post("/reports/:id/resolve", s.ResolveReport)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis backs live updates and revocation; degraded but serving.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// AdminRequired returns middleware that rejects non-admin subjects with 403.
// Must be placed after AuthRequired so that subjectID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		subjectID, _ := c.Locals("subjectID").(string)
		if _, ok := s.adminSubjects[subjectID]; !ok {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// AuthRequired returns the authentication middleware. It accepts either a
// short-lived single-use WebSocket ticket or a Bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use)
		ticket := c.Query("ticket")
		if ticket != "" {
			if ident, ok := s.redeemWSTicket(c, ticket); ok {
				s.storeIdentity(c, ident)
				c.Locals("wsTicket", ticket)
				return c.Next()
			}
			// If ticket was provided but invalid/expired, we fail if it's a WS path
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		// 2. Fall back to Bearer token
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		ident, err := s.verifier.Verify(c.Context(), tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		s.storeIdentity(c, ident)
		return c.Next()
	}
}

// storeIdentity stashes the verified identity in Fiber locals and the request
// context so logging and downstream services can pick it up.
func (s *Server) storeIdentity(c *fiber.Ctx, ident identity.Identity) {
	c.Locals("subjectID", ident.SubjectID)
	c.Locals("displayLabel", ident.DisplayLabel)
	ctx := context.WithValue(c.UserContext(), middleware.SubjectIDKey, ident.SubjectID)
	c.SetUserContext(ctx)
}

// redeemWSTicket resolves a ticket to an identity. The ticket is consumed
// from Redis atomically with GETDEL; the result is cached in-process because
// Fiber's upgrade handshake re-runs the middleware chain.
func (s *Server) redeemWSTicket(c *fiber.Ctx, ticket string) (identity.Identity, bool) {
	s.consumedTicketsMu.Lock()
	if entry, ok := s.consumedTickets[ticket]; ok {
		s.consumedTicketsMu.Unlock()
		if time.Since(entry.consumeAt) < wsTicketGrace {
			return entry.ident, true
		}
		return identity.Identity{}, false
	}
	s.consumedTicketsMu.Unlock()

	if s.redis == nil {
		return identity.Identity{}, false
	}

	key := fmt.Sprintf("ws_ticket:%s", ticket)
	raw, err := s.redis.GetDel(c.Context(), key).Result()
	if err != nil {
		return identity.Identity{}, false
	}

	var ident identity.Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil || ident.SubjectID == "" {
		return identity.Identity{}, false
	}

	now := time.Now()
	s.consumedTicketsMu.Lock()
	// Entries past the grace window are dead weight: the upgrade either
	// finished long ago or never will. Sweep them while holding the lock.
	for stale, entry := range s.consumedTickets {
		if now.Sub(entry.consumeAt) >= wsTicketGrace {
			delete(s.consumedTickets, stale)
		}
	}
	s.consumedTickets[ticket] = consumedTicketEntry{ident: ident, consumeAt: now}
	s.consumedTicketsMu.Unlock()

	return ident, true
}

// consumeWSTicket removes a redeemed ticket from the in-process cache once
// the websocket upgrade has completed.
func (s *Server) consumeWSTicket(_ context.Context, ticket any) {
	t, ok := ticket.(string)
	if !ok || t == "" {
		return
	}
	s.consumedTicketsMu.Lock()
	delete(s.consumedTickets, t)
	s.consumedTicketsMu.Unlock()
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Murmur API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Wire the feed hub to the Redis subscriber if available
	if s.notifier != nil && s.feedHub != nil {
		go func() {
			if err := s.feedHub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				log.Printf("failed to start %s wiring: %v", s.feedHub.Name(), err)
			}
		}()
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if s.feedHub != nil {
		if err := s.feedHub.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", s.feedHub.Name(), err)
		}
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
