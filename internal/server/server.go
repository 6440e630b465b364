package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/events"
	"parley/internal/featureflags"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"
	"parley/internal/repository"
	"parley/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	mongo          *mongo.Database
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	outboxRepo       repository.OutboxRepository
	profileRepo      repository.ProfileRepository
	presenceStore    repository.PresenceStore

	notifier *notifications.Notifier
	chatHub  *notifications.ChatHub
	hubs     []wireableHub

	bus      events.Publisher
	relay    *events.OutboxRelay
	consumer *events.IdentityConsumer

	featureFlags *featureflags.Manager
	chatService  *service.ChatService
	userService  *service.UserService
}

// NewServer creates a new server instance, establishing all backing-store
// connections itself.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	mongoDB, err := database.ConnectMongo(cfg)
	if err != nil {
		return nil, fmt.Errorf("mongo connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, mongoDB, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the connections.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, mongoDB *mongo.Database, redisClient *redis.Client) (*Server, error) {
	server := &Server{
		config:         cfg,
		db:             db,
		mongo:          mongoDB,
		redis:          redisClient,
		promMiddleware: observability.InitMetrics("parley-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}

	server.conversationRepo = repository.NewConversationRepository(mongoDB)
	server.messageRepo = repository.NewMessageRepository(mongoDB)
	server.outboxRepo = repository.NewOutboxRepository(mongoDB)
	server.profileRepo = repository.NewProfileRepository(db)
	server.presenceStore = repository.NewPresenceStore(redisClient)

	server.notifier = notifications.NewNotifier(redisClient)
	if redisClient != nil {
		server.chatHub = notifications.NewChatHub()
		server.hubs = []wireableHub{server.chatHub}
	}

	server.chatService = service.NewChatService(
		server.conversationRepo,
		server.messageRepo,
		server.outboxRepo,
		server.notifier,
		server.featureFlags,
		cfg.KafkaChatTopic,
	)
	server.userService = service.NewUserService(
		server.profileRepo,
		server.presenceStore,
		server.outboxRepo,
		cfg.KafkaUserTopic,
	)

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		server.bus = events.NewKafkaBus(brokers)
		server.relay = events.NewOutboxRelay(server.outboxRepo, server.conversationRepo, server.bus)
		server.consumer = events.NewIdentityConsumer(brokers, cfg.KafkaUserTopic, cfg.KafkaConsumerID, server.userService)
	}

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
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
		Title: "Parley Metrics Dashboard",
	}))

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// User routes
	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Put("/me/status", s.UpdateMyStatus)
	users.Get("/search", middleware.RateLimit(
		s.redis, 10, time.Minute, "user_search"), s.SearchUsers)
	users.Get("/:id", s.GetUserProfile)

	// Presence routes
	presence := protected.Group("/presence")
	presence.Put("/", s.UpdatePresence)
	presence.Post("/batch", s.GetMultiplePresences)
	presence.Get("/:id", s.GetPresence)

	// Conversation routes
	conversations := protected.Group("/conversations")
	conversations.Post("/", s.CreateConversation)
	conversations.Get("/", s.GetConversations)
	conversations.Get("/search", s.SearchConversations)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", middleware.RateLimit(
		s.redis, 15, time.Minute, "send_message"), s.SendMessage)
	conversations.Post("/:id/participants", s.AddParticipants)
	conversations.Delete("/:id/participants", s.RemoveParticipants)
	conversations.Post("/:id/typing", s.Typing)
	conversations.Put("/:id", s.UpdateConversation)
	// Generic /:id route must be last
	conversations.Get("/:id", s.GetConversation)

	// Message routes
	messages := protected.Group("/messages")
	messages.Get("/search", middleware.RateLimit(
		s.redis, 10, time.Minute, "message_search"), s.SearchMessages)
	messages.Post("/:id/delivered", s.MarkDelivered)
	messages.Post("/:id/read", s.MarkRead)
	messages.Put("/:id", s.UpdateMessage)
	messages.Delete("/:id", s.DeleteMessage)

	// Feature flags for the authenticated user
	protected.Get("/feature-flags", s.GetFeatureFlags)

	// Websocket endpoint - protected by AuthRequired (ticket or JWT)
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/chat", s.WebSocketChatHandler())
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
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	mongoStatus := "healthy"
	if s.mongo != nil {
		if err := s.mongo.Client().Ping(ctx, nil); err != nil {
			mongoStatus = "unhealthy"
		}
	} else {
		mongoStatus = "unavailable"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis is required for presence and real-time fan-out
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || mongoStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"mongo":    mongoStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use)
		ticket := c.Query("ticket")
		if ticket != "" && s.redis != nil {
			key := fmt.Sprintf("ws_ticket:%s", ticket)
			userID, err := s.redis.Get(c.Context(), key).Result()
			if err == nil && userID != "" {
				// Delete ticket immediately (single-use)
				s.redis.Del(c.Context(), key)

				c.Locals("userID", userID)
				ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
				c.SetUserContext(ctx)
				return c.Next()
			}
			// If ticket was provided but invalid/expired, we fail if it's a WS path
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		// 2. Fall back to JWT (Bearer token)
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

		// Parse and validate token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		// Extract claims
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		// Validate issuer and audience
		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "parley-api" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "parley-client" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		// Extract user ID from subject claim
		sub, ok := claims["sub"].(string)
		if !ok || strings.TrimSpace(sub) == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), "blacklist:"+jti).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		// Store user ID in context
		c.Locals("userID", sub)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, sub)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Parley API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Wire all hubs to Redis subscriber if available
	for _, h := range s.hubs {
		h := h
		go func() {
			if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				log.Printf("failed to start %s wiring: %v", h.Name(), err)
			}
		}()
	}

	// Background event plumbing: outbox relay out, identity consumer in.
	if s.relay != nil {
		go s.relay.Run(s.shutdownCtx)
	}
	if s.consumer != nil {
		go s.consumer.Run(s.shutdownCtx)
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop wiring, relay, and consumer
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.Printf("error closing event bus: %v", err)
		}
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.mongo != nil {
		if err := s.mongo.Client().Disconnect(ctx); err != nil {
			log.Printf("error disconnecting mongo: %v", err)
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
