// Package server contains HTTP and WebSocket handlers for the API.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"beacon/internal/auth"
	"beacon/internal/blob"
	"beacon/internal/cache"
	"beacon/internal/chat"
	"beacon/internal/config"
	"beacon/internal/content"
	"beacon/internal/docstore"
	"beacon/internal/middleware"
	"beacon/internal/notifications"
	"beacon/internal/profile"
	"beacon/internal/propagate"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	store          docstore.Store
	db             *gorm.DB
	redis          *redis.Client
	blobs          blob.Store
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus

	authService *auth.Service
	directory   *profile.Directory
	propagator  *propagate.Propagator
	reconciler  *propagate.Reconciler
	contents    *content.Service
	chats       *chat.Service
	hub         *notifications.Hub
	notifier    *notifications.Notifier
}

// NewServer creates a server, connecting to the backends the config names.
func NewServer(cfg *config.Config) (*Server, error) {
	var store docstore.Store
	var db *gorm.DB
	switch cfg.StoreDriver {
	case "postgres":
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := docstore.Migrate(db); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		store = docstore.NewGormStore(db)
	default:
		store = docstore.NewMemoryStore()
	}

	var blobs blob.Store
	switch cfg.BlobDriver {
	case "minio":
		var err error
		blobs, err = blob.NewMinioStore(context.Background(), blob.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store connection failed: %w", err)
		}
	default:
		blobs = blob.NewMemoryStore()
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	server := newServerWithBackends(cfg, store, blobs, redisClient)
	server.db = db
	return server, nil
}

// NewServerWithDeps creates a Server over already-initialized backends.
// Used by tests and by tooling that establishes its own connections.
func NewServerWithDeps(cfg *config.Config, store docstore.Store, blobs blob.Store, redisClient *redis.Client) *Server {
	return newServerWithBackends(cfg, store, blobs, redisClient)
}

func newServerWithBackends(cfg *config.Config, store docstore.Store, blobs blob.Store, redisClient *redis.Client) *Server {
	middleware.InitMiddleware(cfg)

	server := &Server{
		config:         cfg,
		store:          store,
		redis:          redisClient,
		blobs:          blobs,
		promMiddleware: middleware.InitMetrics("beacon-api"),
	}

	server.hub = notifications.NewHub()
	server.notifier = notifications.NewNotifier(redisClient, server.hub)

	server.authService = auth.NewService(store, cfg.JWTSecret)
	server.propagator = propagate.New(store)
	server.reconciler = propagate.NewReconciler(store)
	server.directory = profile.NewDirectory(store, blobs, server.propagator)
	server.contents = content.NewService(store, blobs, server.directory, server.notifier)
	server.chats = chat.NewService(store, server.notifier)

	server.notifier.SetFeedHook(func() {
		server.contents.PushSnapshot(context.Background())
	})

	return server
}

// Store exposes the document store, for tooling built on a Server.
func (s *Server) Store() docstore.Store { return s.store }

// Reconciler exposes the sweep, for the reconcile command and tests.
func (s *Server) Reconciler() *propagate.Reconciler { return s.reconciler }

// Notifier exposes the feed notifier so main can start its subscriber.
func (s *Server) Notifier() *notifications.Notifier { return s.notifier }

// Directory exposes the profile directory, for tooling built on a Server.
func (s *Server) Directory() *profile.Directory { return s.directory }

// Contents exposes the post service, for tooling built on a Server.
func (s *Server) Contents() *content.Service { return s.contents }

// Chats exposes the chat service, for tooling built on a Server.
func (s *Server) Chats() *chat.Service { return s.chats }

// Shutdown releases backend connections held by the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return fmt.Errorf("redis shutdown failed: %w", err)
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("database handle retrieval failed: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("database shutdown failed: %w", err)
		}
	}
	return nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS must run before middlewares that can short-circuit, so browser
	// clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting per IP.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
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

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Beacon Backend Metrics Dashboard",
	}))

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	authGroup.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Public profile routes
	api.Get("/profiles/check-username", s.CheckUsername)
	api.Get("/profiles/search", middleware.RateLimit(
		s.redis, 10, time.Minute, "profile_search"), s.SearchProfiles)

	// Public post routes
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.GetPosts)
	publicPosts.Get("/:id/comments", s.GetComments)
	publicPosts.Get("/:id", s.GetPost)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	// Profile routes
	profiles := protected.Group("/profiles")
	profiles.Get("/me", s.GetMyProfile)
	profiles.Put("/me", s.UpdateMyProfile)
	profiles.Post("/me/images", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "profile_image"), s.UploadProfileImage)
	profiles.Get("/:id/posts", s.GetUserPosts)
	profiles.Get("/:id", s.GetProfile)

	// Friend routes
	friends := protected.Group("/friends")
	friends.Post("/:userId", s.AddFriend)
	friends.Delete("/:userId", s.RemoveFriend)

	// Protected post routes
	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(
		s.redis, 5, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Post("/:id/like", s.ToggleLike)
	posts.Post("/:id/comments", middleware.RateLimit(
		s.redis, 15, time.Minute, "create_comment"), s.CreateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	posts.Delete("/:id", s.DeletePost)

	// Chat routes
	chats := protected.Group("/chats")
	chats.Post("/", s.CreateChat)
	chats.Get("/", s.GetChats)
	chats.Get("/:id/messages", s.GetMessages)
	chats.Post("/:id/messages", middleware.RateLimit(
		s.redis, 30, time.Minute, "send_message"), s.SendMessage)
	chats.Post("/:id/messages/:messageId/read", s.MarkMessageRead)
	chats.Get("/:id", s.GetChat)

	// Admin routes
	protected.Post("/admin/reconcile", s.RunReconcile)

	// WebSocket endpoints
	ws := api.Group("/ws", middleware.WebSocketAuthRequired)
	ws.Get("/feed", s.FeedSocketHandler())
	ws.Get("/chats/:id", s.ChatSocketHandler())
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			storeStatus = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			storeStatus = "unhealthy"
		}
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if storeStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// App returns the configured Fiber application, building it on first use.
func (s *Server) App() *fiber.App {
	if s.app == nil {
		s.app = fiber.New(fiber.Config{
			BodyLimit: 16 * 1024 * 1024,
		})
		s.SetupMiddleware(s.app)
		s.SetupRoutes(s.app)
	}
	return s.app
}
