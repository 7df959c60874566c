package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/R-Tharanka/sos-live-tracker-map/config"
	"github.com/R-Tharanka/sos-live-tracker-map/handlers"
	"github.com/R-Tharanka/sos-live-tracker-map/middleware"
	"github.com/R-Tharanka/sos-live-tracker-map/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()
	slog.Info("Access policy", "policy", cfg.AccessPolicy)

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	// Initialize services
	services.InitServices(db, cfg.DatabaseName)

	// Create indexes for login sessions
	if err := services.CreateAuthSessionIndexes(ctx); err != nil {
		slog.Error("Failed to create session indexes", "error", err)
		// Continue anyway - the app can still work without indexes
	}

	// Initialize Redis-backed viewer credential cache
	creds, err := services.NewRedisCredentials(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer creds.Close()

	// Document store, validator and live-update hub
	sessions := services.NewMongoSessions(services.GetDatabase())
	accessValidator := services.NewAccessValidator(sessions, cfg.AccessPolicy)
	services.InitSessionHub(sessions)

	handlers.InitHandlers(handlers.Deps{
		Store:       sessions,
		Credentials: creds,
		Validator:   accessValidator,
		Config:      cfg,
	})

	// Start login session cleanup
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	services.StartSessionCleanup(cleanupCtx)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Device-Key",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	// Identity provider
	auth := app.Group("/auth")
	auth.Post("/register", handlers.Register)
	auth.Post("/login", handlers.Login)
	auth.Post("/anonymous", handlers.LoginAnonymous)
	auth.Post("/logout", handlers.Logout)
	auth.Get("/me", handlers.GetCurrentUser)
	auth.Get("/check", handlers.CheckSession)
	auth.Post("/reset-password", handlers.RequestPasswordReset)
	auth.Post("/password", middleware.RequireAuth, handlers.ChangePassword)

	// Session access gate - what the emergency link resolves to
	app.Get("/session/:sessionID", handlers.HandleSessionAccess)
	app.Get("/access/:sessionID", handlers.HandleSessionAccess)

	// Map surface
	app.Get("/map/:sessionID", middleware.OptionalAuth, handlers.HandleMapSession)

	// Anonymous polling fetch and credential reset
	api := app.Group("/api")
	api.Get("/sessions/:sessionID", handlers.HandlePollSession)
	api.Delete("/credentials/:sessionID", handlers.HandleClearCredential)

	// Live push channel (signed-in viewers)
	api.Get("/sessions/:sessionID/ws",
		middleware.RequireAuth,
		handlers.SessionSocketUpgrade,
		websocket.New(handlers.HandleSessionSocket))

	// Mobile-source ingest
	ingest := api.Group("/ingest", middleware.RequireDeviceKey(cfg.DeviceAPIKey))
	ingest.Post("/sessions", handlers.CreateSession)
	ingest.Put("/sessions/:sessionID/location", handlers.UpdateLocation)
	ingest.Post("/sessions/:sessionID/resolve", handlers.ResolveSession)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "sos-live-tracker",
		})
	})

	// Catch-all
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	})

	// Start server
	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
