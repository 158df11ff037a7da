package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/astroveda/booking-wizard-backend/internal/config"
	"github.com/astroveda/booking-wizard-backend/internal/handlers"
	"github.com/astroveda/booking-wizard-backend/internal/middleware"
	"github.com/astroveda/booking-wizard-backend/internal/services"
	"github.com/astroveda/booking-wizard-backend/pkg/jwt"
	"github.com/astroveda/booking-wizard-backend/pkg/upstream"
	"github.com/astroveda/booking-wizard-backend/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Booking Wizard Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.SessionToken)
	phoneValidator := validator.NewPhoneValidator()
	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	})
	sessionService := services.NewSessionService(upstreamClient, logger, cfg.Session.IdleTTL)
	shortcutService := services.NewShortcutService(upstreamClient, phoneValidator, logger, cfg.OTP.ResendCooldown, cfg.OTP.CodeLength)
	submissionService := services.NewSubmissionService(upstreamClient, logger)

	// Start background session cleanup
	sweeper := services.NewSessionSweeper(sessionService, logger, cfg.Session.SweepInterval)
	sweeper.Start()
	logger.Info("Services initialized")

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService, submissionService, shortcutService, jwtService, logger)
	shortcutHandler := handlers.NewShortcutHandler(sessionService, shortcutService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(sessionService))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Opening a session is the only public wizard route
		v1.POST("/sessions", sessionHandler.CreateSession)

		// Session routes (require a session token)
		session := v1.Group("/sessions")
		session.Use(middleware.SessionMiddleware(jwtService))
		{
			session.GET("/state", sessionHandler.GetState)
			session.POST("/events", sessionHandler.ApplyEvent)
			session.POST("/submit", sessionHandler.Submit)
			session.POST("/book-another", sessionHandler.BookAnother)
		}

		// Identity shortcut routes (require a session token)
		shortcut := v1.Group("/shortcut")
		shortcut.Use(middleware.SessionMiddleware(jwtService))
		{
			shortcut.POST("/send-otp", shortcutHandler.SendOTP)
			shortcut.POST("/verify-otp", shortcutHandler.VerifyOTP)
			shortcut.POST("/resend-otp", shortcutHandler.ResendOTP)
			shortcut.POST("/abandon", shortcutHandler.Abandon)
			shortcut.GET("/status", shortcutHandler.Status)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop background cleanup
	sweeper.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if sessionID, exists := c.Get(middleware.SessionIDKey); exists {
			fields["session_id"] = sessionID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "healthy",
			"version":       version,
			"live_sessions": sessions.Count(),
			"timestamp":     time.Now().Unix(),
		})
	}
}
