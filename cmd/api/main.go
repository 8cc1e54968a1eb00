package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/handlers"
	"github.com/securecrop/backend/internal/middleware"
	"github.com/securecrop/backend/internal/models"
	"github.com/securecrop/backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize services
	emailService := services.NewEmailService(cfg)
	userService := services.NewUserService(db)
	tokenStore := services.NewTokenStore(db, cfg)
	credentialService := services.NewCredentialService(db, redisClient, cfg)
	resetLimiter := services.NewResetLimiter(redisClient, cfg)
	resetService := services.NewResetService(db, tokenStore, userService, credentialService, resetLimiter, emailService, cfg)

	// Background sweep: hard-delete tokens past the retention window. Expiry
	// itself is enforced lazily on every read, this only reclaims rows.
	go func() {
		for {
			deleted, err := resetService.CleanupExpiredTokens()
			if err != nil {
				log.Printf("Token cleanup error: %v", err)
			} else if deleted > 0 {
				log.Printf("Token cleanup: removed %d stale reset tokens", deleted)
			}
			time.Sleep(cfg.TokenCleanupInterval)
		}
	}()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(resetService)

	// Health check outside API group (no /api/v1 prefix)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Setup routes
	api := router.Group("/api/v1")
	{
		// Catch-all OPTIONS handler for CORS preflight requests
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		auth := api.Group("/auth")
		{
			auth.POST("/password/forgot", authHandler.ForgotPassword)
			auth.GET("/password/verify", authHandler.VerifyResetToken)
			auth.POST("/password/reset", authHandler.ResetPassword)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
