package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moltbook-governance/recruiter/internal/config"
	"github.com/moltbook-governance/recruiter/internal/handlers"
	"github.com/moltbook-governance/recruiter/internal/middleware"
	"github.com/moltbook-governance/recruiter/internal/moltbook"
	"github.com/moltbook-governance/recruiter/internal/services"
	"github.com/moltbook-governance/recruiter/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Warning: failed to load config from %s: %v", configPath, err)
		log.Println("Using default configuration")
		cfg = config.DefaultConfig()
	}

	// Initialize database
	db, err := storage.NewPostgres(cfg.Database.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			migrationsPath = filepath.Join(execDir, "..", "..", "migrations")
		} else {
			migrationsPath = "./migrations"
		}
	}
	if err := db.Migrate(migrationsPath); err != nil {
		log.Printf("Warning: migrations failed: %v", err)
	}

	// Initialize collaborators and services
	platform := moltbook.NewClient(cfg.Moltbook)
	chain := services.Secp256k1Client{}
	challenges := services.NewChallengeStore(cfg.Recruiter.ChallengeTTL())
	verifier := services.NewOwnershipVerifier(chain)
	scorer := &services.Scorer{
		MinKarma:             cfg.Recruiter.MinKarmaRequirement,
		AutoApproveThreshold: cfg.Recruiter.AutoApproveThreshold,
		TargetCategories:     cfg.Recruiter.SpecializationCategories,
		MaxPerCycle:          cfg.Recruiter.MaxCandidatesPerCycle,
	}
	registrations := services.NewRegistrationService(db, challenges, verifier, scorer,
		platform, platform, cfg.Recruiter.InitialTokenGrant)
	recruiter := services.NewRecruiter(cfg.Recruiter, db, challenges, scorer,
		platform, platform, chain, registrations)

	// Start the recruitment campaign loop
	campaignCtx, stopCampaign := context.WithCancel(context.Background())
	campaignDone := make(chan struct{})
	go func() {
		defer close(campaignDone)
		recruiter.Run(campaignCtx)
	}()

	// Set up HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Initialize handlers
	registrationHandler := handlers.NewRegistrationHandler(registrations)
	statsHandler := handlers.NewStatsHandler(registrations, db, cfg.Recruiter.SpecializationCategories)
	adminHandler := handlers.NewAdminHandler(registrations, db, cfg.Admin)

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/register", registrationHandler.Register)
		api.GET("/register/:id/status", registrationHandler.Status)
		api.GET("/stats", statsHandler.Stats)
		api.GET("/specializations", statsHandler.Specializations)
		api.GET("/recruitment/metrics", statsHandler.Metrics)

		admin := api.Group("/admin")
		{
			admin.POST("/login", adminHandler.Login)
			reviews := admin.Group("/reviews")
			reviews.Use(middleware.JWTMiddleware(cfg.Admin.JWTSecret))
			{
				reviews.GET("", adminHandler.ListReviews)
				reviews.POST("/:id/decision", adminHandler.Decide)
			}
		}
	}

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stopCampaign()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Recruitment coordinator starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-campaignDone
	log.Println("Server exited")
}
