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

	"github.com/Omezi42/anokoro-tcg-backend/internal/api"
	"github.com/Omezi42/anokoro-tcg-backend/internal/cache"
	"github.com/Omezi42/anokoro-tcg-backend/internal/config"
	"github.com/Omezi42/anokoro-tcg-backend/internal/database"
	"github.com/Omezi42/anokoro-tcg-backend/internal/hub"
	"github.com/Omezi42/anokoro-tcg-backend/internal/middleware"
	"github.com/Omezi42/anokoro-tcg-backend/internal/migrations"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Schema bootstrap is idempotent and always runs
	st := store.New(db)
	if err := st.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap schema: %v", err)
	}

	// Initialize Redis-backed ranking cache (optional)
	var rankings *cache.Rankings
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(cfg.RedisURL)
		if err != nil {
			log.Printf("[CACHE] Redis unavailable, ranking cache disabled: %v", err)
			rankings = cache.NewRankings(nil, 0)
		} else {
			defer rdb.Close()
			rankings = cache.NewRankings(rdb, time.Duration(cfg.RankingCacheTTLSeconds)*time.Second)
			log.Printf("[CACHE] Redis ranking cache enabled (ttl=%ds)", cfg.RankingCacheTTLSeconds)
		}
	} else {
		rankings = cache.NewRankings(nil, 0)
		log.Printf("[CACHE] REDIS_URL not set, ranking cache disabled")
	}

	// Start the session hub
	h := hub.New(st, rankings, cfg)
	go h.Run(ctx)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	api.SetupRoutes(router, h, st, rankings, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "3000"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting anokoro TCG hub on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
