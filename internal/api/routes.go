package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Omezi42/anokoro-tcg-backend/internal/api/handlers"
	"github.com/Omezi42/anokoro-tcg-backend/internal/cache"
	"github.com/Omezi42/anokoro-tcg-backend/internal/config"
	"github.com/Omezi42/anokoro-tcg-backend/internal/hub"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, h *hub.Hub, st *store.Store, rankings *cache.Rankings, cfg *config.Config) {
	// Liveness probe
	router.GET("/", handlers.Liveness)

	// WebSocket entry point for the session hub
	router.GET("/ws", hub.HandleWebSocket(h))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/ranking", handlers.GetRanking(st, rankings, cfg))
	}
}
