package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Omezi42/anokoro-tcg-backend/internal/cache"
	"github.com/Omezi42/anokoro-tcg-backend/internal/config"
	"github.com/Omezi42/anokoro-tcg-backend/internal/store"
)

// GetRanking serves the rating leaderboard over plain HTTP, mirroring the
// get_ranking frame. Read-only and unauthenticated.
func GetRanking(st *store.Store, rankings *cache.Rankings, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if rows := rankings.Get(ctx); rows != nil {
			c.JSON(http.StatusOK, gin.H{"ranking": rows})
			return
		}

		limit := cfg.RankingLimit
		if limit < 10 {
			limit = 10
		} else if limit > 100 {
			limit = 100
		}
		rows, err := st.TopByRating(ctx, limit)
		if err != nil {
			log.Printf("[RANKING] query failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure"})
			return
		}
		rankings.Set(ctx, rows)
		c.JSON(http.StatusOK, gin.H{"ranking": rows})
	}
}
