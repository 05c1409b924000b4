package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.0.0"

// Liveness returns the plain liveness string on GET /
func Liveness(c *gin.Context) {
	c.String(http.StatusOK, "anokoro-tcg-backend is running")
}

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "anokoro-tcg-backend",
		"version": version,
		"uptime":  time.Since(startTime).String(),
	})
}
