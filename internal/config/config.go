package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis (optional; the ranking cache is skipped when empty)
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Ranking
	RankingLimit           int
	RankingCacheTTLSeconds int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/anokoro?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Server
		Port:        getEnv("PORT", "3000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Ranking
		RankingLimit:           getEnvInt("RANKING_LIMIT", 100),
		RankingCacheTTLSeconds: getEnvInt("RANKING_CACHE_TTL_SECONDS", 15),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
