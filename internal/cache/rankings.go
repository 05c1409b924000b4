package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Omezi42/anokoro-tcg-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const rankingKey = "ranking:top"

// Rankings is a small read-through cache for the rating leaderboard. Redis is
// optional: with a nil client every call is a miss and the hub works off the
// database alone.
type Rankings struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRankings(rdb *redis.Client, ttl time.Duration) *Rankings {
	return &Rankings{rdb: rdb, ttl: ttl}
}

// Get returns the cached leaderboard, or nil on a miss.
func (c *Rankings) Get(ctx context.Context) []models.RankedUser {
	if c == nil || c.rdb == nil {
		return nil
	}
	val, err := c.rdb.Get(ctx, rankingKey).Result()
	if err != nil {
		return nil
	}
	var rows []models.RankedUser
	if err := json.Unmarshal([]byte(val), &rows); err != nil {
		log.Printf("[CACHE] invalid ranking payload, dropping: %v", err)
		c.rdb.Del(ctx, rankingKey)
		return nil
	}
	return rows
}

// Set stores the leaderboard with the configured TTL. Best effort.
func (c *Rankings) Set(ctx context.Context, rows []models.RankedUser) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, rankingKey, data, c.ttl).Err(); err != nil {
		log.Printf("[CACHE] failed to store ranking: %v", err)
	}
}

// Invalidate drops the cached leaderboard. Called after every rating write.
func (c *Rankings) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, rankingKey).Err(); err != nil {
		log.Printf("[CACHE] failed to invalidate ranking: %v", err)
	}
}

// Connect establishes a connection to Redis
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
