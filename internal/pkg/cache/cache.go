// Package cache wraps a shared Redis connection used for API key lookups,
// job status reads and rate limiting.
package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creatorengine/creatorengine/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache connects to the Redis instance named by CACHE_HOST and
// CACHE_PORT. CACHE_PASSWORD and CACHE_DB are optional and default to an
// unauthenticated connection on DB 0. A failed ping is logged but not fatal,
// callers see the error on first use instead.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	db, _ := strconv.Atoi(env.GetEnv("CACHE_DB", "0"))

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Warning: could not connect to cache at %s:%s: %v", host, port, err)
	} else {
		log.Printf("Connected to cache at %s:%s", host, port)
	}
}

// GetClient returns the shared Redis client, connecting lazily if needed.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value under key with the given expiration.
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves the string value stored under key.
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// GetInt retrieves the value stored under key as an integer.
func GetInt(key string) (int, error) {
	return GetClient().Get(ctx, key).Int()
}

// Delete removes key from the cache.
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}
