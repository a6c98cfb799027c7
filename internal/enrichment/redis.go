package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClientInterface defines the Redis operations used by RedisCache
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisCache is a Cache shared between processes through Redis. Keys are
// temp:<lat>:<lon> with the shortest exact float formatting.
type RedisCache struct {
	client RedisClientInterface
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client (useful for testing).
func NewRedisCacheWithClient(client RedisClientInterface) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func cacheKey(c Coordinate) string {
	return "temp:" + strconv.FormatFloat(c.Lat, 'f', -1, 64) + ":" + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// Get implements Cache. Redis errors are logged and reported as misses.
func (r *RedisCache) Get(ctx context.Context, c Coordinate) (float64, bool) {
	v, err := r.client.Get(ctx, cacheKey(c)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false
	}
	if err != nil {
		log.Printf("⚠️  Redis cache read failed for %s: %v", cacheKey(c), err)
		return 0, false
	}
	return v, true
}

// Set implements Cache. Redis errors are logged.
func (r *RedisCache) Set(ctx context.Context, c Coordinate, tempC float64, ttl time.Duration) {
	value := strconv.FormatFloat(tempC, 'f', -1, 64)
	if err := r.client.Set(ctx, cacheKey(c), value, ttl).Err(); err != nil {
		log.Printf("⚠️  Redis cache write failed for %s: %v", cacheKey(c), err)
	}
}
