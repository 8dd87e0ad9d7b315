package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slideScript runs the whole prune / check / maybe-append cycle server-side,
// keeping it atomic across instances. Each key is a sorted set of attempt
// timestamps scored by unix seconds.
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, count, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window * 1000)
return {1, count + 1, now}
`)

// Redis is a Redis-backed implementation of Store.
// Suitable for deployments running more than one instance.
type Redis struct {
	client *redis.Client
	prefix string
	window time.Duration
	max    int
}

// RedisConfig holds configuration for the Redis connection.
// Populate from environment variables in your application code.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
}

// NewRedis creates a Redis store with the given configuration.
func NewRedis(config RedisConfig, max int, window time.Duration) (*Redis, error) {
	if config.Prefix == "" {
		config.Prefix = "ratelimit:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: config.Prefix,
		window: window,
		max:    max,
	}, nil
}

func (r *Redis) CheckAndRecord(ctx context.Context, key string, now time.Time) (Decision, error) {
	// Members only need to be distinct; the score carries the timestamp.
	member := uuid.NewString()
	res, err := slideScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		now.Unix(),
		int64(r.window/time.Second),
		r.max,
		member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis check failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis check returned %d values, want 3", len(res))
	}

	allowed := res[0] == 1
	count := int(res[1])

	if !allowed {
		oldest := res[2]
		retry := time.Duration(oldest-(now.Unix()-int64(r.window/time.Second))) * time.Second
		return Decision{Allowed: false, Limit: r.max, Remaining: 0, RetryAfter: retry}, nil
	}

	return Decision{Allowed: true, Limit: r.max, Remaining: max(0, r.max-count)}, nil
}

// Close releases resources held by the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
