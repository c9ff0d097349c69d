package lite3

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis used by RedisTopology
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Close() error
}

// RedisClientOptions locate the registry server and bound the initial
// connection attempts
type RedisClientOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Pings after the first failed one
	MaxRetries int
	// Total time spent pinging before giving up
	RetryBackOffLimit time.Duration
	Logger            *slog.Logger
}

func (o *RedisClientOptions) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// NewRedisClient connects to redis, pinging until the server answers or
// the retry budget is spent
func NewRedisClient(ctx context.Context, opts *RedisClientOptions) (RedisClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := backoff.NewExponentialBackOff()
	if opts.RetryBackOffLimit > 0 {
		policy.MaxElapsedTime = opts.RetryBackOffLimit
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.addr(),
		Password: opts.Password,
		DB:       opts.DB,
	})

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return client.Ping(ctx).Err()
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(opts.MaxRetries)), ctx),
		func(err error, wait time.Duration) {
			logger.Warn("redis ping failed", "addr", opts.addr(), "attempt", attempts, "retry_in", wait, "error", err)
		})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis server after %d attempts: %w", attempts, err)
	}

	return client, nil
}
