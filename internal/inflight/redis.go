package inflight

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

const keyPrefix = "csvconverter:inflight:"

// releaseScript deletes the claim only while it still carries our token, so
// a claim that expired and was taken by another run is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisRegistry shares claims between service instances. Claims expire
// after the configured TTL so a crashed run cannot hold a key forever.
type RedisRegistry struct {
	client redisClient
	ttl    time.Duration
	closer func() error
}

// NewRedisRegistry connects to redis and verifies the connection.
func NewRedisRegistry(cfg config.InFlightConfig) (*RedisRegistry, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	r := newRedisRegistry(client, cfg.TTL())
	r.closer = client.Close
	return r, nil
}

func newRedisRegistry(client redisClient, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func buildRedisOptions(cfg config.InFlightConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func (r *RedisRegistry) Claim(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrClaimed)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the run's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.client.Eval(ctx, releaseScript, []string{keyPrefix + key}, token).Err(); err != nil {
				logger.Log.Warn().Err(err).Str("key", key).Msg("failed to release in-flight claim")
			}
		})
	}, nil
}

// Close closes the redis connection.
func (r *RedisRegistry) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

var _ Registry = (*RedisRegistry)(nil)
