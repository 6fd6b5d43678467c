// Package redis implements the Redis cache used for hot read models.
// Nothing here is a source of truth: every key can be dropped and rebuilt
// from PostgreSQL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string // empty disables AUTH
	DB       int

	// KeyPrefix namespaces every key, so several services can share one
	// database.
	KeyPrefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the configuration of a local development Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "rewards:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrMiss        = errors.New("cache: miss")
	ErrUnavailable = errors.New("cache: redis unavailable")
	ErrEncoding    = errors.New("cache: cannot encode or decode value")
	ErrEmptyKey    = errors.New("cache: empty key")
	ErrNilValue    = errors.New("cache: nil value")
	ErrNegativeTTL = errors.New("cache: negative ttl")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// TTLSummaryCache is the default lifetime of a cached progress summary.
const TTLSummaryCache = 5 * time.Minute

// SummaryKey is the key of a user's progress summary, before the prefix.
func SummaryKey(userID string) string {
	return "summary:" + userID
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache stores JSON values under prefixed keys.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache connects to Redis and pings it once within DialTimeout.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Cache{client: client, prefix: cfg.KeyPrefix}, nil
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying client for Pub/Sub.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Ping reports whether Redis answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(k string) (string, error) {
	if k == "" {
		return "", ErrEmptyKey
	}
	return c.prefix + k, nil
}

// Set encodes value as JSON and stores it. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	switch {
	case value == nil:
		return ErrNilValue
	case ttl < 0:
		return ErrNegativeTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return c.client.Set(ctx, k, data, ttl).Err()
}

// Get decodes the stored value into dest, or returns ErrMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}

	data, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		k, err := c.key(key)
		if err != nil {
			return err
		}
		full = append(full, k)
	}
	return c.client.Del(ctx, full...).Err()
}

// TTL returns the remaining lifetime of a key: -2 if it does not exist, -1
// if it never expires.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	k, err := c.key(key)
	if err != nil {
		return 0, err
	}
	return c.client.TTL(ctx, k).Result()
}
