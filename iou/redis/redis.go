package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNilClient is returned when a nil Client is used.
	ErrNilClient = errors.New("redis client is nil")
	// ErrClientClosed is returned by GetClient after Close.
	ErrClientClosed = errors.New("redis client is closed")
	// ErrNoAddress is returned when Config lists no address.
	ErrNoAddress = errors.New("redis address is required")
)

// Config configures a Client. Fields carry env tags for
// iou.SetConfigFromEnvVars.
type Config struct {
	Address      string        `env:"REDIS_ADDRESS"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB"`
	MasterName   string        `env:"REDIS_MASTER_NAME"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"`
	Logger       log.Logger    `env:"-"`
}

// Addresses splits Address on commas. Several addresses select a cluster
// client, or a sentinel client when MasterName is set.
func (c Config) Addresses() []string {
	parts := strings.Split(c.Address, ",")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

// Client owns a go-redis universal client.
type Client struct {
	mu     sync.RWMutex
	client redis.UniversalClient
	logger log.Logger
	closed bool
}

// New connects and pings.
func New(ctx context.Context, cfg Config) (*Client, error) {
	addresses := cfg.Addresses()
	if len(addresses) == 0 {
		return nil, ErrNoAddress
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MasterName:   cfg.MasterName,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", strings.Join(addresses, ","), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	logger.Log(ctx, log.LevelInfo, "connected to redis", log.Int("addresses", len(addresses)))

	return &Client{client: client, logger: logger}, nil
}

// NewFromUniversal wraps an existing go-redis client.
func NewFromUniversal(client redis.UniversalClient, logger log.Logger) (*Client, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{client: client, logger: logger}, nil
}

// GetClient returns the underlying client.
//
//nolint:ireturn
func (c *Client) GetClient(_ context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	return c.client, nil
}

// Logger returns the client logger.
//
//nolint:ireturn
func (c *Client) Logger() log.Logger {
	return c.logger
}

// Close closes the underlying client. Further calls are no-ops.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	return c.client.Close()
}
