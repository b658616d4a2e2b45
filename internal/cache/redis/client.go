// Package redis backs the bot's shared state with go-redis/v9: the exchange
// and API rate limiters, the cycle lock and the signal bus.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces every key the bot writes.
const defaultKeyPrefix = "crudebot"

// Config mirrors the connection part of the [redis] section.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLS        bool
	KeyPrefix  string // defaults to "crudebot"
}

// Client is a connected Redis handle plus the bot's key namespace.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Dial connects and pings Redis.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &Client{rdb: redis.NewClient(opts), prefix: cfg.KeyPrefix}
	if c.prefix == "" {
		c.prefix = defaultKeyPrefix
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// key joins parts under the client's namespace: key("lock", "cycle") is
// "crudebot:lock:cycle".
func (c *Client) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Ping is the "redis" dependency check of the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.rdb.Options().Addr, err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }
