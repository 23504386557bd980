// Package redis implements the storage ports on Redis. History series are
// sorted sets scored by timestamp; leaderboards are JSON strings.
package redis

import (
	"context"
	"fmt"
	"net/url"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps goredis.Client for dependency injection.
type Client struct {
	*goredis.Client
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb}, nil
}

// keys builds namespaced keys. Components are escaped so that ':' inside
// a tag or symbol cannot collide with the separator.
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = "lbk"
	}
	return keys{prefix: prefix}
}

func (k keys) history(tag, symbol string) string {
	return k.prefix + ":history:" + url.QueryEscape(tag) + ":" + url.QueryEscape(symbol)
}

func (k keys) leaderboard(tag string) string {
	return k.prefix + ":leaderboard:" + url.QueryEscape(tag)
}
