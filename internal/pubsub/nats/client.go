// Package nats publishes payloads over a NATS connection.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const flushTimeout = 5 * time.Second

// ErrNotConnected is returned while the connection is not usable.
var ErrNotConnected = errors.New("nats: not connected")

// Config holds connection settings.
type Config struct {
	URL  string
	Name string
}

// Client is a pubsub.Publisher backed by NATS core publish.
type Client struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// Connect dials the server. The connection retries and reconnects forever.
func Connect(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	name := cfg.Name
	if name == "" {
		name = "leaderboard-kinetics"
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("connected to NATS")
	return &Client{nc: nc, log: log}, nil
}

// Publish sends data and flushes so that delivery errors surface to the caller.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Ready() {
		return ErrNotConnected
	}
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}

	var err error
	if _, ok := ctx.Deadline(); ok {
		err = c.nc.FlushWithContext(ctx)
	} else {
		err = c.nc.FlushTimeout(flushTimeout)
	}
	if err != nil {
		return fmt.Errorf("nats flush %s: %w", subject, err)
	}
	return nil
}

// Health returns ErrNotConnected unless the connection is up.
func (c *Client) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Ready() {
		return fmt.Errorf("%w: status %s", ErrNotConnected, c.Status())
	}
	return nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

// Close drains pending messages and closes the connection. Safe to call twice.
func (c *Client) Close() error {
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Error().Err(err).Msg("failed to drain NATS connection")
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Info().Msg("NATS connection closed")
	return nil
}
