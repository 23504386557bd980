package pubsub

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker around a Publisher.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // failures before the breaker opens
	Timeout             time.Duration // open period before a half-open probe
}

// BreakerPublisher fails fast while the downstream bus is unhealthy.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker.
func WithBreaker(next Publisher, cfg BreakerConfig, log zerolog.Logger) *BreakerPublisher {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	name := cfg.Name
	if name == "" {
		name = "pubsub"
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publisher circuit breaker state changed")
		},
	}

	return &BreakerPublisher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Publish forwards to the wrapped publisher unless the breaker is open,
// in which case gobreaker.ErrOpenState is returned.
func (b *BreakerPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, subject, data)
	})
	return err
}

// Health reports the wrapped publisher's health.
func (b *BreakerPublisher) Health(ctx context.Context) error {
	return b.next.Health(ctx)
}

// State returns the breaker state.
func (b *BreakerPublisher) State() gobreaker.State {
	return b.cb.State()
}
