// Package pubsub publishes run summaries to a message bus.
package pubsub

import (
	"context"
	"strings"
)

// Publisher delivers payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Health(ctx context.Context) error
}

// Subject builds "<prefix>.<tag>". Characters that are not legal in a
// single subject token are replaced with '_'.
func Subject(prefix, tag string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', r <= ' ', r == 0x7f:
			return '_'
		}
		return r
	}, tag)
	if token == "" {
		token = "_"
	}
	if prefix == "" {
		return token
	}
	return prefix + "." + token
}
