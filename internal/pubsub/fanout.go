package pubsub

import (
	"context"
	"errors"
)

type fanout []Publisher

// Fanout publishes to every non-nil publisher in order. It returns nil
// when none remain and the single publisher when only one does.
func Fanout(pubs ...Publisher) Publisher {
	var out fanout
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Health(ctx context.Context) error {
	var errs []error
	for _, p := range f {
		if err := p.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
