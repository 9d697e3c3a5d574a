package events

import (
	"context"
	"errors"
)

// Fans events out to several publishers. All publishers are attempted; errors are joined.
type MultiPublisher []Publisher

var _ Publisher = (MultiPublisher)(nil)

func (mp MultiPublisher) Publish(ctx context.Context, evt *Event) error {
	var errs []error
	for _, p := range mp {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mp MultiPublisher) Close() error {
	var errs []error
	for _, p := range mp {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
