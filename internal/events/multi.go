package events

import (
	"context"
	"errors"
)

// multiPublisher fans every publish out to all underlying publishers.
type multiPublisher struct {
	pubs []Publisher
}

// Multi combines publishers into one. Publish and Close call every
// underlying publisher and join the errors.
func Multi(pubs ...Publisher) Publisher {
	return &multiPublisher{pubs: pubs}
}

func (m *multiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
