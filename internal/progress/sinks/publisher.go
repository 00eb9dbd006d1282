package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/sitegen/internal/progress"
	"github.com/JakeFAU/sitegen/internal/site"
)

// PublisherSink forwards events to a message broker topic.
type PublisherSink struct {
	publisher site.Publisher
	topic     string
}

// NewPublisherSink publishes every event to topic.
func NewPublisherSink(publisher site.Publisher, topic string) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &PublisherSink{publisher: publisher, topic: topic}, nil
}

// Consume publishes the batch in order and reports every failed publish.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish %s for site %d: %w", evt.Stage, evt.SiteID, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
