package nop

import (
	"context"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishMessage validates input and otherwise does nothing.
func (p *Publisher) PublishMessage(_ context.Context, event *eventstream.MessageAssembledEvent) error {
	if event == nil {
		return eventstream.ErrNilMessageEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
