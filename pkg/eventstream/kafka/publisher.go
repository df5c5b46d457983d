// Package kafka publishes eventstream events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
)

// Writer is the subset of *kafkago.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout caps how long messages wait to be batched. Zero means 10ms.
	BatchTimeout time.Duration
}

// Publisher writes events as JSON messages keyed by session ID, so all the
// events of one session land on the same partition.
type Publisher struct {
	writer Writer
}

// NewPublisher creates a publisher backed by a kafka-go writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}), nil
}

// NewPublisherWithWriter creates a publisher over an existing writer.
func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// PublishMessage encodes and writes one event.
func (p *Publisher) PublishMessage(ctx context.Context, event *eventstream.MessageAssembledEvent) error {
	if event == nil {
		return eventstream.ErrNilMessageEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Source.SessionID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event %s to kafka: %w", event.EventID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
