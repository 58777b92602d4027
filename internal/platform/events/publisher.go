// Package events publishes invoice run notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventRunCompleted is the event type header value for finished runs.
const EventRunCompleted = "invoice.run.completed"

// DefaultPublishTimeout bounds one publish, retries included.
const DefaultPublishTimeout = 5 * time.Second

// RunCompleted is the payload emitted after an invoice run is stored.
type RunCompleted struct {
	RunID       string    `json:"run_id"`
	PayPeriod   string    `json:"pay_period"`
	Fingerprint string    `json:"fingerprint"`
	Properties  int       `json:"properties"`
	Unmatched   []string  `json:"unmatched"`
	Total       float64   `json:"total"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits run events.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, event RunCompleted) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by run id.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *slog.Logger
	timeout time.Duration
}

// New returns a Kafka publisher, or a no-op publisher when no brokers are
// configured.
func New(brokers []string, topic string, logger *slog.Logger) Publisher {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 || strings.TrimSpace(topic) == "" {
		return NopPublisher{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cleaned...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: 2 * time.Second,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer:  writer,
		logger:  logger.With(slog.String("component", "kafka_publisher")),
		timeout: DefaultPublishTimeout,
	}
}

// PublishRunCompleted serialises the event and writes it synchronously, giving
// up after the publish timeout.
func (p *KafkaPublisher) PublishRunCompleted(ctx context.Context, event RunCompleted) error {
	if p == nil || p.writer == nil {
		return errors.New("events: publisher not configured")
	}
	if event.RunID == "" {
		return errors.New("events: run id required")
	}
	if event.Unmatched == nil {
		event.Unmatched = []string{}
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventRunCompleted)},
		},
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	p.logger.Debug("published run event", slog.String("run_id", event.RunID))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher discards events.
type NopPublisher struct{}

// PublishRunCompleted implements Publisher.
func (NopPublisher) PublishRunCompleted(context.Context, RunCompleted) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
