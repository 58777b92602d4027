package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	if _, ok := New(nil, "invoices", nil).(NopPublisher); !ok {
		t.Fatalf("expected nop publisher without brokers")
	}
	if _, ok := New([]string{" "}, "invoices", nil).(NopPublisher); !ok {
		t.Fatalf("blank broker entries should be ignored")
	}
	if _, ok := New([]string{"localhost:9092"}, "", nil).(NopPublisher); !ok {
		t.Fatalf("expected nop publisher without topic")
	}
	if _, ok := New([]string{"localhost:9092"}, "invoices", nil).(*KafkaPublisher); !ok {
		t.Fatalf("expected kafka publisher")
	}
}

func TestPublishRunCompletedKeysByRunID(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, nil)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	err := p.PublishRunCompleted(context.Background(), RunCompleted{RunID: "r-1", PayPeriod: "2024-04-01", Properties: 3, Total: 1234.5, OccurredAt: at})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "r-1" || !msg.Time.Equal(at) {
		t.Fatalf("unexpected message envelope %+v", msg)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != EventRunCompleted {
		t.Fatalf("missing event type header: %+v", msg.Headers)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["total"] != 1234.5 || decoded["properties"] != float64(3) {
		t.Fatalf("unexpected payload %v", decoded)
	}
	if unmatched, ok := decoded["unmatched"].([]any); !ok || len(unmatched) != 0 {
		t.Fatalf("unmatched should encode as an empty list, got %v", decoded["unmatched"])
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close should reach the writer")
	}
}

func TestPublishRunCompletedErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, nil)
	if err := p.PublishRunCompleted(context.Background(), RunCompleted{RunID: "r-1"}); err == nil {
		t.Fatalf("expected write error")
	}
	if err := p.PublishRunCompleted(context.Background(), RunCompleted{}); err == nil {
		t.Fatalf("expected missing run id error")
	}
}

type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestPublishRunCompletedGivesUpAfterTimeout(t *testing.T) {
	p := newKafkaPublisher(stalledWriter{}, nil)
	if p.timeout != DefaultPublishTimeout {
		t.Fatalf("expected default timeout, got %v", p.timeout)
	}
	p.timeout = 20 * time.Millisecond

	start := time.Now()
	err := p.PublishRunCompleted(context.Background(), RunCompleted{RunID: "r-1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish held the caller for %v", elapsed)
	}
}
