package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
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

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &recordingWriter{}
	p, err := NewProducer(WithWriter(w))
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	err = p.PublishBatch(context.Background(), "results", []Message{
		{Key: []byte("a"), Value: map[string]int{"n": 1}},
		{Key: []byte("b"), Value: "raw"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(w.msgs))
	}
	var got map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil || got["n"] != 1 {
		t.Fatalf("bad json payload %q: %v", w.msgs[0].Value, err)
	}
	if string(w.msgs[1].Value) != "raw" || w.msgs[1].Topic != "results" {
		t.Fatalf("unexpected message %+v", w.msgs[1])
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestPublishPropagatesWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p, _ := NewProducer(WithWriter(w))
	if err := p.Publish(context.Background(), "results", nil, "x"); err == nil {
		t.Fatal("expected writer error")
	}
}
