package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/config"
	"github.com/example/van-transfers/internal/models"
)

// fakeSender fails the first failN sends.
type fakeSender struct {
	failN int
	calls int
	sent  []models.PushMessage
}

func (f *fakeSender) Send(ctx context.Context, msg models.PushMessage) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("push endpoint unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestDeliverWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeSender{failN: 2}
	msg := models.PushMessage{NotificationID: "n1", Token: "tok"}
	start := time.Now()
	if err := deliverWithRetry(context.Background(), f, msg, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected backoff between attempts")
	}
}

func TestDeliverWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeSender{failN: 5}
	if err := deliverWithRetry(context.Background(), f, models.PushMessage{Token: "tok"}, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestDeliverWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeSender{failN: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := deliverWithRetry(ctx, f, models.PushMessage{Token: "tok"}, 3, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// sliceReader replays messages then blocks until ctx is done.
type sliceReader struct{ msgs []kafka.Message }

func (s *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, nil
}

func TestConsumeSkipsInvalidMessages(t *testing.T) {
	good, _ := json.Marshal(models.PushMessage{NotificationID: "n1", ProfileID: "u1", Token: "tok", Title: "hi"})
	r := &sliceReader{msgs: []kafka.Message{{Value: []byte("garbage")}, {Value: good}}}
	f := &fakeSender{}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	consume(ctx, r, f, config.ConsumerConfig{MaxAttempts: 1, RetryBackoff: time.Millisecond}, zap.NewNop().Sugar())

	if len(f.sent) != 1 || f.sent[0].NotificationID != "n1" {
		t.Fatalf("expected exactly the valid message delivered, got %+v", f.sent)
	}
}
