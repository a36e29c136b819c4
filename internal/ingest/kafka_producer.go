package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/van-transfers/internal/models"
)

// PushProducer queues push messages for the delivery worker. Messages are
// keyed by profile id so one device's pushes stay ordered on a partition.
type PushProducer struct {
	writer *kafka.Writer
}

func NewPushProducer(brokers []string, topic string) *PushProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
	return &PushProducer{writer: w}
}

func (k *PushProducer) PublishPush(ctx context.Context, msg models.PushMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.ProfileID), Value: b})
}

func (k *PushProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// DecodePush parses a queued push message.
func DecodePush(value []byte) (models.PushMessage, error) {
	var msg models.PushMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return msg, fmt.Errorf("decode push message: %w", err)
	}
	if msg.Token == "" {
		return msg, fmt.Errorf("push message %q has no device token", msg.NotificationID)
	}
	return msg, nil
}
