package store

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// KafkaActivityLog publishes activity entries to Kafka. The messaging service
// consumes the topic and maintains the conversation and group-activity
// rollups in ScyllaDB.
type KafkaActivityLog struct {
	writer *kafka.Writer
}

func NewKafkaActivityLog(brokers []string, topic string) *KafkaActivityLog {
	return &KafkaActivityLog{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *KafkaActivityLog) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := entry.GroupID
	if key == "" {
		key = entry.Actor
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  entry.At,
	})
}

func (k *KafkaActivityLog) Close() error {
	return k.writer.Close()
}
