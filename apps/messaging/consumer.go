package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chatstra/pkg/store"
)

// Consumer drains the activity topic and maintains the conversation and
// group-activity rollups. Everything here is derived data: a dropped entry
// costs a counter tick, never a message.
type Consumer struct {
	reader *kafka.Reader
	db     *store.Scylla
}

func NewConsumer(brokers []string, topic string, groupID string, db *store.Scylla) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: r, db: db}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			log.Printf("Error reading message: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var entry store.ActivityEntry
		if err := json.Unmarshal(m.Value, &entry); err != nil {
			log.Printf("Failed to unmarshal activity entry: %v", err)
			continue
		}

		switch entry.Kind {
		case "message":
			if entry.Actor == "" || entry.Peer == "" {
				log.Printf("Skipping message entry without both participants: %+v", entry)
				continue
			}
			if err := c.db.TouchConversation(ctx, entry.Actor, entry.Peer, entry.At); err != nil {
				log.Printf("Failed to update conversation %s/%s: %v", entry.Actor, entry.Peer, err)
			}

		case "group_message":
			if err := c.db.RecordGroupActivity(ctx, entry); err != nil {
				log.Printf("Failed to record group activity for %s: %v", entry.GroupID, err)
			}

		default:
			log.Printf("Skipping activity entry of unknown kind %q", entry.Kind)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
