package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chatstra/pkg/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		id bigint,
		sender text,
		receiver text,
		group_id text,
		content text,
		status text,
		created_at timestamp,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`,

	`CREATE TABLE IF NOT EXISTS messages_by_id (
		id bigint PRIMARY KEY,
		conversation_id text
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		name text,
		last_seen timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS group_activity (
		group_id text,
		at timeuuid,
		actor text,
		kind text,
		message_id bigint,
		PRIMARY KEY (group_id, at)
	) WITH CLUSTERING ORDER BY (at DESC)`,
}

func main() {
	kafkaBrokersStr := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokersStr == "" {
		kafkaBrokersStr = "localhost:19092"
	}
	brokers := strings.Split(kafkaBrokersStr, ",")

	scyllaHostsStr := os.Getenv("SCYLLA_HOSTS")
	if scyllaHostsStr == "" {
		scyllaHostsStr = "localhost:9042"
	}
	scyllaHosts := strings.Split(scyllaHostsStr, ",")

	topic := os.Getenv("ACTIVITY_TOPIC")
	if topic == "" {
		topic = "chat-activity"
	}
	groupID := "messaging-service-group"
	keyspace := "chat"

	// Note: In production, schema creation should be handled by migration
	// tools. For now the service creates keyspace and tables if missing.
	if err := ensureSchema(scyllaHosts, keyspace); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	db, err := store.NewScylla(scyllaHosts, keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB chat keyspace: %v", err)
	}
	defer db.Close()

	consumer := NewConsumer(brokers, topic, groupID, db)
	defer consumer.Close()

	log.Println("Starting activity consumer...")
	consumer.Consume(context.Background())
}

func ensureSchema(hosts []string, keyspace string) error {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	sys, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	err = sys.Query(`CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sys.Close()
	if err != nil {
		return err
	}

	cluster = gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	defer session.Close()

	for _, q := range schema {
		if err := session.Query(q).Exec(); err != nil {
			return err
		}
	}
	return nil
}
