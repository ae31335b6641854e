package main

import (
	"log"

	"github.com/gocql/gocql"
)

var tables = []string{
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
	cluster := gocql.NewCluster("localhost")
	cluster.Keyspace = "chat"
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	for _, q := range tables {
		if err := session.Query(q).Exec(); err != nil {
			log.Fatal(err)
		}
	}

	log.Println("Tables created successfully")
}
