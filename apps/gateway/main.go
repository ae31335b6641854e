package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/mahaj/chatstra/pkg/delivery"
	"github.com/mahaj/chatstra/pkg/group"
	"github.com/mahaj/chatstra/pkg/presence"
	"github.com/mahaj/chatstra/pkg/queue"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/snowflake"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	f, err := os.OpenFile("gateway.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	scyllaHosts := strings.Split(envOr("SCYLLA_HOSTS", "localhost:9042"), ",")
	kafkaBrokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:19092"), ",")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	activityTopic := envOr("ACTIVITY_TOPIC", "chat-activity")

	scylla, err := store.NewScylla(scyllaHosts, "chat")
	if err != nil {
		log.Fatalf("failed to connect to ScyllaDB: %v", err)
	}
	defer scylla.Close()

	rdb := store.NewRedis(redisAddr)
	defer rdb.Close()

	activity := store.NewKafkaActivityLog(kafkaBrokers, activityTopic)
	defer activity.Close()

	ids, err := snowflake.NewNodeFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize snowflake node: %v", err)
	}

	registry := session.NewRegistry()
	tracker := presence.NewTracker(registry, rdb, scylla)
	machine := status.NewMachine(scylla, registry)
	offline := queue.NewWithMirror(rdb)
	groups := group.NewCoordinator(registry, rdb, scylla, machine, activity, ids)
	router := delivery.NewRouter(registry, offline, machine, groups, scylla, rdb, activity, ids)

	hub := NewHub(registry, tracker, router, machine, rdb)
	go hub.Run()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	log.Printf("Gateway Service Starting on %s...", listenAddr)
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		log.Fatal(err)
	}
}
