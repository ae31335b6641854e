package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/mahaj/chatstra/pkg/store"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	scyllaHostsStr := os.Getenv("SCYLLA_HOSTS")
	if scyllaHostsStr == "" {
		scyllaHostsStr = "localhost:9042"
	}
	scyllaHosts := strings.Split(scyllaHostsStr, ",")

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8081"
	}

	db, err := store.NewScylla(scyllaHosts, "chat")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer db.Close()

	rdb := store.NewRedis(redisAddr)
	defer rdb.Close()

	log.Printf("API Service Starting on %s...", listenAddr)

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler(rdb))))

	// Protected endpoints
	http.Handle("/history", CORSMiddleware(AuthMiddleware(NewHistoryHandler(db, rdb))))
	http.Handle("/presence/online", CORSMiddleware(AuthMiddleware(NewPresenceHandler(rdb))))
	http.Handle("/conversations", CORSMiddleware(AuthMiddleware(ConversationsHandler(db))))
	http.Handle("/conversations/read", CORSMiddleware(AuthMiddleware(ReadHandler(db))))

	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		log.Fatal(err)
	}
}
