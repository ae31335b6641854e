package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/mahaj/chatstra/pkg/store"
)

// PresenceHandler answers "who is online" from the Redis mirror the gateway
// maintains on every registry transition.
type PresenceHandler struct {
	redis *store.Redis
}

func NewPresenceHandler(rdb *store.Redis) *PresenceHandler {
	return &PresenceHandler{redis: rdb}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	users, err := h.redis.OnlineUsers(r.Context())
	if err != nil {
		log.Printf("Failed to fetch online users: %v", err)
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
