package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chatstra/pkg/auth"
	"github.com/mahaj/chatstra/pkg/store"
)

func ConversationsHandler(db *store.Scylla) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conversations, err := db.Conversations(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conversations)
	}
}
