package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chatstra/pkg/auth"
	"github.com/mahaj/chatstra/pkg/store"
)

type ReadRequest struct {
	OtherUserID string `json:"other_user_id"`
}

// ReadHandler resets the unread counter for one conversation after the
// client has caught up.
func ReadHandler(db *store.Scylla) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req ReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := db.ResetUnread(r.Context(), claims.UserID, req.OtherUserID); err != nil {
			http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
