package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mahaj/chatstra/pkg/auth"
	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/store"
)

// HistoryHandler serves conversation history. Direct history is requested
// with ?with=<user>, group history with ?group=<id>. Group history is also
// how members who were offline during a broadcast catch up: group messages
// are never queued per member.
type HistoryHandler struct {
	db  *store.Scylla
	dir *store.Redis
}

func NewHistoryHandler(db *store.Scylla, dir *store.Redis) *HistoryHandler {
	return &HistoryHandler{db: db, dir: dir}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var conversationID string
	switch {
	case r.URL.Query().Get("group") != "":
		groupID := r.URL.Query().Get("group")
		if !h.isMember(r.Context(), groupID, claims.UserID) {
			http.Error(w, "Not a member of this group", http.StatusForbidden)
			return
		}
		conversationID = "group:" + groupID

	case r.URL.Query().Get("with") != "":
		// The requester is always one side of the DM, so access is implicit.
		conversationID = model.DMConversationID(claims.UserID, r.URL.Query().Get("with"))

	default:
		http.Error(w, "Need ?with=<user> or ?group=<id>", http.StatusBadRequest)
		return
	}

	messages, err := h.db.History(r.Context(), conversationID, 50)
	if err != nil {
		log.Printf("Failed to fetch history for %s: %v", conversationID, err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

func (h *HistoryHandler) isMember(ctx context.Context, groupID, userID string) bool {
	members, err := h.dir.MembersOf(ctx, groupID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Membership check for %s: %v", groupID, err)
		}
		return false
	}
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}

type LoginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// LoginHandler issues a token and registers the user in the directory so the
// delivery router can resolve them as a recipient.
func LoginHandler(dir *store.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			req.Name = req.UserID
		}

		if err := dir.PutUser(r.Context(), &model.User{ID: req.UserID, Name: req.Name}); err != nil {
			http.Error(w, "Failed to register user", http.StatusInternalServerError)
			return
		}

		token, err := auth.GenerateToken(req.UserID)
		if err != nil {
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LoginResponse{Token: token})
	}
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := auth.VerifyIdentity(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), auth.UserKey, &auth.Claims{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
