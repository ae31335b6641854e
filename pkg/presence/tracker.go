// Package presence derives last-seen and typing state from session registry
// transitions and explicit typing signals. Nothing here is fatal: presence is
// advisory and persistence failures are logged and swallowed.
package presence

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/store"
)

const persistTimeout = 5 * time.Second

type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	typing   map[string]map[string]bool // user id -> conversation ids

	registry  *session.Registry
	directory store.Directory
	store     store.PresenceStore
}

// NewTracker builds a tracker and subscribes it to registry transitions.
func NewTracker(registry *session.Registry, directory store.Directory, ps store.PresenceStore) *Tracker {
	t := &Tracker{
		lastSeen:  make(map[string]time.Time),
		typing:    make(map[string]map[string]bool),
		registry:  registry,
		directory: directory,
		store:     ps,
	}
	registry.Watch(t.observe)
	return t
}

func (t *Tracker) observe(userID string, tr session.Transition) {
	now := time.Now()

	t.mu.Lock()
	t.lastSeen[userID] = now
	if tr == session.Offline {
		delete(t.typing, userID) // typing state is ephemeral
	}
	t.mu.Unlock()

	if tr == session.Offline {
		// Fire and forget: a slow or failing store must not block disconnect
		// handling.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := t.store.UpdateLastSeen(ctx, userID, now); err != nil {
				log.Printf("presence: persist last seen for %s: %v", userID, err)
			}
		}()
	}
}

// LastSeen reports when the user last transitioned online or offline.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastSeen[userID]
	return at, ok
}

// IsTyping reports whether the user is currently typing in the conversation.
func (t *Tracker) IsTyping(userID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing[userID][conversationID]
}

// SetTyping updates ephemeral typing state and notifies the other
// participants of the conversation: the direct peer, or every online group
// member except the sender.
func (t *Tracker) SetTyping(ctx context.Context, senderID, receiverID, groupID string, typing bool) error {
	conversationID := model.DMConversationID(senderID, receiverID)
	if groupID != "" {
		conversationID = "group:" + groupID
	}

	t.mu.Lock()
	if typing {
		if t.typing[senderID] == nil {
			t.typing[senderID] = make(map[string]bool)
		}
		t.typing[senderID][conversationID] = true
	} else {
		delete(t.typing[senderID], conversationID)
	}
	t.mu.Unlock()

	event := model.EventUserTyping
	if !typing {
		event = model.EventUserStoppedTyping
	}
	payload := model.TypingPayload{Sender: senderID, Receiver: receiverID, GroupID: groupID}

	if groupID == "" {
		t.emitTo(receiverID, event, payload)
		return nil
	}

	members, err := t.directory.MembersOf(ctx, groupID)
	if err != nil {
		return fmt.Errorf("typing fan-out for group %s: %w", groupID, err)
	}
	for _, member := range members {
		if member == senderID {
			continue
		}
		t.emitTo(member, event, payload)
	}
	return nil
}

func (t *Tracker) emitTo(userID string, event model.EventType, payload any) {
	for _, h := range t.registry.HandlesFor(userID) {
		if err := h.Emit(event, payload); err != nil {
			log.Printf("presence: emit %s to %s: %v", event, userID, err)
		}
	}
}
