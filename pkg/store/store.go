// Package store holds the persistence ports the delivery core depends on and
// their ScyllaDB, Redis and Kafka implementations. The core only ever talks to
// the interfaces so tests can run against the in-memory Memory store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
)

var ErrNotFound = errors.New("store: not found")

// MessageStore persists delivered-message records. CreateMessage is called
// exactly once per routed message; status changes mutate the record in place.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus) error
}

// PresenceStore persists last-seen timestamps on disconnect.
type PresenceStore interface {
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Directory resolves users and group membership. Membership is read-only from
// the core's perspective; it is consumed at fan-out time.
type Directory interface {
	FindUser(ctx context.Context, id string) (*model.User, error)
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// ActivityEntry is one fire-and-forget activity event. Kind is "message" for
// direct messages and "group_message" for group fan-outs.
type ActivityEntry struct {
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	Peer      string    `json:"peer,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}

// ActivityLog records activity entries. Failures are logged and swallowed by
// callers; the log is not required for delivery correctness.
type ActivityLog interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
}
