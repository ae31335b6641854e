package model

import (
	"fmt"
	"time"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is the delivered record for one chat message. Receiver is set for
// direct messages, GroupID for group messages; exactly one of the two is
// non-empty.
type Message struct {
	ID        int64         `json:"id"`
	Sender    string        `json:"sender"`
	Receiver  string        `json:"receiver,omitempty"`
	GroupID   string        `json:"group_id,omitempty"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func (m *Message) IsGroup() bool {
	return m.GroupID != ""
}

// ConversationID is the storage partition key: "dm:<a>:<b>" with the user ids
// sorted so both directions land in the same partition, or "group:<id>".
func (m *Message) ConversationID() string {
	if m.IsGroup() {
		return "group:" + m.GroupID
	}
	return DMConversationID(m.Sender, m.Receiver)
}

func DMConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%s:%s", a, b)
}

type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}
