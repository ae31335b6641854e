package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chatstra/pkg/model"
)

// Scylla is the ScyllaDB-backed message and presence store. Messages are
// partitioned by conversation id; a messages_by_id lookup table supports
// status updates addressed by message id alone.
type Scylla struct {
	session *gocql.Session
}

func NewScylla(hosts []string, keyspace string) (*Scylla, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Println("Connected to ScyllaDB cluster")
	return &Scylla{session: session}, nil
}

func (s *Scylla) Close() {
	s.session.Close()
}

func (s *Scylla) CreateMessage(ctx context.Context, m *model.Message) error {
	q := `INSERT INTO messages (conversation_id, id, sender, receiver, group_id, content, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if err := s.session.Query(q,
		m.ConversationID(), m.ID, m.Sender, m.Receiver, m.GroupID, m.Content, string(m.Status), m.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return err
	}

	return s.session.Query(`INSERT INTO messages_by_id (id, conversation_id) VALUES (?, ?)`,
		m.ID, m.ConversationID()).WithContext(ctx).Exec()
}

func (s *Scylla) UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus) error {
	var conversationID string
	err := s.session.Query(`SELECT conversation_id FROM messages_by_id WHERE id = ?`, id).
		WithContext(ctx).Scan(&conversationID)
	if errors.Is(err, gocql.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	return s.session.Query(`UPDATE messages SET status = ? WHERE conversation_id = ? AND id = ?`,
		string(status), conversationID, id).WithContext(ctx).Exec()
}

func (s *Scylla) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	// CQL UPDATE is an upsert, so this works for users never written before.
	return s.session.Query(`UPDATE users SET last_seen = ? WHERE id = ?`, at, userID).
		WithContext(ctx).Exec()
}

// History returns the most recent messages of a conversation, newest first
// (the clustering order of the messages table).
func (s *Scylla) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(
		`SELECT id, sender, receiver, group_id, content, status, created_at FROM messages WHERE conversation_id = ? LIMIT ?`,
		conversationID, limit).WithContext(ctx).Iter()

	var messages []model.Message
	var m model.Message
	var status string
	for iter.Scan(&m.ID, &m.Sender, &m.Receiver, &m.GroupID, &m.Content, &status, &m.CreatedAt) {
		m.Status = model.MessageStatus(status)
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

// Conversation is one row of a user's conversation list, with the unread
// counter folded in.
type Conversation struct {
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	LastUpdated time.Time `json:"last_updated"`
	UnreadCount int64     `json:"unread_count"`
}

func (s *Scylla) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	iter := s.session.Query(
		`SELECT user_id, other_user_id, last_updated FROM user_conversations WHERE user_id = ?`,
		userID).WithContext(ctx).Iter()

	var conversations []Conversation
	var c Conversation
	for iter.Scan(&c.UserID, &c.OtherUserID, &c.LastUpdated) {
		var count int64
		if err := s.session.Query(
			`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
			c.UserID, c.OtherUserID).WithContext(ctx).Scan(&count); err == nil {
			c.UnreadCount = count
		}
		conversations = append(conversations, c)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return conversations, nil
}

// ResetUnread clears the unread counter for one conversation. Deleting the
// row is how ScyllaDB counters reset.
func (s *Scylla) ResetUnread(ctx context.Context, userID, otherUserID string) error {
	return s.session.Query(`DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		userID, otherUserID).WithContext(ctx).Exec()
}

// TouchConversation upserts both directions of a DM conversation rollup and
// bumps the receiver's unread counter. Used by the messaging consumer.
func (s *Scylla) TouchConversation(ctx context.Context, sender, receiver string, at time.Time) error {
	q := `INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`
	if err := s.session.Query(q, sender, receiver, at).WithContext(ctx).Exec(); err != nil {
		return err
	}
	if err := s.session.Query(q, receiver, sender, at).WithContext(ctx).Exec(); err != nil {
		return err
	}

	return s.session.Query(
		`UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`,
		receiver, sender).WithContext(ctx).Exec()
}

// RecordGroupActivity appends one row to the group activity feed. Used by the
// messaging consumer as the durable sink of the activity stream.
func (s *Scylla) RecordGroupActivity(ctx context.Context, e ActivityEntry) error {
	return s.session.Query(
		`INSERT INTO group_activity (group_id, at, actor, kind, message_id) VALUES (?, now(), ?, ?, ?)`,
		e.GroupID, e.Actor, e.Kind, e.MessageID).WithContext(ctx).Exec()
}
