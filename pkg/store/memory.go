package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
)

// Memory implements every store port in memory. It backs the test suites and
// single-node development runs of the gateway.
type Memory struct {
	mu       sync.Mutex
	messages map[int64]*model.Message
	users    map[string]*model.User
	groups   map[string][]string
	lastSeen map[string]time.Time
	activity []ActivityEntry

	// Error injection for tests. When set, the corresponding operation fails
	// once per call until cleared.
	CreateErr error
	UpdateErr error
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[int64]*model.Message),
		users:    make(map[string]*model.User),
		groups:   make(map[string][]string),
		lastSeen: make(map[string]time.Time),
	}
}

func (m *Memory) CreateMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *Memory) UpdateMessageStatus(_ context.Context, id int64, status model.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	msg.Status = status
	return nil
}

func (m *Memory) UpdateLastSeen(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[userID] = at
	return nil
}

func (m *Memory) FindUser(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) MembersOf(_ context.Context, groupID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return append([]string(nil), members...), nil
}

func (m *Memory) AppendActivity(_ context.Context, entry ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, entry)
	return nil
}

// Seeding and inspection helpers.

func (m *Memory) AddUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *Memory) AddGroup(groupID string, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[groupID] = members
}

func (m *Memory) Message(id int64) (*model.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, false
	}
	cp := *msg
	return &cp, true
}

func (m *Memory) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *Memory) LastSeen(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastSeen[userID]
	return at, ok
}

func (m *Memory) Activities() []ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActivityEntry(nil), m.activity...)
}
