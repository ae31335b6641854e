// Package status tracks the per-message delivery lifecycle:
// pending -> delivered -> read. Transitions are monotonic; acknowledgements
// arriving out of order collapse forward, never backward.
package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/store"
)

var (
	// ErrUnknownMessage is returned for acknowledgements naming a message the
	// machine never tracked.
	ErrUnknownMessage = errors.New("status: unknown message")

	// ErrPersistWarning wraps a status-update write that failed after a
	// retry. The in-memory status stays advanced; callers surface this to the
	// sender as a soft warning, not a failure.
	ErrPersistWarning = errors.New("status: persisting update failed")
)

var rank = map[model.MessageStatus]int{
	model.StatusPending:   0,
	model.StatusDelivered: 1,
	model.StatusRead:      2,
}

type record struct {
	sender string
	status model.MessageStatus
}

// Machine holds the authoritative in-memory status of every tracked message
// and mirrors transitions to the message store. Status-change events go to
// the sender's active sessions best-effort; a sender that is offline simply
// misses them.
type Machine struct {
	mu      sync.Mutex
	records map[int64]*record

	store    store.MessageStore
	registry *session.Registry
}

func NewMachine(st store.MessageStore, registry *session.Registry) *Machine {
	return &Machine{
		records:  make(map[int64]*record),
		store:    st,
		registry: registry,
	}
}

// Track registers a routed message with the machine. Tracking an already
// tracked id is a no-op.
func (m *Machine) Track(msg *model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[msg.ID]; ok {
		return
	}
	m.records[msg.ID] = &record{sender: msg.Sender, status: msg.Status}
}

// Status returns the current in-memory status of a tracked message.
func (m *Machine) Status(id int64) (model.MessageStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return "", false
	}
	return rec.status, true
}

// MarkDelivered applies pending -> delivered. A no-op if the message is
// already delivered or read.
func (m *Machine) MarkDelivered(ctx context.Context, id int64) error {
	return m.advance(ctx, id, model.StatusDelivered, model.EventMessageDelivered)
}

// MarkRead applies delivered -> read. A read acknowledgement for a message
// still pending is accepted as an implicit delivered+read: client
// acknowledgement order may not match server-observed order. Repeated calls
// are no-ops.
func (m *Machine) MarkRead(ctx context.Context, id int64) error {
	return m.advance(ctx, id, model.StatusRead, model.EventMessageRead)
}

func (m *Machine) advance(ctx context.Context, id int64, target model.MessageStatus, event model.EventType) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("message %d: %w", id, ErrUnknownMessage)
	}
	if rank[rec.status] >= rank[target] {
		m.mu.Unlock()
		return nil
	}
	rec.status = target
	sender := rec.sender
	m.mu.Unlock()

	m.notifySender(sender, event, model.StatusPayload{
		MessageID: id,
		Status:    target,
		Timestamp: time.Now(),
	})

	if err := m.persist(ctx, id, target); err != nil {
		log.Printf("status: update message %d to %s: %v", id, target, err)
		return fmt.Errorf("%w: message %d: %v", ErrPersistWarning, id, err)
	}
	return nil
}

// persist writes the status update, retrying once before giving up.
func (m *Machine) persist(ctx context.Context, id int64, status model.MessageStatus) error {
	err := m.store.UpdateMessageStatus(ctx, id, status)
	if err == nil {
		return nil
	}
	return m.store.UpdateMessageStatus(ctx, id, status)
}

// notifySender emits a status-change event to the sender's sessions. Dropped,
// not queued, when the sender is offline: status notifications are
// best-effort, unlike message content.
func (m *Machine) notifySender(sender string, event model.EventType, payload model.StatusPayload) {
	for _, h := range m.registry.HandlesFor(sender) {
		if err := h.Emit(event, payload); err != nil {
			log.Printf("status: notify %s of %s: %v", sender, event, err)
		}
	}
}
