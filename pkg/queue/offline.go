// Package queue buffers messages that could not be delivered because the
// receiver had no active session. One FIFO queue per receiver, drained on
// reconnect.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
)

const mirrorTimeout = 5 * time.Second

// Mirror is an optional durability backstop for queue contents (a Redis list
// in production). Mirror writes are fire-and-forget; the in-memory queue is
// authoritative.
type Mirror interface {
	Append(ctx context.Context, receiverID string, m *model.Message) error
	Clear(ctx context.Context, receiverID string) error
}

type Queue struct {
	mu     sync.Mutex
	items  map[string][]*model.Message
	mirror Mirror
}

func New() *Queue {
	return &Queue{items: make(map[string][]*model.Message)}
}

func NewWithMirror(m Mirror) *Queue {
	q := New()
	q.mirror = m
	return q
}

// Enqueue appends to the tail of the receiver's queue. Returns immediately;
// the mirror write happens in the background.
func (q *Queue) Enqueue(receiverID string, m *model.Message) {
	q.mu.Lock()
	q.items[receiverID] = append(q.items[receiverID], m)
	q.mu.Unlock()

	if q.mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			defer cancel()
			if err := q.mirror.Append(ctx, receiverID, m); err != nil {
				log.Printf("queue: mirror append for %s: %v", receiverID, err)
			}
		}()
	}
}

// Drain returns the receiver's queued messages in enqueue order and clears
// the queue. The swap happens under the lock, so a concurrent Enqueue either
// lands in the returned batch or starts a fresh queue; nothing is dropped.
func (q *Queue) Drain(receiverID string) []*model.Message {
	q.mu.Lock()
	batch := q.items[receiverID]
	delete(q.items, receiverID)
	q.mu.Unlock()

	if q.mirror != nil && len(batch) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			defer cancel()
			if err := q.mirror.Clear(ctx, receiverID); err != nil {
				log.Printf("queue: mirror clear for %s: %v", receiverID, err)
			}
		}()
	}
	return batch
}

// Len reports how many messages are queued for the receiver.
func (q *Queue) Len(receiverID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[receiverID])
}
