// Package delivery decides, per message, between immediate fan-out and the
// offline queue, and replays queued messages when their receiver reconnects.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mahaj/chatstra/pkg/group"
	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/queue"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/snowflake"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
)

var (
	// ErrUnknownRecipient rejects a message whose receiver the directory
	// cannot resolve. Nothing is queued or persisted.
	ErrUnknownRecipient = errors.New("delivery: unknown recipient")

	// ErrPersist is returned when the message record could not be written.
	// The message is neither queued nor reported delivered.
	ErrPersist = errors.New("delivery: message not persisted")
)

const activityTimeout = 5 * time.Second

// SendRequest is one inbound message. GroupID set means group fan-out,
// otherwise Receiver names a direct recipient.
type SendRequest struct {
	Sender   string
	Receiver string
	GroupID  string
	Content  string
}

// Router owns the deliver-or-queue decision. Operations targeting the same
// receiver are serialized through a per-receiver lock, which keeps the
// "delivered directly or queued, never both, never neither" invariant and the
// FIFO drain order; different receivers proceed independently.
type Router struct {
	registry  *session.Registry
	queue     *queue.Queue
	status    *status.Machine
	groups    *group.Coordinator
	store     store.MessageStore
	directory store.Directory
	activity  store.ActivityLog // optional
	ids       *snowflake.Node

	mu      sync.Mutex
	perUser map[string]*sync.Mutex
}

func NewRouter(registry *session.Registry, q *queue.Queue, machine *status.Machine, groups *group.Coordinator, st store.MessageStore, directory store.Directory, activity store.ActivityLog, ids *snowflake.Node) *Router {
	return &Router{
		registry:  registry,
		queue:     q,
		status:    machine,
		groups:    groups,
		store:     st,
		directory: directory,
		activity:  activity,
		ids:       ids,
		perUser:   make(map[string]*sync.Mutex),
	}
}

func (r *Router) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.perUser[userID]
	if !ok {
		mu = &sync.Mutex{}
		r.perUser[userID] = mu
	}
	return mu
}

// Route delivers or queues one message and returns the persisted record with
// its resulting status. Every error is surfaced to the caller; a message is
// never silently lost or silently marked delivered.
func (r *Router) Route(ctx context.Context, req SendRequest) (*model.Message, error) {
	if req.GroupID != "" {
		return r.groups.Broadcast(ctx, req.GroupID, req.Sender, req.Content)
	}

	if _, err := r.directory.FindUser(ctx, req.Receiver); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, req.Receiver)
		}
		return nil, fmt.Errorf("recipient lookup %s: %w", req.Receiver, err)
	}

	msg := &model.Message{
		ID:        r.ids.Generate(),
		Sender:    req.Sender,
		Receiver:  req.Receiver,
		Content:   req.Content,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}

	// The online check and the emit/enqueue must happen under the receiver
	// lock: a reconnect drain for the same receiver waits on this lock, so a
	// message can never be both emitted and queued, nor dropped between the
	// two.
	mu := r.lockFor(req.Receiver)
	mu.Lock()
	defer mu.Unlock()

	online := r.registry.IsOnline(req.Receiver)
	if online {
		msg.Status = model.StatusDelivered
	}

	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	r.status.Track(msg)

	if online {
		r.emit(req.Receiver, msg)
	} else {
		r.queue.Enqueue(req.Receiver, msg)
		log.Printf("delivery: queued %d for offline user %s", msg.ID, req.Receiver)
	}

	r.logActivity(msg)
	return msg, nil
}

// DrainFor replays the receiver's offline queue through the direct-delivery
// path. Triggered on the user's online transition; each drained message is
// emitted in enqueue order and marked delivered.
func (r *Router) DrainFor(ctx context.Context, userID string) {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	batch := r.queue.Drain(userID)
	if len(batch) == 0 {
		return
	}

	for _, msg := range batch {
		r.emit(userID, msg)
		if err := r.status.MarkDelivered(ctx, msg.ID); err != nil && !errors.Is(err, status.ErrPersistWarning) {
			log.Printf("delivery: mark drained %d delivered: %v", msg.ID, err)
		}
	}
	log.Printf("delivery: drained %d queued messages for %s", len(batch), userID)
}

func (r *Router) emit(receiverID string, msg *model.Message) {
	for _, h := range r.registry.HandlesFor(receiverID) {
		if err := h.Emit(model.EventReceiveMessage, msg); err != nil {
			log.Printf("delivery: emit %d to %s: %v", msg.ID, receiverID, err)
		}
	}
}

func (r *Router) logActivity(msg *model.Message) {
	if r.activity == nil {
		return
	}
	entry := store.ActivityEntry{
		Kind:      "message",
		Actor:     msg.Sender,
		Peer:      msg.Receiver,
		MessageID: msg.ID,
		At:        msg.CreatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()
		if err := r.activity.AppendActivity(ctx, entry); err != nil {
			log.Printf("delivery: append activity for %d: %v", msg.ID, err)
		}
	}()
}
