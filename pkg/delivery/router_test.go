package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatstra/pkg/group"
	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/queue"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/snowflake"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
	"github.com/mahaj/chatstra/pkg/transport/transporttest"
)

type harness struct {
	registry *session.Registry
	queue    *queue.Queue
	machine  *status.Machine
	store    *store.Memory
	router   *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := session.NewRegistry()
	st := store.NewMemory()
	st.AddUser(&model.User{ID: "alice", Name: "Alice"})
	st.AddUser(&model.User{ID: "bob", Name: "Bob"})

	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)

	q := queue.New()
	machine := status.NewMachine(st, reg)
	coord := group.NewCoordinator(reg, st, st, machine, st, ids)
	router := NewRouter(reg, q, machine, coord, st, st, st, ids)

	return &harness{registry: reg, queue: q, machine: machine, store: st, router: router}
}

func (h *harness) send(t *testing.T, sender, receiver, content string) *model.Message {
	t.Helper()
	msg, err := h.router.Route(context.Background(), SendRequest{
		Sender: sender, Receiver: receiver, Content: content,
	})
	require.NoError(t, err)
	return msg
}

func TestOnlineReceiverGetsImmediateDelivery(t *testing.T) {
	h := newHarness(t)
	alice := transporttest.NewHandle("alice-conn")
	h.registry.Register("alice", alice)

	msg := h.send(t, "bob", "alice", "hi")

	assert.Equal(t, model.StatusDelivered, msg.Status)
	// Delivered directly, never queued.
	assert.Zero(t, h.queue.Len("alice"))

	events := alice.EventsOf(model.EventReceiveMessage)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Payload.(*model.Message).Content)

	stored, ok := h.store.Message(msg.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusDelivered, stored.Status)
}

func TestMultiDeviceFanOut(t *testing.T) {
	h := newHarness(t)
	phone := transporttest.NewHandle("alice-phone")
	laptop := transporttest.NewHandle("alice-laptop")
	h.registry.Register("alice", phone)
	h.registry.Register("alice", laptop)

	h.send(t, "bob", "alice", "hi")

	assert.Len(t, phone.EventsOf(model.EventReceiveMessage), 1)
	assert.Len(t, laptop.EventsOf(model.EventReceiveMessage), 1)
}

func TestOfflineReceiverGetsQueuedExactlyOnce(t *testing.T) {
	h := newHarness(t)

	msg := h.send(t, "bob", "alice", "hi")

	assert.Equal(t, model.StatusPending, msg.Status)
	assert.Equal(t, 1, h.queue.Len("alice"))

	stored, ok := h.store.Message(msg.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestQueueKeepsFIFOOrderPerReceiver(t *testing.T) {
	h := newHarness(t)

	first := h.send(t, "bob", "alice", "one")
	second := h.send(t, "bob", "alice", "two")
	third := h.send(t, "bob", "alice", "three")

	batch := h.queue.Drain("alice")
	require.Len(t, batch, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID},
		[]int64{batch[0].ID, batch[1].ID, batch[2].ID})
}

func TestUnknownRecipientRejectedNothingQueued(t *testing.T) {
	h := newHarness(t)

	_, err := h.router.Route(context.Background(), SendRequest{
		Sender: "bob", Receiver: "nobody", Content: "hi",
	})
	assert.ErrorIs(t, err, ErrUnknownRecipient)
	assert.Zero(t, h.store.MessageCount())
	assert.Zero(t, h.queue.Len("nobody"))
}

func TestPersistFailureIsDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.store.CreateErr = errors.New("scylla down")

	_, err := h.router.Route(context.Background(), SendRequest{
		Sender: "bob", Receiver: "alice", Content: "hi",
	})
	assert.ErrorIs(t, err, ErrPersist)
	// Not queued, not delivered: the sender got an explicit failure instead.
	assert.Zero(t, h.queue.Len("alice"))
}

func TestDrainReplaysInOrderAndMarksDelivered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var sent []*model.Message
	for i := 0; i < 5; i++ {
		sent = append(sent, h.send(t, "bob", "alice", fmt.Sprintf("m%d", i)))
	}

	// alice reconnects.
	alice := transporttest.NewHandle("alice-conn")
	h.registry.Register("alice", alice)
	h.router.DrainFor(ctx, "alice")

	events := alice.EventsOf(model.EventReceiveMessage)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, sent[i].ID, e.Payload.(*model.Message).ID)
	}

	assert.Zero(t, h.queue.Len("alice"))
	for _, m := range sent {
		got, ok := h.machine.Status(m.ID)
		require.True(t, ok)
		assert.Equal(t, model.StatusDelivered, got)
	}
}

func TestOfflineScenarioEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bobConn := transporttest.NewHandle("bob-conn")
	h.registry.Register("bob", bobConn)

	// alice offline, bob sends "hi".
	msg := h.send(t, "bob", "alice", "hi")
	assert.Equal(t, model.StatusPending, msg.Status)

	// alice connects and the queue drains.
	alice := transporttest.NewHandle("alice-conn")
	h.registry.Register("alice", alice)
	h.router.DrainFor(ctx, "alice")

	require.Len(t, alice.EventsOf(model.EventReceiveMessage), 1)
	got, _ := h.machine.Status(msg.ID)
	assert.Equal(t, model.StatusDelivered, got)

	// alice acknowledges read; bob is notified.
	require.NoError(t, h.machine.MarkRead(ctx, msg.ID))
	got, _ = h.machine.Status(msg.ID)
	assert.Equal(t, model.StatusRead, got)

	reads := bobConn.EventsOf(model.EventMessageRead)
	require.Len(t, reads, 1)
	assert.Equal(t, msg.ID, reads[0].Payload.(model.StatusPayload).MessageID)
}

func TestGroupMessagesBypassOfflineQueue(t *testing.T) {
	h := newHarness(t)
	h.store.AddGroup("g1", "alice", "bob", "carol")

	bob := transporttest.NewHandle("bob-conn")
	h.registry.Register("bob", bob)
	// carol offline

	msg, err := h.router.Route(context.Background(), SendRequest{
		Sender: "alice", GroupID: "g1", Content: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, msg.Status)

	assert.Len(t, bob.EventsOf(model.EventReceiveGroupMessage), 1)
	// carol gets no queued copy; group history is her catch-up path.
	assert.Zero(t, h.queue.Len("carol"))
}

func TestRouteLogsActivity(t *testing.T) {
	h := newHarness(t)
	msg := h.send(t, "bob", "alice", "hi")

	assert.Eventually(t, func() bool {
		for _, e := range h.store.Activities() {
			if e.Kind == "message" && e.MessageID == msg.ID && e.Peer == "alice" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

// No message may be delivered twice or lost while the receiver flaps between
// online and offline.
func TestNoDuplicateOrLostDeliveryUnderReconnectRaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const total = 200

	handle := transporttest.NewHandle("alice-conn")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			// Plain Route here: require must not be used off the test goroutine.
			h.router.Route(ctx, SendRequest{Sender: "bob", Receiver: "alice", Content: fmt.Sprintf("m%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			h.registry.Register("alice", handle)
			h.router.DrainFor(ctx, "alice")
			h.registry.Deregister(handle)
		}
	}()
	wg.Wait()

	// Final reconnect flushes whatever is still queued.
	h.registry.Register("alice", handle)
	h.router.DrainFor(ctx, "alice")
	assert.Zero(t, h.queue.Len("alice"))

	seen := make(map[int64]int)
	for _, e := range handle.EventsOf(model.EventReceiveMessage) {
		seen[e.Payload.(*model.Message).ID]++
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "message %d delivered %d times", id, n)
	}
	assert.Equal(t, total, h.store.MessageCount())
}
