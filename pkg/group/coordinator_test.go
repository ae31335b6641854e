package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/snowflake"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
	"github.com/mahaj/chatstra/pkg/transport/transporttest"
)

type harness struct {
	registry *session.Registry
	store    *store.Memory
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := session.NewRegistry()
	st := store.NewMemory()
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)
	machine := status.NewMachine(st, reg)
	return &harness{
		registry: reg,
		store:    st,
		coord:    NewCoordinator(reg, st, st, machine, st, ids),
	}
}

func TestBroadcastReachesOnlineMembersExceptSender(t *testing.T) {
	h := newHarness(t)
	h.store.AddGroup("g1", "alice", "bob", "carol")

	alice := transporttest.NewHandle("alice-conn")
	bob := transporttest.NewHandle("bob-conn")
	h.registry.Register("alice", alice)
	h.registry.Register("bob", bob)
	// carol is offline

	msg, err := h.coord.Broadcast(context.Background(), "g1", "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, msg.Status)
	assert.Equal(t, "g1", msg.GroupID)

	events := bob.EventsOf(model.EventReceiveGroupMessage)
	require.Len(t, events, 1)
	got := events[0].Payload.(*model.Message)
	assert.Equal(t, "hello", got.Content)

	assert.Empty(t, alice.EventsOf(model.EventReceiveGroupMessage))
}

func TestBroadcastPersistsOneMemberIndependentRecord(t *testing.T) {
	h := newHarness(t)
	h.store.AddGroup("g1", "alice", "bob", "carol")

	msg, err := h.coord.Broadcast(context.Background(), "g1", "alice", "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, h.store.MessageCount())
	stored, ok := h.store.Message(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "group:g1", stored.ConversationID())
}

func TestBroadcastUnknownGroup(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Broadcast(context.Background(), "missing", "alice", "hello")
	assert.ErrorIs(t, err, ErrUnknownGroup)
	assert.Zero(t, h.store.MessageCount())
}

func TestBroadcastAppendsActivity(t *testing.T) {
	h := newHarness(t)
	h.store.AddGroup("g1", "alice", "bob")

	msg, err := h.coord.Broadcast(context.Background(), "g1", "alice", "hello")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, e := range h.store.Activities() {
			if e.Kind == "group_message" && e.GroupID == "g1" && e.MessageID == msg.ID {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastToMultipleSessionsOfOneMember(t *testing.T) {
	h := newHarness(t)
	h.store.AddGroup("g1", "alice", "bob")

	phone := transporttest.NewHandle("bob-phone")
	laptop := transporttest.NewHandle("bob-laptop")
	h.registry.Register("bob", phone)
	h.registry.Register("bob", laptop)

	_, err := h.coord.Broadcast(context.Background(), "g1", "alice", "hello")
	require.NoError(t, err)

	assert.Len(t, phone.EventsOf(model.EventReceiveGroupMessage), 1)
	assert.Len(t, laptop.EventsOf(model.EventReceiveGroupMessage), 1)
}
