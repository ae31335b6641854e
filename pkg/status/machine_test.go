package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/store"
	"github.com/mahaj/chatstra/pkg/transport/transporttest"
)

func tracked(t *testing.T, m *Machine, st *store.Memory, id int64, initial model.MessageStatus) *model.Message {
	t.Helper()
	msg := &model.Message{
		ID: id, Sender: "bob", Receiver: "alice",
		Content: "hi", Status: initial, CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateMessage(context.Background(), msg))
	m.Track(msg)
	return msg
}

func TestPendingToDeliveredToRead(t *testing.T) {
	st := store.NewMemory()
	reg := session.NewRegistry()
	m := NewMachine(st, reg)
	ctx := context.Background()

	tracked(t, m, st, 1, model.StatusPending)

	require.NoError(t, m.MarkDelivered(ctx, 1))
	got, ok := m.Status(1)
	require.True(t, ok)
	assert.Equal(t, model.StatusDelivered, got)

	require.NoError(t, m.MarkRead(ctx, 1))
	got, _ = m.Status(1)
	assert.Equal(t, model.StatusRead, got)

	// The store mirrors the in-memory state.
	stored, ok := st.Message(1)
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, stored.Status)
}

func TestStatusNeverRegresses(t *testing.T) {
	st := store.NewMemory()
	m := NewMachine(st, session.NewRegistry())
	ctx := context.Background()

	tracked(t, m, st, 1, model.StatusPending)
	require.NoError(t, m.MarkRead(ctx, 1))

	// A late delivered acknowledgement must not move read back.
	require.NoError(t, m.MarkDelivered(ctx, 1))
	got, _ := m.Status(1)
	assert.Equal(t, model.StatusRead, got)

	stored, _ := st.Message(1)
	assert.Equal(t, model.StatusRead, stored.Status)
}

func TestReadBeforeDeliveredCollapsesForward(t *testing.T) {
	st := store.NewMemory()
	m := NewMachine(st, session.NewRegistry())

	tracked(t, m, st, 7, model.StatusPending)
	require.NoError(t, m.MarkRead(context.Background(), 7))

	got, _ := m.Status(7)
	assert.Equal(t, model.StatusRead, got)
}

func TestReadIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	reg := session.NewRegistry()
	m := NewMachine(st, reg)
	ctx := context.Background()

	sender := transporttest.NewHandle("bob-conn")
	reg.Register("bob", sender)

	tracked(t, m, st, 1, model.StatusDelivered)

	require.NoError(t, m.MarkRead(ctx, 1))
	require.NoError(t, m.MarkRead(ctx, 1))

	got, _ := m.Status(1)
	assert.Equal(t, model.StatusRead, got)
	// Exactly one notification despite two acknowledgements.
	assert.Len(t, sender.EventsOf(model.EventMessageRead), 1)
}

func TestUnknownMessage(t *testing.T) {
	m := NewMachine(store.NewMemory(), session.NewRegistry())
	err := m.MarkDelivered(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSenderNotifiedOnEveryActiveSession(t *testing.T) {
	st := store.NewMemory()
	reg := session.NewRegistry()
	m := NewMachine(st, reg)

	phone := transporttest.NewHandle("bob-phone")
	laptop := transporttest.NewHandle("bob-laptop")
	reg.Register("bob", phone)
	reg.Register("bob", laptop)

	tracked(t, m, st, 1, model.StatusPending)
	require.NoError(t, m.MarkDelivered(context.Background(), 1))

	for _, h := range []*transporttest.Handle{phone, laptop} {
		events := h.EventsOf(model.EventMessageDelivered)
		require.Len(t, events, 1)
		payload := events[0].Payload.(model.StatusPayload)
		assert.Equal(t, int64(1), payload.MessageID)
		assert.Equal(t, model.StatusDelivered, payload.Status)
	}
}

func TestOfflineSenderNotificationIsDropped(t *testing.T) {
	st := store.NewMemory()
	m := NewMachine(st, session.NewRegistry())

	tracked(t, m, st, 1, model.StatusPending)
	// No session for bob; the transition still applies.
	require.NoError(t, m.MarkDelivered(context.Background(), 1))
	got, _ := m.Status(1)
	assert.Equal(t, model.StatusDelivered, got)
}

func TestPersistFailureIsSoftWarning(t *testing.T) {
	st := store.NewMemory()
	m := NewMachine(st, session.NewRegistry())
	ctx := context.Background()

	tracked(t, m, st, 1, model.StatusPending)
	st.UpdateErr = errors.New("scylla down")

	err := m.MarkDelivered(ctx, 1)
	require.ErrorIs(t, err, ErrPersistWarning)

	// In-memory status stays advanced despite the failed write.
	got, _ := m.Status(1)
	assert.Equal(t, model.StatusDelivered, got)
}
