package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatstra/pkg/model"
)

func msg(id int64, receiver string) *model.Message {
	return &model.Message{ID: id, Sender: "s", Receiver: receiver, Status: model.StatusPending}
}

func TestEnqueueDrainFIFO(t *testing.T) {
	q := New()
	q.Enqueue("alice", msg(1, "alice"))
	q.Enqueue("alice", msg(2, "alice"))
	q.Enqueue("alice", msg(3, "alice"))
	q.Enqueue("bob", msg(4, "bob"))

	batch := q.Drain("alice")
	require.Len(t, batch, 3)
	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, int64(2), batch[1].ID)
	assert.Equal(t, int64(3), batch[2].ID)

	assert.Zero(t, q.Len("alice"))
	assert.Equal(t, 1, q.Len("bob"))
}

func TestDrainEmpty(t *testing.T) {
	q := New()
	assert.Empty(t, q.Drain("nobody"))
}

func TestEnqueueDuringDrainIsNeverLost(t *testing.T) {
	q := New()
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			q.Enqueue("alice", msg(int64(i), "alice"))
		}
	}()

	var drained []*model.Message
	for len(drained) < total {
		drained = append(drained, q.Drain("alice")...)
	}
	wg.Wait()
	drained = append(drained, q.Drain("alice")...)

	require.Len(t, drained, total)
	// Order must be preserved across the drain batches.
	for i, m := range drained {
		assert.Equal(t, int64(i+1), m.ID)
	}
}

type recordingMirror struct {
	mu      sync.Mutex
	appends []int64
	clears  int
}

func (m *recordingMirror) Append(_ context.Context, _ string, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends = append(m.appends, msg.ID)
	return nil
}

func (m *recordingMirror) Clear(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return nil
}

func (m *recordingMirror) snapshot() ([]int64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.appends...), m.clears
}

func TestMirrorIsBestEffort(t *testing.T) {
	mirror := &recordingMirror{}
	q := NewWithMirror(mirror)

	q.Enqueue("alice", msg(1, "alice"))
	q.Enqueue("alice", msg(2, "alice"))

	require.Len(t, q.Drain("alice"), 2)

	assert.Eventually(t, func() bool {
		appends, clears := mirror.snapshot()
		return len(appends) == 2 && clears == 1
	}, time.Second, 10*time.Millisecond)
}
