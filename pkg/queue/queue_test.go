package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/procpool/pkg/task"
	"github.com/cuemby/procpool/pkg/types"
)

func rec(id string, priority int) *task.Record {
	return &task.Record{Task: &types.Task{ID: id, Priority: priority}}
}

func TestPopAscendingPriority(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	for _, r := range []*task.Record{
		rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 70),
		rec("b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", 10),
		rec("c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3", 100),
		rec("d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4d4", 1),
		rec("e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5", 55),
	} {
		require.NoError(t, p.Put(r))
	}

	var got []int
	for !p.Empty() {
		r, ok := p.Pop()
		require.True(t, ok)
		got = append(got, r.Task.Priority)
	}
	assert.Equal(t, []int{1, 10, 55, 70, 100}, got)
}

func TestPopFIFOOnTies(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	first := rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 5)
	second := rec("b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", 5)
	require.NoError(t, p.Put(first))
	require.NoError(t, p.Put(second))

	r, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, first.Task.ID, r.Task.ID)

	r, ok = p.Pop()
	require.True(t, ok)
	assert.Equal(t, second.Task.ID, r.Task.ID)
}

func TestPopBlocksUntilPut(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	got := make(chan *task.Record, 1)
	go func() {
		r, _ := p.Pop()
		got <- r
	}()

	// Give the consumer time to park on the empty queue
	time.Sleep(50 * time.Millisecond)
	select {
	case <-got:
		t.Fatal("Pop returned before anything was queued")
	default:
	}

	require.NoError(t, p.Put(rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 10)))

	select {
	case r := <-got:
		require.NotNil(t, r)
		assert.Equal(t, "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", r.Task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Put")
	}
}

func TestGetSurvivesPopUntilForget(t *testing.T) {
	p, err := New(rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 10))
	require.NoError(t, err)

	r, ok := p.Pop()
	require.True(t, ok)
	assert.NotNil(t, p.Get(r.Task.ID), "The side map is advisory and keeps popped records")

	p.Forget(r.Task.ID)
	assert.Nil(t, p.Get(r.Task.ID))
}

func TestCloseUnblocksPop(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok := p.Pop()
		done <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	p.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Close")
	}

	assert.Error(t, p.Put(rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 10)))
}

func TestPutRequiresID(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	assert.Error(t, p.Put(rec("", 10)))
	assert.Error(t, p.Put(nil))
}

func TestNewSeedsRecords(t *testing.T) {
	p, err := New(
		rec("a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", 100),
		rec("b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", 10),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Len(t, p.All(), 2)

	r, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, 10, r.Task.Priority)
}
