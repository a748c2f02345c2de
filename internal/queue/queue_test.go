package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docconv/internal/domain"
)

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := New(3)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Put(ctx, domain.Job{ID: id}))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Unfinished())

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
		q.TaskDone()
	}
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Unfinished())
}

func TestQueue_PutBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	q := New(20)

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Put(ctx, domain.Job{ID: fmt.Sprintf("job-%02d", i)}))
	}
	assert.Equal(t, 20, q.Len())

	done := make(chan error, 1)
	go func() {
		done <- q.Put(ctx, domain.Job{ID: "job-20"})
	}()

	select {
	case <-done:
		t.Fatal("21st put returned while the queue was full")
	case <-time.After(100 * time.Millisecond):
	}

	job, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-00", job.ID)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("21st put still blocked after a slot was freed")
	}
	assert.Equal(t, 20, q.Len())
}

func TestQueue_PutHonoursContext(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Put(context.Background(), domain.Job{ID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Put(ctx, domain.Job{ID: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Unfinished())
}

func TestQueue_GetHonoursContext(t *testing.T) {
	q := New(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Close(t *testing.T) {
	ctx := context.Background()
	q := New(2)
	require.NoError(t, q.Put(ctx, domain.Job{ID: "a"}))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Put(ctx, domain.Job{ID: "b"}), ErrClosed)

	job, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	_, err = q.Get(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_TaskDoneNeverNegative(t *testing.T) {
	q := New(1)
	q.TaskDone()
	assert.Zero(t, q.Unfinished())
	assert.Equal(t, 1, q.Cap())
}
