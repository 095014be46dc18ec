package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Stop()

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(context.Background(), func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(500), atomic.LoadInt64(&count))
	assert.Equal(t, 4, pool.Workers())
}

func TestWorkerPool_StopDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1)

	var count int64
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			atomic.AddInt64(&count, 1)
		}))
	}
	pool.Stop()

	assert.Equal(t, int64(5), atomic.LoadInt64(&count))
	assert.ErrorIs(t, pool.Submit(context.Background(), func() {}), ErrPoolStopped)

	// Stop is idempotent
	pool.Stop()
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-block }))

	// fill the queue behind the blocked worker
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func() {}), context.Canceled)

	close(block)
}

func TestNewWorkerPool_DefaultWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Stop()
	assert.Equal(t, 16, pool.Workers())
}
