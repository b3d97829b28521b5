package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stopQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("boom")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job-1", Type: "deliver"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed in time")
	}
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestQueueObserverReportsFinalFailure(t *testing.T) {
	finals := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("always")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Observer: func(job Job, err error, final bool) {
			if final {
				assert.EqualError(t, err, "always")
				finals <- job
			}
		},
	})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.TryEnqueue(Job{ID: "job-2"}))

	select {
	case job := <-finals:
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not notified")
	}
}

func TestQueuePermanentErrorSkipsRetry(t *testing.T) {
	var runs int32
	finals := make(chan error, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&runs, 1)
		return Permanent(errors.New("report deleted"))
	}, QueueConfig{MaxRetries: 5, RetryDelay: time.Millisecond, Observer: func(_ Job, err error, final bool) {
		if final {
			finals <- err
		}
	}})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.TryEnqueue(Job{ID: "gone"}))
	select {
	case err := <-finals:
		assert.EqualError(t, err, "report deleted")
	case <-time.After(2 * time.Second):
		t.Fatal("observer not notified")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	finals := make(chan error, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		panic("nil map")
	}, QueueConfig{Observer: func(_ Job, err error, final bool) {
		if final {
			finals <- err
		}
	}})
	q.Start(context.Background())
	defer stopQueue(t, q)

	require.NoError(t, q.TryEnqueue(Job{ID: "p"}))
	select {
	case err := <-finals:
		assert.Contains(t, err.Error(), "nil map")
	case <-time.After(2 * time.Second):
		t.Fatal("panic not reported")
	}
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var handled int32
	release := make(chan struct{})
	q := NewQueue("drain", func(ctx context.Context, job Job) error {
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.TryEnqueue(Job{ID: id}))
	}
	close(release)
	stopQueue(t, q)

	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "late"}), ErrQueueClosed)
}

func TestQueueStopDeadlineCancelsHandlers(t *testing.T) {
	q := NewQueue("slow", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	require.NoError(t, q.TryEnqueue(Job{ID: "slow"}))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Stop(ctx), context.DeadlineExceeded)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: "x"}), ErrQueueClosed)
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "x"}), ErrQueueClosed)
	assert.NoError(t, q.Stop(context.Background()))
}

func TestQueueTryEnqueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		stopQueue(t, q)
	}()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "1"}))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "3"}), ErrQueueFull)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	q := NewQueue("b", nil, QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
}
