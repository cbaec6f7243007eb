package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fastRetry() *RetryManager {
	return NewRetryManager(time.Millisecond, 4*time.Millisecond)
}

// consume runs Subscribe in the background and returns a stop func that
// cancels it and waits for every worker to exit.
func consume(t *testing.T, q Queue, h Handler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Subscribe(ctx, h) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("subscribe did not return after cancel")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("default", 2, 8, fastRetry())
	var calls atomic.Int32
	succeeded := make(chan *Task, 1)
	stop := consume(t, q, func(ctx context.Context, task *Task) error {
		if calls.Add(1) < 3 {
			return errors.New("db unavailable")
		}
		succeeded <- task
		return nil
	})

	require.NoError(t, q.Publish(context.Background(), NewTask(TaskActivate, 7, 5)))

	select {
	case task := <-succeeded:
		assert.Equal(t, 3, task.Attempts)
		assert.Equal(t, 7, task.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	stop()
	assert.Empty(t, q.FailedTasks())
}

func TestInMemoryQueueDeadLettersAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("default", 1, 8, fastRetry())
	var calls atomic.Int32
	stop := consume(t, q, func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return errors.New("connection reset")
	})

	require.NoError(t, q.Publish(context.Background(), NewTask(TaskDeactivate, 7, 5)))
	waitFor(t, func() bool { return len(q.FailedTasks()) == 1 })
	stop()

	assert.Equal(t, int32(5), calls.Load())
	failed := q.FailedTasks()[0]
	assert.Equal(t, 5, failed.Task.Attempts)
	assert.Equal(t, "connection reset", failed.Error)
}

func TestInMemoryQueuePermanentErrorIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("default", 1, 8, fastRetry())
	var calls atomic.Int32
	stop := consume(t, q, func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return Permanent(errors.New("unknown task type"))
	})

	require.NoError(t, q.Publish(context.Background(), NewTask("bogus", 0, 5)))
	waitFor(t, func() bool { return len(q.FailedTasks()) == 1 })
	stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestInMemoryQueueRecoversHandlerPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("mailing_queue", 1, 8, fastRetry())
	stop := consume(t, q, func(ctx context.Context, task *Task) error {
		panic("boom")
	})

	require.NoError(t, q.Publish(context.Background(), NewTask(TaskRunDaily, 0, 2)))
	waitFor(t, func() bool { return len(q.FailedTasks()) == 1 })
	stop()

	assert.Contains(t, q.FailedTasks()[0].Error, "panicked: boom")
}

func TestInMemoryQueuePublishCopiesTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("default", 1, 1, fastRetry())
	task := NewTask(TaskActivate, 1, 5)
	require.NoError(t, q.Publish(context.Background(), task))

	seen := make(chan int, 1)
	stop := consume(t, q, func(ctx context.Context, got *Task) error {
		seen <- got.Attempts
		return nil
	})
	assert.Equal(t, 1, <-seen)
	stop()
	assert.Equal(t, 0, task.Attempts)
}

func TestInMemoryQueueClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewInMemoryQueue("default", 3, 0, fastRetry())
	done := make(chan struct{})
	go func() {
		_ = q.Subscribe(context.Background(), func(context.Context, *Task) error { return nil })
		close(done)
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	<-done
	assert.ErrorIs(t, q.Publish(context.Background(), NewTask(TaskActivate, 1, 1)), ErrClosed)
}

func TestInMemoryQueueCloseDeadLettersPending(t *testing.T) {
	q := NewInMemoryQueue("default", 1, 2, fastRetry())
	p := &Producer{Default: q, Mailing: q, MaxAttempts: 5}
	ctx := context.Background()

	require.NoError(t, p.EnqueueDeactivate(ctx, 7))
	require.NoError(t, p.EnqueueDeactivate(ctx, 8))

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.EnqueueDeactivate(full, 9), context.DeadlineExceeded)

	require.NoError(t, q.Close())

	failed := q.FailedTasks()
	require.Len(t, failed, 2)
	assert.Equal(t, 7, failed[0].Task.UserID)
	assert.Equal(t, 8, failed[1].Task.UserID)
	assert.Equal(t, ErrClosed.Error(), failed[0].Error)
}

func TestRetryManagerBackoff(t *testing.T) {
	r := NewRetryManager(time.Second, 30*time.Second)
	r.jitter = false

	assert.Equal(t, time.Second, r.Backoff(1))
	assert.Equal(t, 2*time.Second, r.Backoff(2))
	assert.Equal(t, 4*time.Second, r.Backoff(3))
	assert.Equal(t, 16*time.Second, r.Backoff(5))
	assert.Equal(t, 30*time.Second, r.Backoff(6))
	assert.Equal(t, 30*time.Second, r.Backoff(40))
}

func TestRetryManagerJitterStaysInBounds(t *testing.T) {
	r := NewRetryManager(time.Second, time.Minute)
	for i := 0; i < 100; i++ {
		d := r.Backoff(3)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestRetryManagerShouldRetry(t *testing.T) {
	r := fastRetry()
	task := &Task{MaxRetries: 5}

	task.Attempts = 1
	ok, _ := r.ShouldRetry(task, errors.New("timeout"))
	assert.True(t, ok)

	task.Attempts = 5
	ok, _ = r.ShouldRetry(task, errors.New("timeout"))
	assert.False(t, ok)

	task.Attempts = 1
	ok, _ = r.ShouldRetry(task, Permanent(errors.New("bad payload")))
	assert.False(t, ok)

	ok, _ = r.ShouldRetry(task, nil)
	assert.False(t, ok)
}

func TestPermanentWrapsCause(t *testing.T) {
	cause := errors.New("user not found")
	err := Permanent(cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanent(err))
	assert.True(t, IsPermanent(errors.Join(errors.New("ctx"), err)))
	assert.Nil(t, Permanent(nil))
}
