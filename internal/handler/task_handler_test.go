package handler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unclebandit/mailer-backend/internal/handler"
	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/queue"
	"github.com/unclebandit/mailer-backend/internal/service"
)

type MockActivator struct {
	mu          sync.Mutex
	activated   []int
	deactivated []int
	err         error
	calls       int
}

func (a *MockActivator) Activate(ctx context.Context, userID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.activated = append(a.activated, userID)
	return a.err
}

func (a *MockActivator) Deactivate(ctx context.Context, userID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.deactivated = append(a.deactivated, userID)
	return a.err
}

func (a *MockActivator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type MockRunner struct {
	runs []model.Periodicity
	err  error
}

func (r *MockRunner) Run(ctx context.Context, p model.Periodicity) (*service.RunReport, error) {
	r.runs = append(r.runs, p)
	if r.err != nil {
		return nil, r.err
	}
	return &service.RunReport{Periodicity: p}, nil
}

func TestHandleRoutesTaskTypes(t *testing.T) {
	act := &MockActivator{}
	runner := &MockRunner{}
	h := &handler.TaskHandler{Activation: act, Dispatch: runner}
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, queue.NewTask(queue.TaskActivate, 7, 5)))
	require.NoError(t, h.Handle(ctx, queue.NewTask(queue.TaskDeactivate, 8, 5)))
	for _, tt := range []queue.TaskType{queue.TaskRunDaily, queue.TaskRunWeekly, queue.TaskRunMonthly} {
		require.NoError(t, h.Handle(ctx, queue.NewTask(tt, 0, 5)))
	}

	assert.Equal(t, []int{7}, act.activated)
	assert.Equal(t, []int{8}, act.deactivated)
	assert.Equal(t, []model.Periodicity{model.PeriodicityDaily, model.PeriodicityWeekly, model.PeriodicityMonthly}, runner.runs)
}

func TestHandleRejectsBadTasks(t *testing.T) {
	h := &handler.TaskHandler{Activation: &MockActivator{}, Dispatch: &MockRunner{}}

	err := h.Handle(context.Background(), queue.NewTask("reindex", 0, 5))
	assert.True(t, queue.IsPermanent(err))

	err = h.Handle(context.Background(), queue.NewTask(queue.TaskActivate, 0, 5))
	assert.True(t, queue.IsPermanent(err))
}

func TestHandlePropagatesTriggerError(t *testing.T) {
	storeDown := errors.New("connection refused")
	h := &handler.TaskHandler{Activation: &MockActivator{}, Dispatch: &MockRunner{err: storeDown}}

	err := h.Handle(context.Background(), queue.NewTask(queue.TaskRunDaily, 0, 5))
	assert.ErrorIs(t, err, storeDown)
	assert.False(t, queue.IsPermanent(err))
}

// A failing activation is retried up to the attempt budget and then dead-lettered.
func TestActivationRetriedThenDeadLettered(t *testing.T) {
	defer goleak.VerifyNone(t)

	act := &MockActivator{err: errors.New("connection refused")}
	h := &handler.TaskHandler{Activation: act, Dispatch: &MockRunner{}}
	q := queue.NewInMemoryQueue("default", 1, 4, queue.NewRetryManager(time.Millisecond, 2*time.Millisecond))
	producer := &queue.Producer{Default: q, Mailing: q, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Subscribe(ctx, h.Handle)
		close(done)
	}()

	require.NoError(t, producer.EnqueueDeactivate(context.Background(), 7))
	assert.Eventually(t, func() bool { return len(q.FailedTasks()) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 5, act.callCount())
	failed := q.FailedTasks()[0]
	assert.Equal(t, queue.TaskDeactivate, failed.Task.Type)
	assert.Equal(t, 5, failed.Task.Attempts)
}
