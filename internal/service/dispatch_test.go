package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/service"
)

// scriptedExecutor records calls and misbehaves for chosen mailing ids.
type scriptedExecutor struct {
	calls  []int
	fail   map[int]error
	panics map[int]bool
}

func (e *scriptedExecutor) Dispatch(ctx context.Context, m *model.Mailing) error {
	e.calls = append(e.calls, m.ID)
	if e.panics[m.ID] {
		panic("nil message body")
	}
	return e.fail[m.ID]
}

func seedDispatchMailings(repo *MockMailingRepo) {
	base := janMailing(0, 7)
	variants := []func(m *model.Mailing){
		func(m *model.Mailing) { m.ID = 1 },
		func(m *model.Mailing) { m.ID = 2 },
		func(m *model.Mailing) { m.ID = 3 },
		func(m *model.Mailing) { m.ID = 4; m.Periodicity = model.PeriodicityWeekly },
		func(m *model.Mailing) { m.ID = 5; m.IsActive = false },
		func(m *model.Mailing) { m.ID = 6; m.Status = model.StatusCreated },
		func(m *model.Mailing) { m.ID = 7; m.Status = model.StatusCompleted },
		func(m *model.Mailing) { m.ID = 8; m.Periodicity = model.PeriodicityMonthly },
	}
	for _, v := range variants {
		m := *base
		v(&m)
		repo.add(&m)
	}
}

func TestRunDailySelectsOnlyStartedActiveDaily(t *testing.T) {
	repo := NewMockMailingRepo()
	seedDispatchMailings(repo)
	exec := &scriptedExecutor{}
	d := &service.Dispatcher{Mailings: repo, Executor: exec}

	report, err := d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, exec.calls)
	assert.Equal(t, &service.RunReport{Periodicity: model.PeriodicityDaily, Selected: 3, Dispatched: 3}, report)
}

func TestRunWeeklyAndMonthly(t *testing.T) {
	repo := NewMockMailingRepo()
	seedDispatchMailings(repo)

	exec := &scriptedExecutor{}
	d := &service.Dispatcher{Mailings: repo, Executor: exec}
	_, err := d.RunWeekly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4}, exec.calls)

	exec.calls = nil
	_, err = d.RunMonthly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{8}, exec.calls)
}

func TestRunIsolatesFailingMailings(t *testing.T) {
	repo := NewMockMailingRepo()
	seedDispatchMailings(repo)
	exec := &scriptedExecutor{
		fail:   map[int]error{1: errors.New("message 11 not found")},
		panics: map[int]bool{2: true},
	}
	d := &service.Dispatcher{Mailings: repo, Executor: exec}

	report, err := d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, exec.calls)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 2, report.Failed)
}

func TestRunSelectionFailureIsReturned(t *testing.T) {
	repo := NewMockMailingRepo()
	repo.findErr = errStoreDown
	d := &service.Dispatcher{Mailings: repo, Executor: &scriptedExecutor{}}

	_, err := d.RunDaily(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestRunSkipsWhenLockIsHeld(t *testing.T) {
	repo := NewMockMailingRepo()
	seedDispatchMailings(repo)
	exec := &scriptedExecutor{}
	locker := &MockLocker{held: map[string]bool{"mailer:dispatch:daily": true}}
	d := &service.Dispatcher{Mailings: repo, Executor: exec, Locker: locker, LockTTL: time.Minute}

	report, err := d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, exec.calls)

	// Other cadences have their own lock, and it is released afterwards.
	_, err = d.RunWeekly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4}, exec.calls)
	assert.False(t, locker.held["mailer:dispatch:weekly"])
}

// The executor and the trigger together, on the January scenario.
func TestRunDailyEndToEnd(t *testing.T) {
	f := newExecutorFixture(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	f.mailings.add(janMailing(1, 7))
	d := &service.Dispatcher{Mailings: f.mailings, Executor: f.exec}

	report, err := d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dispatched)
	assert.Len(t, f.logs.all(), 3)

	// A second firing inside the window re-sends to every recipient.
	_, err = d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.logs.all(), 6)

	f.exec.Now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err = d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.logs.all(), 6)
	assert.Equal(t, model.StatusCompleted, f.mailings.get(1).Status)

	// Completed mailings are no longer selected.
	report, err = d.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
}
