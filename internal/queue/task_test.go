package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailer-backend/internal/model"
)

func TestTaskWireFormat(t *testing.T) {
	task := NewTask(TaskActivate, 7, 5)
	body, err := encodeTask(task)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	for _, key := range []string{"id", "type", "user_id", "attempts", "max_retries", "created_at"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "activate", raw["type"])

	decoded, err := decodeTask(body)
	require.NoError(t, err)
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, 7, decoded.UserID)
}

func TestDecodeTaskRejectsGarbage(t *testing.T) {
	_, err := decodeTask([]byte("{not json"))
	assert.True(t, IsPermanent(err))

	_, err = decodeTask([]byte(`{"id":"x"}`))
	assert.True(t, IsPermanent(err))
}

func TestTriggerTaskRoundTrip(t *testing.T) {
	for _, p := range []model.Periodicity{model.PeriodicityDaily, model.PeriodicityWeekly, model.PeriodicityMonthly} {
		tt, err := TriggerTask(p)
		require.NoError(t, err)
		back, ok := tt.Periodicity()
		require.True(t, ok)
		assert.Equal(t, p, back)
	}
	_, ok := TaskActivate.Periodicity()
	assert.False(t, ok)
}

func TestProducerRoutesTasks(t *testing.T) {
	def := NewInMemoryQueue("default", 1, 4, nil)
	mailing := NewInMemoryQueue("mailing_queue", 1, 4, nil)
	p := &Producer{Default: def, Mailing: mailing, MaxAttempts: 5}
	ctx := context.Background()

	require.NoError(t, p.EnqueueActivate(ctx, 7))
	require.NoError(t, p.EnqueueDeactivate(ctx, 8))
	require.NoError(t, p.EnqueueTrigger(ctx, model.PeriodicityWeekly))

	require.Len(t, def.tasks, 2)
	first, second := <-def.tasks, <-def.tasks
	assert.Equal(t, TaskActivate, first.Type)
	assert.Equal(t, 7, first.UserID)
	assert.Equal(t, 5, first.MaxRetries)
	assert.Equal(t, TaskDeactivate, second.Type)
	assert.Equal(t, 8, second.UserID)

	require.Len(t, mailing.tasks, 1)
	assert.Equal(t, TaskRunWeekly, (<-mailing.tasks).Type)

	assert.Error(t, p.EnqueueTrigger(ctx, model.Periodicity("hourly")))
}
