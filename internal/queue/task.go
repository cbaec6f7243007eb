package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailer-backend/internal/model"
)

type TaskType string

const (
	TaskActivate   TaskType = "activate"
	TaskDeactivate TaskType = "deactivate"
	TaskRunDaily   TaskType = "run_daily"
	TaskRunWeekly  TaskType = "run_weekly"
	TaskRunMonthly TaskType = "run_monthly"
)

// Task is the queue payload. MaxRetries caps the total number of attempts,
// the first one included.
type Task struct {
	ID         string    `json:"id"`
	Type       TaskType  `json:"type"`
	UserID     int       `json:"user_id,omitempty"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTask(taskType TaskType, userID, maxRetries int) *Task {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		UserID:     userID,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
}

// TriggerTask maps a cadence to the task that runs it.
func TriggerTask(p model.Periodicity) (TaskType, error) {
	switch p {
	case model.PeriodicityDaily:
		return TaskRunDaily, nil
	case model.PeriodicityWeekly:
		return TaskRunWeekly, nil
	case model.PeriodicityMonthly:
		return TaskRunMonthly, nil
	}
	return "", fmt.Errorf("no trigger for periodicity %q", p)
}

// Periodicity reports the cadence a trigger task runs.
func (t TaskType) Periodicity() (model.Periodicity, bool) {
	switch t {
	case TaskRunDaily:
		return model.PeriodicityDaily, true
	case TaskRunWeekly:
		return model.PeriodicityWeekly, true
	case TaskRunMonthly:
		return model.PeriodicityMonthly, true
	}
	return "", false
}

func encodeTask(t *Task) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTask(body []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, Permanent(fmt.Errorf("decode task: %w", err))
	}
	if t.Type == "" {
		return nil, Permanent(fmt.Errorf("task %q has no type", t.ID))
	}
	if t.MaxRetries < 1 {
		t.MaxRetries = 1
	}
	return &t, nil
}
