package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/model"
)

// Producer is the enqueue side used by the HTTP API, the CLI and the scheduler.
// Activation tasks go to the default queue, dispatch triggers to the mailing
// queue so a long run never delays an activation.
type Producer struct {
	Default     Queue
	Mailing     Queue
	MaxAttempts int
}

func (p *Producer) EnqueueActivate(ctx context.Context, userID int) error {
	return p.enqueue(ctx, p.Default, NewTask(TaskActivate, userID, p.MaxAttempts))
}

func (p *Producer) EnqueueDeactivate(ctx context.Context, userID int) error {
	return p.enqueue(ctx, p.Default, NewTask(TaskDeactivate, userID, p.MaxAttempts))
}

func (p *Producer) EnqueueTrigger(ctx context.Context, periodicity model.Periodicity) error {
	taskType, err := TriggerTask(periodicity)
	if err != nil {
		return err
	}
	return p.enqueue(ctx, p.Mailing, NewTask(taskType, 0, p.MaxAttempts))
}

func (p *Producer) enqueue(ctx context.Context, q Queue, task *Task) error {
	if err := q.Publish(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	logrus.WithFields(logrus.Fields{
		"queue":     q.Name(),
		"task_id":   task.ID,
		"task_type": task.Type,
		"user_id":   task.UserID,
	}).Info("task enqueued")
	return nil
}
