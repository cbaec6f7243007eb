package handler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/queue"
	"github.com/unclebandit/mailer-backend/internal/service"
)

type Activator interface {
	Activate(ctx context.Context, userID int) error
	Deactivate(ctx context.Context, userID int) error
}

type TriggerRunner interface {
	Run(ctx context.Context, p model.Periodicity) (*service.RunReport, error)
}

// TaskHandler routes queue tasks to the services that execute them.
type TaskHandler struct {
	Activation Activator
	Dispatch   TriggerRunner
}

// Handle is a queue.Handler.
func (h *TaskHandler) Handle(ctx context.Context, task *queue.Task) error {
	logrus.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
		"attempt":   task.Attempts,
	}).Debug("handling task")

	switch task.Type {
	case queue.TaskActivate:
		return h.handleActivation(ctx, task, h.Activation.Activate)
	case queue.TaskDeactivate:
		return h.handleActivation(ctx, task, h.Activation.Deactivate)
	}

	if p, ok := task.Type.Periodicity(); ok {
		report, err := h.Dispatch.Run(ctx, p)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"task_id":     task.ID,
			"periodicity": report.Periodicity,
			"selected":    report.Selected,
			"failed":      report.Failed,
			"skipped":     report.Skipped,
		}).Info("trigger task done")
		return nil
	}

	return queue.Permanent(fmt.Errorf("unknown task type %q", task.Type))
}

func (h *TaskHandler) handleActivation(ctx context.Context, task *queue.Task, apply func(context.Context, int) error) error {
	if task.UserID <= 0 {
		return queue.Permanent(fmt.Errorf("task %s: invalid user_id %d", task.ID, task.UserID))
	}
	return apply(ctx, task.UserID)
}
