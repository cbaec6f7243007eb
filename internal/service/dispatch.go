package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/cache"
	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/repository"
)

// MailingExecutor is the per-mailing step a trigger run drives.
type MailingExecutor interface {
	Dispatch(ctx context.Context, m *model.Mailing) error
}

type RunReport struct {
	Periodicity model.Periodicity `json:"periodicity"`
	Selected    int               `json:"selected"`
	Dispatched  int               `json:"dispatched"`
	Failed      int               `json:"failed"`
	Skipped     bool              `json:"skipped,omitempty"`
}

// Dispatcher is the periodic trigger: it picks every started, active mailing
// of one cadence and runs the executor on each in turn.
type Dispatcher struct {
	Mailings repository.MailingRepositoryInterface
	Executor MailingExecutor
	Locker   cache.Locker
	LockTTL  time.Duration
}

func (d *Dispatcher) RunDaily(ctx context.Context) (*RunReport, error) {
	return d.Run(ctx, model.PeriodicityDaily)
}

func (d *Dispatcher) RunWeekly(ctx context.Context) (*RunReport, error) {
	return d.Run(ctx, model.PeriodicityWeekly)
}

func (d *Dispatcher) RunMonthly(ctx context.Context) (*RunReport, error) {
	return d.Run(ctx, model.PeriodicityMonthly)
}

// Run returns an error only when the run could not start. Failures of single
// mailings are counted in the report and never stop the others.
func (d *Dispatcher) Run(ctx context.Context, p model.Periodicity) (*RunReport, error) {
	report := &RunReport{Periodicity: p}
	log := logrus.WithField("periodicity", p)

	if d.Locker != nil {
		release, ok, err := d.Locker.TryLock(ctx, "mailer:dispatch:"+string(p), d.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("take %s dispatch lock: %w", p, err)
		}
		if !ok {
			log.Warn("another dispatch run holds the lock, skipping")
			report.Skipped = true
			return report, nil
		}
		defer release()
	}

	mailings, err := d.Mailings.FindForDispatch(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("select %s mailings: %w", p, err)
	}
	report.Selected = len(mailings)

	for _, m := range mailings {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("dispatch run interrupted")
			return report, nil
		}
		if err := d.dispatchOne(ctx, m); err != nil {
			report.Failed++
			log.WithError(err).WithField("mailing_id", m.ID).Error("mailing dispatch failed")
			continue
		}
		report.Dispatched++
	}

	log.WithFields(logrus.Fields{
		"selected":   report.Selected,
		"dispatched": report.Dispatched,
		"failed":     report.Failed,
	}).Info("dispatch run finished")
	return report, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, m *model.Mailing) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic dispatching mailing %d: %v", m.ID, r)
		}
	}()
	return d.Executor.Dispatch(ctx, m)
}
