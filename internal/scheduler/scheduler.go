package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/config"
	"github.com/unclebandit/mailer-backend/internal/model"
)

type TriggerPublisher interface {
	EnqueueTrigger(ctx context.Context, p model.Periodicity) error
}

// Scheduler is the beat process: it only publishes trigger tasks, the workers
// do the dispatching.
type Scheduler struct {
	cron      *cron.Cron
	publisher TriggerPublisher
	entries   map[model.Periodicity]cron.EntryID
}

func New(cfg config.SchedulerConfig, loc *time.Location, publisher TriggerPublisher) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		publisher: publisher,
		entries:   map[model.Periodicity]cron.EntryID{},
	}

	specs := []struct {
		p    model.Periodicity
		spec string
	}{
		{model.PeriodicityDaily, cfg.Daily},
		{model.PeriodicityWeekly, cfg.Weekly},
		{model.PeriodicityMonthly, cfg.Monthly},
	}
	for _, sp := range specs {
		p := sp.p
		id, err := s.cron.AddFunc(sp.spec, func() { s.fire(p) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s trigger %q: %w", p, sp.spec, err)
		}
		s.entries[p] = id
	}
	return s, nil
}

func (s *Scheduler) fire(p model.Periodicity) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := logrus.WithField("periodicity", p)
	if err := s.publisher.EnqueueTrigger(ctx, p); err != nil {
		log.WithError(err).Error("publish dispatch trigger")
		return
	}
	log.Info("dispatch trigger published")
}

// Next reports when the trigger for p fires next. Zero before Run.
func (s *Scheduler) Next(p model.Periodicity) time.Time {
	return s.cron.Entry(s.entries[p]).Next
}

// Run blocks until ctx is done, then waits for a firing in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	for p := range s.entries {
		logrus.WithFields(logrus.Fields{"periodicity": p, "next": s.Next(p)}).Info("trigger scheduled")
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logrus.Info("scheduler stopped")
	return nil
}
