package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailer-backend/internal/app"
	"github.com/unclebandit/mailer-backend/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "directory holding config.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, *configPath, app.Needs{Queues: true, LocalWorkers: true})
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap")
	}
	defer a.Close()

	s, err := scheduler.New(a.Config.Scheduler, a.Location, a.Producer())
	if err != nil {
		logrus.WithError(err).Fatal("scheduler")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { return a.ConsumeLocal(gctx) })
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("scheduler stopped")
	}
}
