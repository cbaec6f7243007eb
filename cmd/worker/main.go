package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/app"
)

// The worker consumes both queues: activation tasks on the default queue and
// dispatch triggers on the mailing queue, each with its own goroutine pool.
func main() {
	configPath := flag.String("config", "", "directory holding config.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, *configPath, app.Needs{DB: true, Redis: true, Queues: true})
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap")
	}
	defer a.Close()

	if a.InProcess {
		logrus.Warn("no broker configured, tasks from other processes will not reach this worker")
	}

	logrus.WithField("concurrency", a.Config.Worker.Concurrency).Info("worker running, waiting for tasks")
	if err := a.Consume(ctx); err != nil {
		logrus.WithError(err).Error("worker stopped")
		return
	}
	logrus.Info("worker stopped")
}
