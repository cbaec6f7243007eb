// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailer-backend/internal/app"
	"github.com/unclebandit/mailer-backend/internal/controller"
)

func main() {
	configPath := flag.String("config", "", "directory holding config.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, *configPath, app.Needs{DB: true, Redis: true, Queues: true, LocalWorkers: true})
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap")
	}
	defer a.Close()

	router := controller.NewRouter(
		&controller.MailingController{Service: a.MailingService()},
		&controller.ContactController{Service: a.ContactService()},
	)

	cfg := a.Config.Server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Without a broker the API's own start/stop tasks are consumed here.
	var workers errgroup.Group
	workers.Go(func() error { return a.ConsumeLocal(ctx) })

	go func() {
		logrus.WithField("addr", srv.Addr).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown")
	}
	if err := workers.Wait(); err != nil {
		logrus.WithError(err).Error("in-process workers")
	}
}
