// Package app wires configuration, stores and queues into the services each
// process runs.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailer-backend/internal/cache"
	"github.com/unclebandit/mailer-backend/internal/config"
	"github.com/unclebandit/mailer-backend/internal/db"
	"github.com/unclebandit/mailer-backend/internal/events"
	"github.com/unclebandit/mailer-backend/internal/handler"
	"github.com/unclebandit/mailer-backend/internal/logging"
	"github.com/unclebandit/mailer-backend/internal/mail"
	"github.com/unclebandit/mailer-backend/internal/queue"
	"github.com/unclebandit/mailer-backend/internal/repository"
	"github.com/unclebandit/mailer-backend/internal/service"
)

// Needs selects the backends a process connects to.
type Needs struct {
	DB     bool
	Redis  bool
	Queues bool
	// LocalWorkers opens the database as well when the queues turn out to be
	// in-process, so the process can consume what it publishes.
	LocalWorkers bool
}

type App struct {
	Config   *config.Config
	Location *time.Location
	DB       *sql.DB
	Redis    *redis.Client
	Default  queue.Queue
	Mailing  queue.Queue
	// InProcess is set when no broker is configured: tasks published here
	// are only ever seen by consumers running in this process.
	InProcess bool

	closers []func() error
}

func Bootstrap(ctx context.Context, configPath string, needs Needs) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Location: loc}

	if needs.Queues && needs.LocalWorkers && cfg.RabbitMQ.URL == "" {
		needs.DB = true
	}
	if needs.DB {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)
	}
	if needs.Redis {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
	}
	if needs.Queues {
		if err := a.openQueues(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openQueues() error {
	rmq := a.Config.RabbitMQ
	retry := queue.NewRetryManager(a.Config.Activation.BaseDelay, a.Config.Activation.MaxDelay)
	workers := a.Config.Worker.Concurrency

	if rmq.URL == "" {
		logrus.Warn("rabbitmq.url not set, using in-process queues")
		a.Default = queue.NewInMemoryQueue(rmq.DefaultQueue, workers, 128, retry)
		a.Mailing = queue.NewInMemoryQueue(rmq.MailingQueue, workers, 128, retry)
		a.closers = append(a.closers, a.Default.Close, a.Mailing.Close)
		a.InProcess = true
		return nil
	}

	for _, target := range []struct {
		name string
		dst  *queue.Queue
	}{
		{rmq.DefaultQueue, &a.Default},
		{rmq.MailingQueue, &a.Mailing},
	} {
		q, err := queue.DialAMQP(queue.AMQPOptions{
			URL:              rmq.URL,
			Name:             target.name,
			DeadLetterSuffix: rmq.DeadLetterSuffix,
			Workers:          workers,
			Prefetch:         rmq.Prefetch,
			Retry:            retry,
		})
		if err != nil {
			return fmt.Errorf("queue %s: %w", target.name, err)
		}
		*target.dst = q
		a.closers = append(a.closers, q.Close)
	}
	return nil
}

func (a *App) Producer() *queue.Producer {
	return &queue.Producer{
		Default:     a.Default,
		Mailing:     a.Mailing,
		MaxAttempts: a.Config.Activation.MaxAttempts,
	}
}

func (a *App) statsCache() cache.StatsCache {
	if a.Redis == nil {
		return nil
	}
	return cache.NewRedisStatsCache(a.Redis, a.Config.Cache.StatsTTL)
}

func (a *App) MailingService() *service.MailingService {
	return &service.MailingService{
		Mailings: &repository.MailingRepository{DB: a.DB},
		Clients:  &repository.ClientRepository{DB: a.DB},
		Messages: &repository.MessageRepository{DB: a.DB},
		Logs:     &repository.DeliveryLogRepository{DB: a.DB},
		Stats:    a.statsCache(),
		Queue:    a.Producer(),
		Location: a.Location,
	}
}

func (a *App) ContactService() *service.ContactService {
	return &service.ContactService{
		Clients:  &repository.ClientRepository{DB: a.DB},
		Messages: &repository.MessageRepository{DB: a.DB},
		Stats:    a.statsCache(),
	}
}

func (a *App) ActivationService() *service.ActivationService {
	return &service.ActivationService{
		Users:    &repository.UserRepository{DB: a.DB},
		Mailings: &repository.MailingRepository{DB: a.DB},
		Stats:    a.statsCache(),
	}
}

// Dispatcher builds the trigger with an SMTP executor and, when Kafka is
// configured, a delivery event publisher.
func (a *App) Dispatcher() *service.Dispatcher {
	cfg := a.Config
	publisher := events.New(cfg.Kafka)
	a.closers = append(a.closers, publisher.Close)

	mailings := &repository.MailingRepository{DB: a.DB}
	d := &service.Dispatcher{
		Mailings: mailings,
		Executor: &service.Executor{
			Mailings:    mailings,
			Messages:    &repository.MessageRepository{DB: a.DB},
			Logs:        &repository.DeliveryLogRepository{DB: a.DB},
			Sender:      mail.NewSMTPSender(cfg.SMTP, cfg.Delivery.SendTimeout),
			Events:      publisher,
			From:        cfg.SMTP.From,
			SendTimeout: cfg.Delivery.SendTimeout,
			Location:    a.Location,
		},
		LockTTL: cfg.Scheduler.LockTTL,
	}
	if a.Redis != nil {
		d.Locker = cache.NewRedisLocker(a.Redis)
	}
	return d
}

func (a *App) TaskHandler() *handler.TaskHandler {
	return &handler.TaskHandler{
		Activation: a.ActivationService(),
		Dispatch:   a.Dispatcher(),
	}
}

// Consume runs the task handler on both queues until ctx is cancelled.
func (a *App) Consume(ctx context.Context) error {
	if a.Default == nil || a.Mailing == nil {
		return fmt.Errorf("consume: queues not opened")
	}
	if a.DB == nil {
		return fmt.Errorf("consume: task handlers need the database")
	}
	h := a.TaskHandler()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Default.Subscribe(gctx, h.Handle) })
	g.Go(func() error { return a.Mailing.Subscribe(gctx, h.Handle) })
	return g.Wait()
}

// ConsumeLocal is Consume for processes that normally only publish. It
// returns at once when a broker carries the tasks to a worker.
func (a *App) ConsumeLocal(ctx context.Context) error {
	if !a.InProcess {
		return nil
	}
	logrus.Warn("no broker configured, consuming tasks in this process")
	return a.Consume(ctx)
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.WithError(err).Warn("close")
		}
	}
	a.closers = nil
}
