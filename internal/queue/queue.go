package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("queue closed")

// Handler processes one task. A nil return acknowledges it.
type Handler func(ctx context.Context, task *Task) error

// Queue is one named task queue. Subscribe blocks until ctx is cancelled or
// the queue is closed.
type Queue interface {
	Name() string
	Publish(ctx context.Context, task *Task) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// FailedTask is a dead-lettered task with the error that finished it.
type FailedTask struct {
	Task     *Task     `json:"task"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// attempt runs the handler once and classifies the result.
func attempt(ctx context.Context, queueName string, task *Task, h Handler, retry *RetryManager) (outcome, time.Duration, error) {
	task.Attempts++
	log := logrus.WithFields(logrus.Fields{
		"queue":     queueName,
		"task_id":   task.ID,
		"task_type": task.Type,
		"attempt":   task.Attempts,
	})

	err := call(ctx, h, task)
	if err == nil {
		log.Debug("task done")
		return outcomeDone, 0, nil
	}

	ok, delay := retry.ShouldRetry(task, err)
	if ok {
		log.WithError(err).WithField("retry_in", delay).Warn("task failed, will retry")
		return outcomeRetry, delay, err
	}
	if IsPermanent(err) {
		log.WithError(err).Error("task failed permanently, dead-lettering")
	} else {
		log.WithError(err).WithField("max_retries", task.MaxRetries).Error("task retries exhausted, dead-lettering")
	}
	return outcomeDead, 0, err
}

func call(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return h(ctx, task)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// InMemoryQueue runs tasks on a fixed pool of goroutines inside the process.
// Retries happen on the same worker after the backoff delay.
type InMemoryQueue struct {
	name    string
	workers int
	retry   *RetryManager
	tasks   chan *Task

	mu       sync.Mutex
	failed   []FailedTask
	done     chan struct{}
	doneOnce sync.Once
}

func NewInMemoryQueue(name string, workers, buffer int, retry *RetryManager) *InMemoryQueue {
	if workers < 1 {
		workers = 1
	}
	if retry == nil {
		retry = NewRetryManager(time.Second, 30*time.Second)
	}
	return &InMemoryQueue{
		name:    name,
		workers: workers,
		retry:   retry,
		tasks:   make(chan *Task, buffer),
		done:    make(chan struct{}),
	}
}

func (q *InMemoryQueue) Name() string { return q.name }

// Publish enqueues a copy of task.
func (q *InMemoryQueue) Publish(ctx context.Context, task *Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	cp := *task
	select {
	case q.tasks <- &cp:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Subscribe(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, h)
		}()
	}
	logrus.WithFields(logrus.Fields{"queue": q.name, "workers": q.workers}).Info("queue consumer started")
	wg.Wait()
	return nil
}

func (q *InMemoryQueue) work(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case task := <-q.tasks:
			q.run(ctx, task, h)
		}
	}
}

func (q *InMemoryQueue) run(ctx context.Context, task *Task, h Handler) {
	for {
		result, delay, err := attempt(ctx, q.name, task, h, q.retry)
		switch result {
		case outcomeDone:
			return
		case outcomeDead:
			q.deadLetter(task, err)
			return
		}
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func (q *InMemoryQueue) deadLetter(task *Task, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, FailedTask{Task: task, Error: err.Error(), FailedAt: time.Now()})
}

// FailedTasks returns the dead-lettered tasks in failure order.
func (q *InMemoryQueue) FailedTasks() []FailedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailedTask, len(q.failed))
	copy(out, q.failed)
	return out
}

// Close stops the workers. Tasks still buffered are dead-lettered with
// ErrClosed so they show up in FailedTasks instead of vanishing.
func (q *InMemoryQueue) Close() error {
	q.doneOnce.Do(func() {
		close(q.done)
		dropped := 0
		for {
			select {
			case task := <-q.tasks:
				q.deadLetter(task, ErrClosed)
				dropped++
			default:
				if dropped > 0 {
					logrus.WithFields(logrus.Fields{"queue": q.name, "tasks": dropped}).Warn("queue closed with pending tasks, dead-lettered")
				}
				return
			}
		}
	})
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
