package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type AMQPOptions struct {
	URL              string
	Name             string
	DeadLetterSuffix string
	Workers          int
	Prefetch         int
	Retry            *RetryManager
}

// AMQPQueue is a durable RabbitMQ queue with a sibling dead-letter queue.
// A retry is a re-publish of the task with its attempt count bumped, so the
// broker never redelivers the same message in a tight loop.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	// amqp.Channel publishes are not safe for concurrent use.
	pubMu sync.Mutex

	name     string
	dlq      string
	workers  int
	prefetch int
	retry    *RetryManager
}

func DialAMQP(opts AMQPOptions) (*AMQPQueue, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q := &AMQPQueue{
		conn:     conn,
		ch:       ch,
		name:     opts.Name,
		dlq:      opts.Name + opts.DeadLetterSuffix,
		workers:  opts.Workers,
		prefetch: opts.Prefetch,
		retry:    opts.Retry,
	}
	if q.dlq == q.name {
		q.dlq = q.name + ".dlq"
	}
	if q.workers < 1 {
		q.workers = 1
	}
	if q.prefetch < q.workers {
		q.prefetch = q.workers
	}
	if q.retry == nil {
		q.retry = NewRetryManager(time.Second, 30*time.Second)
	}

	for _, name := range []string{q.name, q.dlq} {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			q.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	return q, nil
}

func (q *AMQPQueue) Name() string { return q.name }

func (q *AMQPQueue) Publish(ctx context.Context, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.publish(q.name, task, body, nil)
}

func (q *AMQPQueue) publish(routingKey string, task *Task, body []byte, headers amqp.Table) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.ch.Publish("", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Type:         string(task.Type),
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
}

func (q *AMQPQueue) Subscribe(ctx context.Context, h Handler) error {
	if err := q.ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	tag := q.name + "-" + uuid.NewString()
	msgs, err := q.ch.Consume(
		q.name,
		tag,
		false, // autoAck = false, ack after the handler settles
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					q.handle(ctx, d, h)
				}
			}
		}()
	}
	logrus.WithFields(logrus.Fields{"queue": q.name, "workers": q.workers}).Info("queue consumer started")

	<-ctx.Done()
	if err := q.ch.Cancel(tag, false); err != nil {
		logrus.WithError(err).WithField("queue", q.name).Warn("cancel consumer")
	}
	wg.Wait()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	task, err := decodeTask(d.Body)
	if err != nil {
		logrus.WithError(err).WithField("queue", q.name).Error("invalid task payload, dead-lettering")
		q.deadLetter(&Task{ID: d.MessageId}, d.Body, err)
		d.Ack(false)
		return
	}

	result, delay, err := attempt(ctx, q.name, task, h, q.retry)
	switch result {
	case outcomeDone:
		d.Ack(false)
	case outcomeDead:
		body, _ := encodeTask(task)
		q.deadLetter(task, body, err)
		d.Ack(false)
	case outcomeRetry:
		if !sleepCtx(ctx, delay) {
			d.Nack(false, true)
			return
		}
		body, encErr := encodeTask(task)
		if encErr == nil {
			encErr = q.publish(q.name, task, body, nil)
		}
		if encErr != nil {
			logrus.WithError(encErr).WithField("task_id", task.ID).Error("re-publish for retry failed")
			d.Nack(false, true)
			return
		}
		d.Ack(false)
	}
}

func (q *AMQPQueue) deadLetter(task *Task, body []byte, cause error) {
	headers := amqp.Table{
		"x-error":     cause.Error(),
		"x-failed-at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := q.publish(q.dlq, task, body, headers); err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Error("failed to dead-letter task")
	}
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*AMQPQueue)(nil)
