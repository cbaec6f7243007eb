package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/config"
	"github.com/unclebandit/mailer-backend/internal/model"
)

// DeliveryPublisher fans every appended delivery log out to downstream consumers.
type DeliveryPublisher interface {
	PublishDelivery(ctx context.Context, l model.DeliveryLog) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, a no-op otherwise.
func New(cfg config.KafkaConfig) DeliveryPublisher {
	if !cfg.Enabled() {
		logrus.Info("kafka not configured, delivery events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg)
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	logrus.WithFields(logrus.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("kafka delivery publisher configured")
	return &KafkaPublisher{writer: writer}
}

// deliveryMessage keys by mailing so one mailing's events stay ordered.
func deliveryMessage(l model.DeliveryLog) (kafka.Message, error) {
	value, err := json.Marshal(l)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.Itoa(l.MailingID)),
		Value: value,
		Time:  time.Now(),
	}, nil
}

func (p *KafkaPublisher) PublishDelivery(ctx context.Context, l model.DeliveryLog) error {
	msg, err := deliveryMessage(l)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishDelivery(context.Context, model.DeliveryLog) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
