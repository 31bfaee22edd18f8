package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/notify"
	"github.com/Domenick1991/flightbooking/internal/rabbitmq"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/sirupsen/logrus"
)

// Notifications is the transport selected by notifications.driver.
type Notifications struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	producer *kafka.Producer
	consumer *kafka.Consumer
	amqp     *rabbitmq.Client
}

func OpenNotifications(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Notifications, error) {
	n := &Notifications{cfg: cfg, log: log.WithField("driver", cfg.Notifications.Driver)}

	switch cfg.Notifications.Driver {
	case config.NotifierKafka:
		n.producer = kafka.NewProducer(cfg.Kafka.Brokers, n.log)
	case config.NotifierRabbitMQ:
		client, err := rabbitmq.Dial(ctx, cfg.RabbitMQ.URL, n.log)
		if err != nil {
			return nil, err
		}
		if err := client.DeclareQueue(cfg.RabbitMQ.Queue); err != nil {
			client.Close()
			return nil, err
		}
		n.amqp = client
	default:
		return nil, fmt.Errorf("unknown notifications driver %q", cfg.Notifications.Driver)
	}
	return n, nil
}

func (n *Notifications) Notifier() booking.Notifier {
	if n.amqp != nil {
		return notify.NewAMQPNotifier(n.amqp, n.cfg.RabbitMQ.Queue)
	}
	return notify.NewKafkaNotifier(n.producer, n.cfg.Kafka.NotificationsTopic)
}

// Consume feeds queued notifications to handler until ctx is done.
func (n *Notifications) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	if n.amqp != nil {
		return n.amqp.Consume(ctx, n.cfg.RabbitMQ.Queue, "booking-notifier", handler)
	}
	n.consumer = kafka.NewConsumer(n.cfg.Kafka.Brokers, n.cfg.Kafka.GroupID, n.cfg.Kafka.NotificationsTopic, n.log)
	return n.consumer.Consume(ctx, handler)
}

func (n *Notifications) Check(ctx context.Context) error {
	if n.amqp != nil {
		return n.amqp.Check(ctx)
	}
	return n.producer.CheckConnection(ctx)
}

func (n *Notifications) Close() {
	if n.producer != nil {
		if err := n.producer.Close(); err != nil {
			n.log.WithError(err).Warn("close kafka producer")
		}
	}
	if n.consumer != nil {
		if err := n.consumer.Close(); err != nil {
			n.log.WithError(err).Warn("close kafka consumer")
		}
	}
	if n.amqp != nil {
		n.amqp.Close()
	}
}
