package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type KafkaPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type AMQPPublisher interface {
	Publish(ctx context.Context, queue, messageID string, body []byte) error
}

// KafkaNotifier enqueues notifications on a topic keyed by booking id.
type KafkaNotifier struct {
	producer KafkaPublisher
	topic    string
}

func NewKafkaNotifier(producer KafkaPublisher, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	return n.producer.Publish(ctx, n.topic, strconv.FormatInt(msg.BookingID, 10), msg)
}

// AMQPNotifier enqueues notifications on a durable RabbitMQ queue.
type AMQPNotifier struct {
	publisher AMQPPublisher
	queue     string
}

func NewAMQPNotifier(publisher AMQPPublisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, queue: queue}
}

func (n *AMQPNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.publisher.Publish(ctx, n.queue, msg.ID, body)
}

type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Deduper remembers which notification ids were already delivered.
type Deduper interface {
	MarkProcessed(ctx context.Context, id string) (bool, error)
	ForgetProcessed(ctx context.Context, id string) error
}

// Dispatcher turns queued messages into deliveries. Each notification id is
// delivered at most once while the dedup record lives.
type Dispatcher struct {
	sender Sender
	dedup  Deduper
	log    logrus.FieldLogger
}

// NewDispatcher builds a dispatcher. dedup may be nil.
func NewDispatcher(sender Sender, dedup Deduper, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{sender: sender, dedup: dedup, log: log}
}

// Handle delivers one message. A returned error asks the transport to retry.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var n domain.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		d.log.WithError(err).Error("dropping undecodable notification")
		return nil
	}
	log := d.log.WithFields(logrus.Fields{"notification_id": n.ID, "booking_id": n.BookingID})

	if d.dedup != nil && n.ID != "" {
		fresh, err := d.dedup.MarkProcessed(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("dedup notification %s: %w", n.ID, err)
		}
		if !fresh {
			log.Debug("notification already delivered")
			return nil
		}
	}

	if err := d.sender.Send(ctx, n); err != nil {
		if d.dedup != nil && n.ID != "" {
			if ferr := d.dedup.ForgetProcessed(context.WithoutCancel(ctx), n.ID); ferr != nil {
				log.WithError(ferr).Warn("could not clear dedup record")
			}
		}
		return fmt.Errorf("send notification %s: %w", n.ID, err)
	}

	log.Info("notification delivered")
	return nil
}
