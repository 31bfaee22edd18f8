package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	maxDialAttempts    = 10
	publishTimeout     = 5 * time.Second
	defaultMaxAttempts = 5
	defaultRetryDelay  = time.Second
)

// Channel is the subset of *amqp.Channel the client needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type Client struct {
	mu          sync.RWMutex
	conn        *amqp.Connection
	ch          Channel
	log         logrus.FieldLogger
	closed      bool
	retryDelay  time.Duration
	maxAttempts int
}

func newClient(conn *amqp.Connection, ch Channel, log logrus.FieldLogger) *Client {
	return &Client{conn: conn, ch: ch, log: log, retryDelay: defaultRetryDelay, maxAttempts: defaultMaxAttempts}
}

// Dial connects with backoff, giving up after maxDialAttempts.
func Dial(ctx context.Context, url string, log logrus.FieldLogger) (*Client, error) {
	delay := time.Second
	for attempt := 1; ; attempt++ {
		conn, ch, err := connect(url)
		if err == nil {
			log.WithField("attempt", attempt).Info("rabbitmq connected")
			return newClient(conn, ch, log), nil
		}
		if attempt == maxDialAttempts {
			return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempt, err)
		}
		log.WithError(err).WithField("attempt", attempt).Warn("rabbitmq connection failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*3/2, 30*time.Second)
	}
}

func connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}
	return conn, ch, nil
}

func NewWithChannel(ch Channel, log logrus.FieldLogger) *Client {
	return newClient(nil, ch, log)
}

func (c *Client) channel() (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.ch == nil {
		return nil, errors.New("rabbitmq channel not available")
	}
	return c.ch, nil
}

func (c *Client) DeclareQueue(name string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends a persistent JSON message to queue through the default exchange.
func (c *Client) Publish(ctx context.Context, queue, messageID string, body []byte) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Consume blocks handling deliveries until ctx is done or the channel closes.
// A failing delivery is retried in place with a delay; after maxAttempts it is
// rejected without requeue, which dead-letters it when the queue has a
// dead-letter exchange.
func (c *Client) Consume(ctx context.Context, queue, consumer string, handler func(context.Context, []byte) error) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	log := c.log.WithField("queue", queue)
	log.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				log.Info("consumer stopped")
				return nil
			}
			if !c.handle(ctx, log, d, handler) {
				return nil
			}
		}
	}
}

// handle settles d and reports false when ctx ended first.
func (c *Client) handle(ctx context.Context, log logrus.FieldLogger, d amqp.Delivery, handler func(context.Context, []byte) error) bool {
	log = log.WithField("message_id", d.MessageId)
	for attempt := 1; ; attempt++ {
		err := handler(ctx, d.Body)
		if err == nil {
			_ = d.Ack(false)
			return true
		}
		if attempt >= c.maxAttempts {
			log.WithError(err).WithField("attempts", attempt).Error("message rejected after repeated failures")
			_ = d.Nack(false, false)
			return true
		}
		log.WithError(err).WithField("attempt", attempt).Warn("message handling failed, retrying")

		select {
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

// Check reports a closed connection.
func (c *Client) Check(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || (c.conn != nil && c.conn.IsClosed()) {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
