package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultMaxAttempts bounds how often one message is handled before it is
// committed as dropped.
const defaultMaxAttempts = 5

type Consumer struct {
	reader      MessageReader
	log         logrus.FieldLogger
	retryDelay  time.Duration
	maxAttempts int
}

func NewConsumer(brokers []string, groupID, topic string, log logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(reader MessageReader, log logrus.FieldLogger) *Consumer {
	return &Consumer{reader: reader, log: log, retryDelay: time.Second, maxAttempts: defaultMaxAttempts}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume hands every message to handler and commits it once handled. A
// failing message is retried up to maxAttempts times, then committed and
// dropped so it does not hold back the rest of the partition.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if !c.handle(ctx, msg, handler) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle reports false when ctx ended before the message was settled.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(context.Context, []byte) error) bool {
	log := c.log.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Value)
		if err == nil {
			return true
		}
		if attempt >= c.maxAttempts {
			log.WithError(err).WithField("attempts", attempt).Error("message dropped after repeated failures")
			return true
		}
		log.WithError(err).WithField("attempt", attempt).Warn("message handling failed, retrying")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}
