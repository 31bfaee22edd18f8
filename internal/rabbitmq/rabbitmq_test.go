package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/flightbooking/internal/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	deliveries chan amqp.Delivery
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeAcker struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	requeued []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
		return nil
	}
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestClient_DeclareAndPublish(t *testing.T) {
	ch := &fakeChannel{}
	client := NewWithChannel(ch, logger.Discard())

	require.NoError(t, client.DeclareQueue("notifications"))
	require.NoError(t, client.Publish(context.Background(), "notifications", "msg-1", []byte(`{"bookingId":1}`)))

	assert.Equal(t, []string{"notifications"}, ch.declared)
	assert.Equal(t, []string{"notifications"}, ch.keys)
	require.Len(t, ch.published, 1)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "msg-1", ch.published[0].MessageId)
}

func TestClient_PublishAfterClose(t *testing.T) {
	client := NewWithChannel(&fakeChannel{}, logger.Discard())
	client.Close()

	err := client.Publish(context.Background(), "notifications", "msg-1", nil)

	assert.Error(t, err)
}

func TestClient_ConsumeRetriesThenAcks(t *testing.T) {
	acker := &fakeAcker{}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("flaky")}
	close(ch.deliveries)

	client := NewWithChannel(ch, logger.Discard())
	client.retryDelay = time.Millisecond

	attempts := 0
	err := client.Consume(context.Background(), "notifications", "worker", func(context.Context, []byte) error {
		attempts++
		if attempts == 1 {
			return errors.New("421 try again later")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []uint64{1}, acker.acked)
	assert.Empty(t, acker.nacked)
	assert.Empty(t, acker.requeued)
}

func TestClient_ConsumeRejectsPoisonMessageAndContinues(t *testing.T) {
	acker := &fakeAcker{}
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 2)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("bad")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("good")}
	close(ch.deliveries)

	client := NewWithChannel(ch, logger.Discard())
	client.retryDelay = time.Millisecond
	client.maxAttempts = 3

	attempts := map[string]int{}
	err := client.Consume(context.Background(), "notifications", "worker", func(_ context.Context, body []byte) error {
		attempts[string(body)]++
		if string(body) == "bad" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts["bad"])
	assert.Equal(t, 1, attempts["good"])
	assert.Equal(t, []uint64{1}, acker.nacked)
	assert.Equal(t, []uint64{2}, acker.acked)
	assert.Empty(t, acker.requeued)
}

func TestClient_ConsumeStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	client := NewWithChannel(ch, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Consume(ctx, "notifications", "worker", func(context.Context, []byte) error { return nil })
	assert.NoError(t, err)
}
