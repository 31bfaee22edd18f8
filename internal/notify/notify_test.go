package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKafkaPublisher struct {
	mock.Mock
}

func (m *MockKafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

type MockAMQPPublisher struct {
	mock.Mock
}

func (m *MockAMQPPublisher) Publish(ctx context.Context, queue, messageID string, body []byte) error {
	args := m.Called(ctx, queue, messageID, body)
	return args.Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) MarkProcessed(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) ForgetProcessed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func sampleNotification() domain.Notification {
	return domain.Notification{
		ID:        "4f1c2a9e-0d52-4c1e-9a55-1a2b3c4d5e6f",
		BookingID: 12,
		Recipient: "ops@example.com",
		Subject:   "Flight booked",
		Text:      "Booking successfully done for the booking 12",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	producer := &MockKafkaPublisher{}
	n := sampleNotification()
	producer.On("Publish", mock.Anything, "notifications", "12", n).Return(nil).Once()

	err := NewKafkaNotifier(producer, "notifications").Notify(context.Background(), n)

	assert.NoError(t, err)
	producer.AssertExpectations(t)
}

func TestAMQPNotifier_Notify(t *testing.T) {
	publisher := &MockAMQPPublisher{}
	n := sampleNotification()
	publisher.On("Publish", mock.Anything, "booking.notifications", n.ID, mock.MatchedBy(func(body []byte) bool {
		var got domain.Notification
		return json.Unmarshal(body, &got) == nil && got.BookingID == 12 && got.Recipient == n.Recipient
	})).Return(nil).Once()

	err := NewAMQPNotifier(publisher, "booking.notifications").Notify(context.Background(), n)

	assert.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestDispatcher_DeliversOnce(t *testing.T) {
	sender := &MockSender{}
	dedup := &MockDeduper{}
	n := sampleNotification()
	body, err := json.Marshal(n)
	require.NoError(t, err)

	dedup.On("MarkProcessed", mock.Anything, n.ID).Return(true, nil).Once()
	dedup.On("MarkProcessed", mock.Anything, n.ID).Return(false, nil).Once()
	sender.On("Send", mock.Anything, n).Return(nil).Once()

	dispatcher := NewDispatcher(sender, dedup, logger.Discard())
	require.NoError(t, dispatcher.Handle(context.Background(), body))
	require.NoError(t, dispatcher.Handle(context.Background(), body))

	sender.AssertExpectations(t)
	dedup.AssertExpectations(t)
}

func TestDispatcher_SendFailureClearsDedup(t *testing.T) {
	sender := &MockSender{}
	dedup := &MockDeduper{}
	n := sampleNotification()
	body, err := json.Marshal(n)
	require.NoError(t, err)

	dedup.On("MarkProcessed", mock.Anything, n.ID).Return(true, nil).Once()
	dedup.On("ForgetProcessed", mock.Anything, n.ID).Return(nil).Once()
	sender.On("Send", mock.Anything, n).Return(errors.New("421 service not available")).Once()

	err = NewDispatcher(sender, dedup, logger.Discard()).Handle(context.Background(), body)

	assert.ErrorContains(t, err, "421 service not available")
	dedup.AssertExpectations(t)
}

func TestDispatcher_DropsGarbage(t *testing.T) {
	sender := &MockSender{}

	err := NewDispatcher(sender, nil, logger.Discard()).Handle(context.Background(), []byte("not json"))

	assert.NoError(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatcher_DedupErrorRetries(t *testing.T) {
	sender := &MockSender{}
	dedup := &MockDeduper{}
	body, err := json.Marshal(sampleNotification())
	require.NoError(t, err)
	dedup.On("MarkProcessed", mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()

	err = NewDispatcher(sender, dedup, logger.Discard()).Handle(context.Background(), body)

	assert.Error(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
