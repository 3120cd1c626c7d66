package tracker

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
)

// mockConsumer replaces the broker in verifier tests.
type mockConsumer struct {
	mock.Mock
}

// newMockConsumer returns a consumer that accepts a subscription to topic.
func newMockConsumer(topic string) *mockConsumer {
	c := new(mockConsumer)
	c.On("SubscribeTopics", []string{topic}, mock.Anything).Return(nil)
	return c
}

// deliver queues one message for the next ReadMessage call.
func (c *mockConsumer) deliver(msg *kafka.Message) *mock.Call {
	return c.On("ReadMessage", mock.Anything).Return(msg, nil).Once()
}

func (c *mockConsumer) SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error {
	return c.Called(topics, rebalanceCb).Error(0)
}

func (c *mockConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	args := c.Called(timeout)
	msg, _ := args.Get(0).(*kafka.Message)
	return msg, args.Error(1)
}

func (c *mockConsumer) Close() error {
	return c.Called().Error(0)
}
