package tracker

import (
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaConsumer is the part of *kafka.Consumer the verifier uses, so tests
// can replace the broker with a mock.
type KafkaConsumer interface {
	// SubscribeTopics subscribes the consumer to topics. rebalanceCb may be nil.
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error

	// ReadMessage blocks for at most timeout and returns the next message.
	// A kafka.Error with code kafka.ErrTimedOut means nothing arrived.
	ReadMessage(timeout time.Duration) (*kafka.Message, error)

	// Close leaves the consumer group and releases the client.
	Close() error
}

// kafkaConsumerWrapper adapts *kafka.Consumer to KafkaConsumer.
type kafkaConsumerWrapper struct {
	consumer *kafka.Consumer
}

func newKafkaConsumerWrapper(consumer *kafka.Consumer) KafkaConsumer {
	return &kafkaConsumerWrapper{consumer: consumer}
}

func (w *kafkaConsumerWrapper) SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error {
	return w.consumer.SubscribeTopics(topics, rebalanceCb)
}

func (w *kafkaConsumerWrapper) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	return w.consumer.ReadMessage(timeout)
}

func (w *kafkaConsumerWrapper) Close() error {
	return w.consumer.Close()
}
