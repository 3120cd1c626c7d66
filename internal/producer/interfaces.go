package producer

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaProducer defines the confluent producer operations used by the
// confluent connection. This abstraction allows dependency injection in tests.
type KafkaProducer interface {
	// Produce sends a message to Kafka asynchronously.
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error

	// Events returns the channel of client-level events (errors, stats).
	Events() chan kafka.Event

	// Flush waits for outstanding deliveries, up to timeoutMs.
	// Returns the number of messages still queued.
	Flush(timeoutMs int) int

	// Close releases the producer.
	Close()
}

// kafkaProducerWrapper wraps a real Kafka producer to implement the interface.
type kafkaProducerWrapper struct {
	producer *kafka.Producer
}

// newKafkaProducerWrapper creates a wrapper around a real Kafka producer.
func newKafkaProducerWrapper(producer *kafka.Producer) KafkaProducer {
	return &kafkaProducerWrapper{producer: producer}
}

func (w *kafkaProducerWrapper) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	return w.producer.Produce(msg, deliveryChan)
}

func (w *kafkaProducerWrapper) Events() chan kafka.Event {
	return w.producer.Events()
}

func (w *kafkaProducerWrapper) Flush(timeoutMs int) int {
	return w.producer.Flush(timeoutMs)
}

func (w *kafkaProducerWrapper) Close() {
	w.producer.Close()
}
