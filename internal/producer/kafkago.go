package producer

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// kafkaGoTransport builds the writer transport with optional TLS and SASL.
func kafkaGoTransport(s config.Settings) (*kafkago.Transport, error) {
	transport := &kafkago.Transport{}
	if s.UsesTLS() {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if s.UsesSASL() {
		m, err := kafkaGoMechanism(s)
		if err != nil {
			return nil, fmt.Errorf("SASL config: %w", err)
		}
		transport.SASL = m
	}
	return transport, nil
}

func kafkaGoMechanism(s config.Settings) (sasl.Mechanism, error) {
	switch s.SASLMechanism {
	case config.MechanismPlain:
		return plain.Mechanism{Username: s.APIKey, Password: s.APISecret}, nil
	case config.MechanismSCRAMSHA256:
		return scram.Mechanism(scram.SHA256, s.APIKey, s.APISecret)
	case config.MechanismSCRAMSHA512:
		return scram.Mechanism(scram.SHA512, s.APIKey, s.APISecret)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", s.SASLMechanism)
	}
}

func dialKafkaGo(s config.Settings, logger zerolog.Logger) (Connection, error) {
	transport, err := kafkaGoTransport(s)
	if err != nil {
		return nil, err
	}
	c := newKafkaGoConnection(s.DeliveryBuffer)
	c.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(s.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  config.ProducerRetries,
		BatchBytes:   config.ProducerMaxMessageBytes, // Also the largest message accepted.
		BatchTimeout: config.ProducerLingerMs * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		Completion:   c.complete,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error().Msgf("writer: "+msg, args...)
		}),
	}
	return c, nil
}

// kafkaGoConnection adapts an asynchronous kafka-go Writer to Connection.
// The writer reports each batch through its Completion callback.
type kafkaGoConnection struct {
	writer   *kafkago.Writer
	outcomes chan Outcome

	mu     sync.RWMutex
	closed bool
}

func newKafkaGoConnection(buffer int) *kafkaGoConnection {
	if buffer <= 0 {
		buffer = config.ProducerDeliveryChannelSize
	}
	return &kafkaGoConnection{outcomes: make(chan Outcome, buffer)}
}

func (c *kafkaGoConnection) Send(topic, key string, value []byte, headers map[string]string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnectionClosed
	}

	msg := kafkago.Message{Topic: topic, Key: []byte(key), Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	// In async mode WriteMessages only enqueues; the context bounds nothing else.
	if err := c.writer.WriteMessages(context.Background(), msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *kafkaGoConnection) Outcomes() <-chan Outcome {
	return c.outcomes
}

// complete is the writer's Completion callback: one outcome per message.
func (c *kafkaGoConnection) complete(messages []kafkago.Message, err error) {
	for _, m := range messages {
		c.outcomes <- Outcome{
			Key:       string(m.Key),
			Success:   err == nil,
			Err:       err,
			Topic:     m.Topic,
			Partition: int32(m.Partition),
			Offset:    m.Offset,
		}
	}
}

// Close waits for the writer to complete every pending batch, then closes Outcomes.
func (c *kafkaGoConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var err error
	if c.writer != nil {
		err = c.writer.Close()
	}
	close(c.outcomes)
	if err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
