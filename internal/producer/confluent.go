package producer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
)

// errUndelivered is reported for messages still queued when the client closes.
var errUndelivered = errors.New("message not delivered before close")

// confluentConfigMap builds the librdkafka configuration from the settings.
func confluentConfigMap(s config.Settings) *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":          s.BootstrapServers(),
		"security.protocol":          s.SecurityProtocol,
		"acks":                       config.ProducerAcks,
		"retries":                    config.ProducerRetries,
		"batch.size":                 config.ProducerBatchSize,
		"message.max.bytes":          config.ProducerMaxMessageBytes,
		"linger.ms":                  config.ProducerLingerMs,
		"queue.buffering.max.kbytes": config.ProducerBufferMemory / 1024,
	}
	if s.UsesSASL() {
		_ = cm.SetKey("sasl.mechanisms", s.SASLMechanism)
		_ = cm.SetKey("sasl.username", s.APIKey)
		_ = cm.SetKey("sasl.password", s.APISecret)
	}
	return cm
}

func dialConfluent(s config.Settings, logger zerolog.Logger) (Connection, error) {
	p, err := kafka.NewProducer(confluentConfigMap(s))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newConfluentConnection(newKafkaProducerWrapper(p), s.DeliveryBuffer, s.FlushTimeout, logger), nil
}

// confluentConnection adapts a KafkaProducer to Connection. Delivery reports
// arrive on deliveryChan and are translated into outcomes by handleDeliveryReports.
type confluentConnection struct {
	producer     KafkaProducer
	deliveryChan chan kafka.Event
	outcomes     chan Outcome
	flushTimeout time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]string // Keys of messages without a delivery report.

	reportsDone chan struct{}
	stopEvents  chan struct{}
}

func newConfluentConnection(p KafkaProducer, buffer int, flushTimeout time.Duration, logger zerolog.Logger) *confluentConnection {
	if buffer <= 0 {
		buffer = config.ProducerDeliveryChannelSize
	}
	c := &confluentConnection{
		producer:     p,
		deliveryChan: make(chan kafka.Event, buffer),
		outcomes:     make(chan Outcome, buffer),
		flushTimeout: flushTimeout,
		logger:       logger,
		pending:      make(map[uint64]string),
		reportsDone:  make(chan struct{}),
		stopEvents:   make(chan struct{}),
	}
	go c.handleDeliveryReports()
	go c.watchEvents()
	return c
}

func (c *confluentConnection) Send(topic, key string, value []byte, headers map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}

	c.nextID++
	id := c.nextID
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
		Opaque:         id,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	c.pending[id] = key
	if err := c.producer.Produce(msg, c.deliveryChan); err != nil {
		delete(c.pending, id)
		return fmt.Errorf("error producing message: %w", err)
	}
	return nil
}

func (c *confluentConnection) Outcomes() <-chan Outcome {
	return c.outcomes
}

// handleDeliveryReports processes delivery reports in a dedicated goroutine.
func (c *confluentConnection) handleDeliveryReports() {
	defer close(c.reportsDone)
	for e := range c.deliveryChan {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		c.mu.Lock()
		if id, ok := m.Opaque.(uint64); ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		o := Outcome{
			Key:       string(m.Key),
			Success:   m.TopicPartition.Error == nil,
			Err:       m.TopicPartition.Error,
			Partition: m.TopicPartition.Partition,
			Offset:    int64(m.TopicPartition.Offset),
		}
		if m.TopicPartition.Topic != nil {
			o.Topic = *m.TopicPartition.Topic
		}
		c.outcomes <- o
	}
}

// watchEvents logs client-level errors such as unreachable brokers.
func (c *confluentConnection) watchEvents() {
	events := c.producer.Events()
	for {
		select {
		case <-c.stopEvents:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if kErr, isErr := e.(kafka.Error); isErr {
				c.logger.Warn().Err(kErr).Bool("fatal", kErr.IsFatal()).Msg("Kafka client error")
			}
		}
	}
}

// Close flushes the client, releases it and reports every message still
// queued as undelivered, so no submitted message is left without an outcome.
func (c *confluentConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	remaining := c.producer.Flush(int(c.flushTimeout / time.Millisecond))
	close(c.stopEvents)
	c.producer.Close()
	close(c.deliveryChan)
	<-c.reportsDone

	c.mu.Lock()
	for id, key := range c.pending {
		c.outcomes <- Outcome{Key: key, Err: errUndelivered}
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.outcomes)

	if remaining > 0 {
		return fmt.Errorf("%d messages could not be sent", remaining)
	}
	return nil
}
