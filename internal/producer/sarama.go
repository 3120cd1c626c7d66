package producer

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/agbruneau/groupload/internal/config"
	"github.com/xdg-go/scram"
)

// newSaramaConfig maps the settings onto a sarama configuration.
func newSaramaConfig(s config.Settings) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "groupload"
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = config.ProducerRetries
	cfg.Producer.Flush.Bytes = config.ProducerBatchSize
	cfg.Producer.MaxMessageBytes = config.ProducerMaxMessageBytes
	cfg.Producer.Flush.Frequency = config.ProducerLingerMs * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	if s.DeliveryBuffer > 0 {
		cfg.ChannelBufferSize = s.DeliveryBuffer
	}

	cfg.Net.TLS.Enable = s.UsesTLS()
	if cfg.Net.TLS.Enable {
		cfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if s.UsesSASL() {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = s.APIKey
		cfg.Net.SASL.Password = s.APISecret
		switch s.SASLMechanism {
		case config.MechanismSCRAMSHA256:
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA256}
			}
		case config.MechanismSCRAMSHA512:
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA512}
			}
		default:
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}
	return cfg
}

func dialSarama(s config.Settings) (Connection, error) {
	cfg := newSaramaConfig(s)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	p, err := sarama.NewAsyncProducer(s.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create a producer: %w", err)
	}
	return newSaramaConnection(p), nil
}

// saramaConnection adapts a sarama AsyncProducer to Connection. The group
// key travels in the message metadata so outcomes never decode the key.
type saramaConnection struct {
	producer sarama.AsyncProducer
	outcomes chan Outcome
	drained  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newSaramaConnection(p sarama.AsyncProducer) *saramaConnection {
	c := &saramaConnection{
		producer: p,
		outcomes: make(chan Outcome, config.ProducerDeliveryChannelSize),
	}
	c.drained.Add(2)
	go c.drainSuccesses()
	go c.drainErrors()
	return c
}

func (c *saramaConnection) Send(topic, key string, value []byte, headers map[string]string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnectionClosed
	}

	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Key:      sarama.StringEncoder(key),
		Value:    sarama.ByteEncoder(value),
		Metadata: key,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	c.producer.Input() <- msg
	return nil
}

func (c *saramaConnection) Outcomes() <-chan Outcome {
	return c.outcomes
}

func (c *saramaConnection) drainSuccesses() {
	defer c.drained.Done()
	for msg := range c.producer.Successes() {
		c.outcomes <- Outcome{
			Key:       messageKey(msg),
			Success:   true,
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		}
	}
}

func (c *saramaConnection) drainErrors() {
	defer c.drained.Done()
	for pErr := range c.producer.Errors() {
		o := Outcome{Err: pErr.Err}
		if pErr.Msg != nil {
			o.Key = messageKey(pErr.Msg)
			o.Topic = pErr.Msg.Topic
		}
		c.outcomes <- o
	}
}

// Close shuts the producer down. sarama flushes buffered messages and closes
// its Successes and Errors channels, after which Outcomes is closed.
func (c *saramaConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.producer.AsyncClose()
	c.drained.Wait()
	close(c.outcomes)
	return nil
}

func messageKey(msg *sarama.ProducerMessage) string {
	if key, ok := msg.Metadata.(string); ok {
		return key
	}
	return ""
}

// scramClient implements sarama.SCRAMClient with xdg-go/scram.
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *scramClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}
