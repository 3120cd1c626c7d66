/*
Package tracker reads back a group load topic and checks what was published.

The verifier consumes the topic from the earliest offset, decodes every
envelope, validates the group it carries and counts valid and rejected
messages. Every message read can be written to an audit trail.
*/
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
)

// Config bounds a verification run.
type Config struct {
	Topic       string
	MaxMessages int           // Stop after this many messages; 0 reads until idle.
	IdleTimeout time.Duration // Stop when nothing arrives for this long; 0 never.
	ReadTimeout time.Duration // Timeout of a single poll.
	MaxErrors   int           // Consecutive read errors tolerated.
}

// DefaultConfig returns the verifier defaults for topic.
func DefaultConfig(topic string) Config {
	return Config{
		Topic:       topic,
		IdleTimeout: 10 * time.Second,
		ReadTimeout: config.VerifierReadTimeout,
		MaxErrors:   config.VerifierMaxConsecutiveErrors,
	}
}

// Report summarises a verification run.
type Report struct {
	Received   int
	Valid      int
	Invalid    int
	Duplicates int // Valid messages whose group was already seen in this run.
	Duration   time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("%d received, %d valid, %d invalid, %d duplicates", r.Received, r.Valid, r.Invalid, r.Duplicates)
}

// ErrBrokersUnavailable is returned by Run when reads keep failing.
var ErrBrokersUnavailable = errors.New("too many consecutive read errors")

// Tracker consumes a topic and verifies its messages.
type Tracker struct {
	config   Config
	consumer KafkaConsumer
	audit    *AuditLog
	logger   zerolog.Logger

	report Report
	seen   map[string]struct{}
}

// consumerConfigMap builds the consumer configuration. Offsets are not
// committed: a verification never moves the group forward.
func consumerConfigMap(s config.Settings) *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  s.BootstrapServers(),
		"security.protocol":  s.SecurityProtocol,
		"group.id":           s.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	}
	if s.UsesSASL() {
		_ = cm.SetKey("sasl.mechanisms", s.SASLMechanism)
		_ = cm.SetKey("sasl.username", s.APIKey)
		_ = cm.SetKey("sasl.password", s.APISecret)
	}
	return cm
}

// New creates a verifier backed by a confluent consumer. audit may be nil.
func New(settings config.Settings, cfg Config, audit *AuditLog, logger zerolog.Logger) (*Tracker, error) {
	c, err := kafka.NewConsumer(consumerConfigMap(settings))
	if err != nil {
		return nil, fmt.Errorf("unable to create Kafka consumer: %w", err)
	}
	return NewWithConsumer(cfg, newKafkaConsumerWrapper(c), audit, logger), nil
}

// NewWithConsumer creates a verifier over an existing consumer.
func NewWithConsumer(cfg Config, consumer KafkaConsumer, audit *AuditLog, logger zerolog.Logger) *Tracker {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = config.VerifierReadTimeout
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = config.VerifierMaxConsecutiveErrors
	}
	return &Tracker{
		config:   cfg,
		consumer: consumer,
		audit:    audit,
		logger:   logging.Component(logger, config.VerifierServiceName),
		seen:     make(map[string]struct{}),
	}
}

// Run subscribes to the topic and reads until ctx is done, MaxMessages
// have been read, the topic stays idle for IdleTimeout or reads keep failing.
func (t *Tracker) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	if err := t.consumer.SubscribeTopics([]string{t.config.Topic}, nil); err != nil {
		return t.report, fmt.Errorf("unable to subscribe to topic %s: %w", t.config.Topic, err)
	}
	t.logger.Info().Str(logging.FieldTopic, t.config.Topic).Msg("Consumer subscribed")

	consecutiveErrors := 0
	lastActivity := time.Now()
	var runErr error

	for ctx.Err() == nil {
		if t.config.MaxMessages > 0 && t.report.Received >= t.config.MaxMessages {
			break
		}

		msg, err := t.consumer.ReadMessage(t.config.ReadTimeout)
		if err != nil {
			if isTimeout(err) {
				consecutiveErrors = 0
				if t.config.IdleTimeout > 0 && time.Since(lastActivity) >= t.config.IdleTimeout {
					t.logger.Debug().Dur("idle", time.Since(lastActivity)).Msg("Topic idle, stopping")
					break
				}
				continue
			}
			if t.handleReadError(err, &consecutiveErrors) {
				runErr = fmt.Errorf("%w: %v", ErrBrokersUnavailable, err)
				break
			}
			continue
		}

		consecutiveErrors = 0
		lastActivity = time.Now()
		t.processMessage(msg)
	}

	t.report.Duration = time.Since(start)
	t.logger.Info().
		Int("received", t.report.Received).
		Int("valid", t.report.Valid).
		Int("invalid", t.report.Invalid).
		Int("duplicates", t.report.Duplicates).
		Msg("Verification finished")
	return t.report, runErr
}

func isTimeout(err error) bool {
	var kafkaErr kafka.Error
	return errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut
}

// handleReadError logs a read error and reports whether to stop.
func (t *Tracker) handleReadError(err error, consecutiveErrors *int) bool {
	*consecutiveErrors++

	var kafkaErr kafka.Error
	brokersDown := errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrAllBrokersDown ||
		strings.Contains(err.Error(), "Connection refused")
	if brokersDown {
		t.logger.Warn().Err(err).Int("consecutive_errors", *consecutiveErrors).Msg("Kafka appears to be down")
	} else {
		t.logger.Error().Err(err).Int("consecutive_errors", *consecutiveErrors).Msg("Kafka message read error")
	}

	return *consecutiveErrors >= t.config.MaxErrors
}

// processMessage decodes, counts and audits one message.
func (t *Tracker) processMessage(msg *kafka.Message) {
	t.report.Received++

	decoded, err := models.DecodeGroupLoadMessage(msg.Value)
	var logged *models.GroupLoadMessage
	if err == nil {
		logged = &decoded
	}
	if t.audit != nil {
		if auditErr := t.audit.Record(msg, logged, err); auditErr != nil {
			t.logger.Error().Err(auditErr).Msg("Audit write failed")
		}
	}

	if err != nil {
		t.report.Invalid++
		t.logger.Warn().
			Err(err).
			Str(logging.FieldKey, string(msg.Key)).
			Int64("offset", int64(msg.TopicPartition.Offset)).
			Msg("Message rejected")
		return
	}

	t.report.Valid++
	groupID := decoded.GroupDetails.GroupID
	if _, dup := t.seen[groupID]; dup {
		t.report.Duplicates++
	}
	t.seen[groupID] = struct{}{}
	t.logger.Debug().
		Str(logging.FieldKey, groupID).
		Str("message_id", decoded.MessageID).
		Int("members", len(decoded.GroupDetails.Members)).
		Msg("Message verified")
}

// Close closes the consumer.
func (t *Tracker) Close() error {
	return t.consumer.Close()
}
