package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/agbruneau/groupload/pkg/models"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// AuditLog writes one models.AuditEntry per message read, valid or not,
// as JSON lines.
type AuditLog struct {
	mu      sync.Mutex
	encoder *json.Encoder
	closer  io.Closer
}

// OpenAuditLog opens filename for appending, creating it if needed.
func OpenAuditLog(filename string) (*AuditLog, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open audit file %s: %w", filename, err)
	}
	return &AuditLog{encoder: json.NewEncoder(file), closer: file}, nil
}

// NewAuditLog writes entries to w. Close does not close w.
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{encoder: json.NewEncoder(w)}
}

// Record writes the audit entry of msg. decoded is nil when decodeErr is set.
func (a *AuditLog) Record(msg *kafka.Message, decoded *models.GroupLoadMessage, decodeErr error) error {
	entry := models.AuditEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		EventType:      models.AuditReceived,
		KafkaPartition: msg.TopicPartition.Partition,
		KafkaOffset:    int64(msg.TopicPartition.Offset),
		Key:            string(msg.Key),
		MessageSize:    len(msg.Value),
		Valid:          decoded != nil && decodeErr == nil,
	}
	if msg.TopicPartition.Topic != nil {
		entry.KafkaTopic = *msg.TopicPartition.Topic
	}
	if json.Valid(msg.Value) {
		entry.RawMessage = json.RawMessage(msg.Value)
	} else {
		entry.RawText = string(msg.Value)
	}
	if decoded != nil {
		entry.MessageID = decoded.MessageID
	}
	if decodeErr != nil {
		entry.EventType = models.AuditRejected
		entry.Error = decodeErr.Error()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.encoder.Encode(entry); err != nil {
		return fmt.Errorf("audit encoding error: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the log owns one.
func (a *AuditLog) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
