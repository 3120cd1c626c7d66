package models

import "encoding/json"

// AuditEntry is one line of the verifier's audit file. It keeps a faithful
// copy of every message read from the topic, valid or not, with its Kafka
// coordinates, so a publication can be checked after the fact.
type AuditEntry struct {
	Timestamp      string          `json:"timestamp"`             // Reception time, RFC3339.
	EventType      string          `json:"event_type"`            // message.received or message.rejected.
	KafkaTopic     string          `json:"kafka_topic"`           // Source topic.
	KafkaPartition int32           `json:"kafka_partition"`       // Source partition.
	KafkaOffset    int64           `json:"kafka_offset"`          // Offset within the partition.
	Key            string          `json:"key"`                   // Message key (group identifier).
	MessageSize    int             `json:"message_size"`          // Value size in bytes.
	Valid          bool            `json:"valid"`                 // Envelope decoded and group validated.
	Error          string          `json:"error,omitempty"`       // Rejection reason.
	MessageID      string          `json:"message_id,omitempty"`  // Envelope identifier when decoded.
	RawMessage     json.RawMessage `json:"raw_message,omitempty"` // Value as received, when it is JSON.
	RawText        string          `json:"raw_text,omitempty"`    // Value as received, when it is not JSON.
}

// Audit event types.
const (
	AuditReceived = "message.received"
	AuditRejected = "message.rejected"
)
