package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageTypeGroupLoad identifies group load envelopes on the topic.
const MessageTypeGroupLoad = "group_load"

// GroupLoadMessage is the envelope published for each group record.
// The Kafka key is the group identifier; MessageID traces one publication.
type GroupLoadMessage struct {
	MessageType  string      `json:"message_type"`
	Timestamp    time.Time   `json:"timestamp"`
	Environment  string      `json:"environment"`
	MessageID    string      `json:"message_id"`
	GroupDetails GroupRecord `json:"group_details"`
}

// NewGroupLoadMessage wraps a validated record for publication.
func NewGroupLoadMessage(environment string, group GroupRecord) GroupLoadMessage {
	return GroupLoadMessage{
		MessageType:  MessageTypeGroupLoad,
		Timestamp:    time.Now().UTC(),
		Environment:  environment,
		MessageID:    uuid.New().String(),
		GroupDetails: group,
	}
}

// Marshal encodes the envelope as the message value.
func (m GroupLoadMessage) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("JSON marshaling error: %w", err)
	}
	return data, nil
}

// DecodeGroupLoadMessage decodes a message value and validates the group it carries.
func DecodeGroupLoadMessage(data []byte) (GroupLoadMessage, error) {
	var m GroupLoadMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return GroupLoadMessage{}, decodeError(err)
	}
	if m.MessageType != MessageTypeGroupLoad {
		return GroupLoadMessage{}, invalid("message_type", fmt.Sprintf("must be %q, got %q", MessageTypeGroupLoad, m.MessageType))
	}
	if _, err := uuid.Parse(m.MessageID); err != nil {
		return GroupLoadMessage{}, invalid("message_id", "must be a UUID")
	}
	if err := m.GroupDetails.Validate(); err != nil {
		return GroupLoadMessage{}, err
	}
	return m, nil
}
