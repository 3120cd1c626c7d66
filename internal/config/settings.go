package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingSetting is wrapped by Error when a required value is empty.
	ErrMissingSetting = errors.New("required setting is missing")
	// ErrInvalidSetting is wrapped by Error when a value is out of its domain.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Error reports a configuration that cannot be resolved. It is fatal to startup.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Settings is the resolved, read-only view of the configuration consumed by
// the streamer and its broker connections. It is passed by value.
type Settings struct {
	Environment      string
	Brokers          []string
	APIKey           string
	APISecret        string
	SecurityProtocol string
	SASLMechanism    string
	Driver           string
	DevTopic         string
	QATopic          string
	ConsumerGroup    string
	FlushTimeout     time.Duration
	CloseTimeout     time.Duration
	DeliveryBuffer   int
}

// Topic returns the topic of the selected environment.
func (s Settings) Topic() string {
	if s.Environment == EnvQA {
		return s.QATopic
	}
	return s.DevTopic
}

// BootstrapServers returns the broker list in librdkafka form.
func (s Settings) BootstrapServers() string {
	return strings.Join(s.Brokers, ",")
}

// UsesSASL reports whether the security protocol authenticates with SASL.
func (s Settings) UsesSASL() bool {
	return strings.HasPrefix(s.SecurityProtocol, "SASL")
}

// UsesTLS reports whether the security protocol encrypts the connection.
func (s Settings) UsesTLS() bool {
	return s.SecurityProtocol == "SSL" || s.SecurityProtocol == "SASL_SSL"
}

// Redacted returns the displayable settings, in display order.
func (s Settings) Redacted() [][2]string {
	key := "Not set"
	if s.APIKey != "" {
		key = s.APIKey
		if len(key) > 8 {
			key = key[:8]
		}
		key += "..."
	}
	return [][2]string{
		{"Environment", s.Environment},
		{"Bootstrap Servers", s.BootstrapServers()},
		{"Security Protocol", s.SecurityProtocol},
		{"API Key", key},
		{"Driver", s.Driver},
		{"Current Topic", s.Topic()},
		{"Dev Topic", s.DevTopic},
		{"QA Topic", s.QATopic},
	}
}
