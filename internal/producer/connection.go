package producer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/rs/zerolog"
)

// Outcome is the delivery result of one submitted record.
type Outcome struct {
	Key       string // Group identifier used as the message key.
	Success   bool   // True when the broker acknowledged the message.
	Err       error  // Failure reason when Success is false.
	Topic     string // Destination topic, when reported.
	Partition int32  // Partition, when reported.
	Offset    int64  // Offset within the partition, when reported.
}

// Connection is a publish-capable handle on the broker. Send is asynchronous:
// its result arrives later on Outcomes. Implementations close the Outcomes
// channel once Close has returned and no further outcome can be produced.
type Connection interface {
	// Send hands one message to the client. An error means the message was
	// refused before leaving the process and no outcome will follow.
	Send(topic, key string, value []byte, headers map[string]string) error

	// Outcomes delivers one Outcome per accepted message, in any order.
	Outcomes() <-chan Outcome

	// Close flushes what the client can, releases it, then closes Outcomes.
	Close() error
}

// Message headers set on every published record.
const (
	HeaderContentType = "content-type"
	HeaderMessageType = "message-type"
	HeaderEnvironment = "environment"
)

var errConnectionClosed = errors.New("connection closed")

// ConnectionError reports a failure to establish the broker connection.
type ConnectionError struct {
	Driver  string
	Brokers []string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s driver to %s: %v", e.Driver, strings.Join(e.Brokers, ","), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Dial opens a connection with the driver selected in the settings.
func Dial(settings config.Settings, logger zerolog.Logger) (Connection, error) {
	driver := settings.Driver
	if driver == "" {
		driver = config.DriverConfluent
	}

	var (
		conn Connection
		err  error
	)
	switch driver {
	case config.DriverConfluent:
		conn, err = dialConfluent(settings, logger)
	case config.DriverKafkaGo:
		conn, err = dialKafkaGo(settings, logger)
	case config.DriverSarama:
		conn, err = dialSarama(settings)
	default:
		err = fmt.Errorf("unknown driver %q", driver)
	}
	if err != nil {
		return nil, &ConnectionError{Driver: driver, Brokers: settings.Brokers, Err: err}
	}
	return conn, nil
}
