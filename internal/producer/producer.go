/*
Package producer publishes group records to Kafka and tracks their delivery.

A Streamer hands each record to a broker Connection without waiting for the
acknowledgement. Outcomes arrive later on the connection's Outcomes channel,
drained by one dispatch goroutine per streamer, and update the streamer's
counters. Flush and Close are the only blocking operations.
*/
package producer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/rs/zerolog"
)

var (
	// ErrNotOpen is returned when submitting to a streamer that is closing or closed.
	ErrNotOpen = errors.New("streamer is not open")
	// ErrSendFailed wraps a refusal by the connection before the message left the process.
	ErrSendFailed = errors.New("send failed")
)

// State is the lifecycle state of a Streamer.
type State int

// Streamer states. A streamer is never reused once Closed.
const (
	StateUnopened State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a snapshot of the delivery counters.
type Stats struct {
	Submitted    int
	Acknowledged int
	Failed       int
}

// Outstanding returns the submissions still waiting for an outcome.
func (s Stats) Outstanding() int {
	return s.Submitted - s.Acknowledged - s.Failed
}

// SuccessRate returns the acknowledged share of resolved submissions, in percent.
func (s Stats) SuccessRate() float64 {
	resolved := s.Acknowledged + s.Failed
	if resolved == 0 {
		return 0
	}
	return float64(s.Acknowledged) / float64(resolved) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("%d submitted, %d acknowledged, %d failed", s.Submitted, s.Acknowledged, s.Failed)
}

// Streamer submits records to one topic and counts their outcomes.
type Streamer struct {
	settings config.Settings
	conn     Connection
	logger   zerolog.Logger

	// lifecycle is read-held by Submit for the duration of a send and
	// write-held by Close for state transitions.
	lifecycle sync.RWMutex
	state     State

	mu       sync.Mutex
	stats    Stats
	failures []Outcome
	latest   map[string]Outcome // Most recent outcome per key.
	changed  chan struct{}      // Closed and replaced on every outcome.

	dispatchDone chan struct{}
}

// New dials the broker with the configured driver and returns an open streamer.
func New(settings config.Settings, logger zerolog.Logger) (*Streamer, error) {
	conn, err := Dial(settings, logger)
	if err != nil {
		return nil, err
	}
	return NewWithConnection(settings, conn, logger), nil
}

// NewWithConnection returns an open streamer over an established connection.
func NewWithConnection(settings config.Settings, conn Connection, logger zerolog.Logger) *Streamer {
	if settings.CloseTimeout <= 0 {
		settings.CloseTimeout = config.ProducerCloseTimeout
	}
	s := &Streamer{
		settings:     settings,
		conn:         conn,
		logger:       logging.Component(logger, "streamer").With().Str(logging.FieldTopic, settings.Topic()).Logger(),
		state:        StateOpen,
		latest:       make(map[string]Outcome),
		changed:      make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	return s.state
}

// Stats returns a snapshot of the counters.
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Failures returns the failed outcomes recorded so far, in arrival order.
func (s *Streamer) Failures() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.failures))
	copy(out, s.failures)
	return out
}

// LastOutcome returns the most recent outcome recorded for key.
func (s *Streamer) LastOutcome(key string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.latest[key]
	return o, ok
}

// Submit validates rec, publishes it asynchronously and returns its key.
// It never waits for the broker. A validation error or ErrNotOpen leaves
// the counters untouched; a refusal by the connection is counted as a
// failed submission and returned wrapped in ErrSendFailed.
func (s *Streamer) Submit(rec models.GroupRecord) (string, error) {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.state != StateOpen {
		return "", ErrNotOpen
	}

	group, err := models.ValidateGroup(rec)
	if err != nil {
		return "", err
	}
	key := group.GroupID

	value, err := models.NewGroupLoadMessage(s.settings.Environment, group).Marshal()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.stats.Submitted++
	s.mu.Unlock()

	headers := map[string]string{
		HeaderContentType: "application/json",
		HeaderMessageType: models.MessageTypeGroupLoad,
		HeaderEnvironment: s.settings.Environment,
	}
	if err := s.conn.Send(s.settings.Topic(), key, value, headers); err != nil {
		s.onDeliveryOutcome(Outcome{Key: key, Topic: s.settings.Topic(), Err: err})
		return key, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Debug().Str(logging.FieldKey, key).Int("members", len(group.Members)).Msg("Record submitted")
	return key, nil
}

// SubmitBatch submits every record in order and returns one key per record.
// A record that fails before sending is counted as submitted and failed,
// and the batch continues.
func (s *Streamer) SubmitBatch(recs []models.GroupRecord) []string {
	keys := make([]string, len(recs))
	for i, rec := range recs {
		key, err := s.Submit(rec)
		if err != nil {
			if key == "" {
				key = fallbackKey(rec.GroupID)
			}
			if !errors.Is(err, ErrSendFailed) {
				_ = s.Reject(key, err)
			}
		}
		keys[i] = key
	}
	return keys
}

// Reject records a record that could not be submitted, such as an
// unparseable entry of an input file, as submitted and failed.
func (s *Streamer) Reject(key string, reason error) error {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	if s.state != StateOpen {
		return ErrNotOpen
	}

	s.mu.Lock()
	s.stats.Submitted++
	s.mu.Unlock()
	s.onDeliveryOutcome(Outcome{Key: key, Topic: s.settings.Topic(), Err: reason})
	return nil
}

// onDeliveryOutcome counts one outcome and wakes Flush waiters.
func (s *Streamer) onDeliveryOutcome(o Outcome) {
	s.mu.Lock()
	if o.Success {
		s.stats.Acknowledged++
	} else {
		s.stats.Failed++
		s.failures = append(s.failures, o)
	}
	s.latest[o.Key] = o
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if o.Success {
		s.logger.Debug().
			Str(logging.FieldKey, o.Key).
			Int32("partition", o.Partition).
			Int64("offset", o.Offset).
			Msg("Message delivered")
		return
	}
	s.logger.Error().Err(o.Err).Str(logging.FieldKey, o.Key).Msg("Message delivery failed")
}

func (s *Streamer) dispatch() {
	defer close(s.dispatchDone)
	for o := range s.conn.Outcomes() {
		s.onDeliveryOutcome(o)
	}
}

// Flush waits until every outstanding submission has an outcome or the
// timeout elapses, and returns how many outcomes arrived meanwhile. A
// timeout is not an error: the streamer stays open and late outcomes are
// still counted.
func (s *Streamer) Flush(timeout time.Duration) int {
	s.mu.Lock()
	start := s.stats.Acknowledged + s.stats.Failed
	outstanding := s.stats.Outstanding()
	s.mu.Unlock()

	if outstanding <= 0 || timeout <= 0 {
		return 0
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		resolved := s.stats.Acknowledged + s.stats.Failed
		remaining := s.stats.Outstanding()
		changed := s.changed
		s.mu.Unlock()

		drained := resolved - start
		if drained > outstanding {
			drained = outstanding
		}
		if remaining <= 0 || drained == outstanding {
			return drained
		}

		select {
		case <-changed:
		case <-timer.C:
			return s.drainedSince(start, outstanding)
		}
	}
}

func (s *Streamer) drainedSince(start, outstanding int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.stats.Acknowledged + s.stats.Failed - start
	if drained > outstanding {
		drained = outstanding
	}
	return drained
}

// Close flushes with the close timeout, releases the connection and waits
// for the last outcomes it reports. Closing a closed streamer is a no-op.
func (s *Streamer) Close() error {
	s.lifecycle.Lock()
	if s.state != StateOpen {
		s.lifecycle.Unlock()
		return nil
	}
	s.state = StateClosing
	s.lifecycle.Unlock()

	s.logger.Debug().Dur("timeout", s.settings.CloseTimeout).Msg("Flushing before close")
	s.Flush(s.settings.CloseTimeout)

	err := s.conn.Close()
	<-s.dispatchDone

	s.lifecycle.Lock()
	s.state = StateClosed
	s.lifecycle.Unlock()

	stats := s.Stats()
	s.logger.Info().
		Int("submitted", stats.Submitted).
		Int("acknowledged", stats.Acknowledged).
		Int("failed", stats.Failed).
		Msg("Streamer closed")

	if err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

func fallbackKey(groupID string) string {
	if id := strings.TrimSpace(groupID); id != "" {
		return id
	}
	return "unknown"
}
