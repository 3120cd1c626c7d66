package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agbruneau/groupload/internal/producer"
	"github.com/agbruneau/groupload/pkg/models"
)

// Failure is a record whose submission or delivery failed.
type Failure struct {
	Key      string
	Record   *models.GroupRecord // Nil when the input could not be parsed.
	Raw      json.RawMessage     // Input as read, when available.
	Err      error
	Attempts int // Submissions made so far, the first one included.
}

// Retryable reports whether resubmitting the record can change the result.
// Unparseable and invalid records fail the same way every time.
func (f Failure) Retryable() bool {
	return f.Record != nil && !IsPermanent(f.Err) && !errors.Is(f.Err, models.ErrInvalidRecord)
}

// Streamer is the part of producer.Streamer used for resubmission.
type Streamer interface {
	Submit(rec models.GroupRecord) (string, error)
	Flush(timeout time.Duration) int
	Failures() []producer.Outcome
}

// CollectFailures pairs the failed outcomes recorded by s with the submitted
// records. Keys without a record (unparseable input) come back with a nil
// Record and the raw input when known.
func CollectFailures(s Streamer, records map[string]models.GroupRecord, raw map[string]json.RawMessage) []Failure {
	return FailuresFrom(s.Failures(), records, raw)
}

// FailuresFrom is CollectFailures over an explicit list of failed outcomes.
func FailuresFrom(outcomes []producer.Outcome, records map[string]models.GroupRecord, raw map[string]json.RawMessage) []Failure {
	failures := make([]Failure, 0, len(outcomes))
	for _, o := range outcomes {
		f := Failure{Key: o.Key, Err: o.Err, Attempts: 1, Raw: raw[o.Key]}
		if rec, ok := records[o.Key]; ok {
			rec := rec
			f.Record = &rec
		}
		failures = append(failures, f)
	}
	return failures
}

// Ledger is the part of producer.Streamer that remembers every outcome.
type Ledger interface {
	Failures() []producer.Outcome
	LastOutcome(key string) (producer.Outcome, bool)
}

// Unresolved returns one Failure per key whose most recent outcome is a
// failure, in the order the keys first failed. Call it once no outcome can
// arrive any more, after the streamer is closed. Attempts are taken from
// known, the result of Resubmit, when the key is listed there.
func Unresolved(l Ledger, records map[string]models.GroupRecord, raw map[string]json.RawMessage, known []Failure) []Failure {
	attempts := make(map[string]int, len(known))
	for _, f := range known {
		attempts[f.Key] = f.Attempts
	}

	seen := make(map[string]struct{})
	var failed []producer.Outcome
	for _, o := range l.Failures() {
		if _, dup := seen[o.Key]; dup {
			continue
		}
		seen[o.Key] = struct{}{}
		if last, ok := l.LastOutcome(o.Key); ok {
			if last.Success {
				continue
			}
			o = last
		}
		failed = append(failed, o)
	}

	failures := FailuresFrom(failed, records, raw)
	for i := range failures {
		if n, ok := attempts[failures[i].Key]; ok {
			failures[i].Attempts = n
		}
	}
	return failures
}

// Resubmit submits the retryable failures again through s, one round per
// attempt, flushing after each round, until none fails or cfg.MaxAttempts
// rounds have run. It returns the records that still failed. A record with
// no outcome by the end of a round's flush is treated as in flight and not
// resubmitted.
func Resubmit(ctx context.Context, cfg Config, s Streamer, failures []Failure, flushTimeout time.Duration,
	onRetry func(attempt int, err error, nextDelay time.Duration)) []Failure {
	var final, pending []Failure
	for _, f := range failures {
		if f.Retryable() {
			pending = append(pending, f)
		} else {
			final = append(final, f)
		}
	}
	if cfg.MaxAttempts <= 0 || len(pending) == 0 {
		return append(final, pending...)
	}

	DoWithCallback(ctx, cfg, func() error {
		mark := len(s.Failures())
		for i := range pending {
			pending[i].Attempts++
			if _, err := s.Submit(*pending[i].Record); err != nil && !errors.Is(err, producer.ErrSendFailed) {
				return Permanent(err)
			}
		}
		s.Flush(flushTimeout)

		failedNow := make(map[string]error)
		for _, o := range s.Failures()[mark:] {
			failedNow[o.Key] = o.Err
		}
		next := make([]Failure, 0, len(failedNow))
		for _, f := range pending {
			if err, failed := failedNow[f.Key]; failed {
				f.Err = err
				next = append(next, f)
			}
		}
		pending = next
		if len(pending) == 0 {
			return nil
		}
		return fmt.Errorf("%d records still failing", len(pending))
	}, onRetry)

	return append(final, pending...)
}
