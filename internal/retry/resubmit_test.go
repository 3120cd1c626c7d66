package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agbruneau/groupload/internal/producer"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer fails the first failFor[key] submissions of each key.
type fakeStreamer struct {
	failFor     map[string]int
	submissions map[string]int
	failures    []producer.Outcome
	latest      map[string]producer.Outcome
	flushes     int
}

func newFakeStreamer(failFor map[string]int) *fakeStreamer {
	return &fakeStreamer{failFor: failFor, submissions: make(map[string]int), latest: make(map[string]producer.Outcome)}
}

func (f *fakeStreamer) Submit(rec models.GroupRecord) (string, error) {
	key := rec.GroupID
	f.submissions[key]++
	if f.submissions[key] <= f.failFor[key] {
		f.fail(key, fmt.Errorf("attempt %d timed out", f.submissions[key]))
	} else {
		f.latest[key] = producer.Outcome{Key: key, Success: true}
	}
	return key, nil
}

func (f *fakeStreamer) Flush(time.Duration) int {
	f.flushes++
	return 0
}

func (f *fakeStreamer) Failures() []producer.Outcome {
	out := make([]producer.Outcome, len(f.failures))
	copy(out, f.failures)
	return out
}

func (f *fakeStreamer) fail(key string, err error) {
	o := producer.Outcome{Key: key, Err: err}
	f.failures = append(f.failures, o)
	f.latest[key] = o
}

func (f *fakeStreamer) LastOutcome(key string) (producer.Outcome, bool) {
	o, ok := f.latest[key]
	return o, ok
}

func record(id string) models.GroupRecord {
	return models.GroupRecord{GroupID: id, GroupName: "Plan " + id, GroupType: models.KindFamily, EffectiveDate: "2024-01-01"}
}

func TestCollectFailures(t *testing.T) {
	s := newFakeStreamer(map[string]int{"GRP_1": 1})
	_, _ = s.Submit(record("GRP_1"))
	s.failures = append(s.failures, producer.Outcome{Key: "unknown", Err: models.ErrInvalidRecord})

	failures := CollectFailures(s,
		map[string]models.GroupRecord{"GRP_1": record("GRP_1")},
		map[string]json.RawMessage{"unknown": json.RawMessage(`{"group_id": 1}`)})

	require.Len(t, failures, 2)
	require.NotNil(t, failures[0].Record)
	assert.Equal(t, "GRP_1", failures[0].Record.GroupID)
	assert.Equal(t, 1, failures[0].Attempts)
	assert.True(t, failures[0].Retryable())

	assert.Nil(t, failures[1].Record)
	assert.JSONEq(t, `{"group_id": 1}`, string(failures[1].Raw))
	assert.False(t, failures[1].Retryable())
}

func TestResubmitRecovers(t *testing.T) {
	s := newFakeStreamer(map[string]int{"GRP_1": 2, "GRP_2": 1})
	failures := []Failure{
		{Key: "GRP_1", Record: ptr(record("GRP_1")), Err: errors.New("timed out"), Attempts: 1},
		{Key: "GRP_2", Record: ptr(record("GRP_2")), Err: errors.New("timed out"), Attempts: 1},
	}
	// The first submissions already happened.
	s.submissions["GRP_1"] = 1
	s.submissions["GRP_2"] = 1

	var retries int
	left := Resubmit(context.Background(), testConfig(3), s, failures, time.Second,
		func(int, error, time.Duration) { retries++ })

	assert.Empty(t, left)
	assert.Equal(t, 2, s.flushes)
	assert.Equal(t, 1, retries)
	assert.Equal(t, 3, s.submissions["GRP_1"])
	assert.Equal(t, 2, s.submissions["GRP_2"])
}

func TestResubmitGivesUp(t *testing.T) {
	s := newFakeStreamer(map[string]int{"GRP_1": 10})
	failures := []Failure{{Key: "GRP_1", Record: ptr(record("GRP_1")), Err: errors.New("timed out"), Attempts: 1}}

	left := Resubmit(context.Background(), testConfig(2), s, failures, time.Second, nil)

	require.Len(t, left, 1)
	assert.Equal(t, 3, left[0].Attempts)
	assert.EqualError(t, left[0].Err, "attempt 2 timed out")
}

func TestResubmitSkipsPermanentFailures(t *testing.T) {
	s := newFakeStreamer(nil)
	failures := []Failure{
		{Key: "GRP_BAD", Record: ptr(record("GRP_BAD")), Err: &models.ValidationError{Field: "group_type", Reason: "bad"}, Attempts: 1},
		{Key: "unknown", Err: errors.New("malformed JSON"), Attempts: 1},
	}

	left := Resubmit(context.Background(), testConfig(3), s, failures, time.Second, nil)

	assert.Len(t, left, 2)
	assert.Empty(t, s.submissions)
}

func TestResubmitDisabled(t *testing.T) {
	s := newFakeStreamer(nil)
	failures := []Failure{{Key: "GRP_1", Record: ptr(record("GRP_1")), Err: errors.New("timed out"), Attempts: 1}}

	left := Resubmit(context.Background(), DefaultConfig(), s, failures, time.Second, nil)

	assert.Equal(t, failures, left)
	assert.Empty(t, s.submissions)
}

func ptr(g models.GroupRecord) *models.GroupRecord {
	return &g
}

func TestUnresolved(t *testing.T) {
	s := newFakeStreamer(map[string]int{"GRP_1": 1, "GRP_2": 2})
	for _, id := range []string{"GRP_1", "GRP_2", "GRP_3"} {
		_, _ = s.Submit(record(id))
	}
	s.fail("GRP_BAD", models.ErrInvalidRecord)

	// GRP_1 recovers on resubmission, GRP_2 fails twice, GRP_3 fails late.
	_, _ = s.Submit(record("GRP_1"))
	_, _ = s.Submit(record("GRP_2"))
	s.fail("GRP_3", errors.New("request timed out"))

	records := map[string]models.GroupRecord{"GRP_1": record("GRP_1"), "GRP_2": record("GRP_2"), "GRP_3": record("GRP_3")}
	known := []Failure{{Key: "GRP_2", Attempts: 2}}
	failures := Unresolved(s, records, nil, known)

	require.Len(t, failures, 3)
	assert.Equal(t, "GRP_2", failures[0].Key)
	assert.EqualError(t, failures[0].Err, "attempt 2 timed out")
	assert.Equal(t, 2, failures[0].Attempts)

	assert.Equal(t, "GRP_BAD", failures[1].Key)
	assert.Nil(t, failures[1].Record)

	assert.Equal(t, "GRP_3", failures[2].Key)
	require.NotNil(t, failures[2].Record)
	assert.Equal(t, 1, failures[2].Attempts)
	assert.EqualError(t, failures[2].Err, "request timed out")
}
