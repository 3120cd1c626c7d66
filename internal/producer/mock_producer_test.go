package producer

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
)

// MockKafkaProducer is a mock for the KafkaProducer interface.
type MockKafkaProducer struct {
	mock.Mock
	events chan kafka.Event
}

func (m *MockKafkaProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	args := m.Called(msg, deliveryChan)
	return args.Error(0)
}

// Events is not recorded; tests push client events on m.events directly.
func (m *MockKafkaProducer) Events() chan kafka.Event {
	return m.events
}

func (m *MockKafkaProducer) Flush(timeoutMs int) int {
	args := m.Called(timeoutMs)
	return args.Int(0)
}

func (m *MockKafkaProducer) Close() {
	m.Called()
}

// reportDelivery makes Produce answer with a delivery report carrying reportErr.
func reportDelivery(reportErr error) func(mock.Arguments) {
	return func(args mock.Arguments) {
		msg := args.Get(0).(*kafka.Message)
		deliveryChan := args.Get(1).(chan kafka.Event)
		report := *msg
		report.TopicPartition.Partition = 0
		report.TopicPartition.Offset = 42
		report.TopicPartition.Error = reportErr
		deliveryChan <- &report
	}
}

type sentMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

// fakeConnection is a Connection whose outcomes are pushed by the test.
type fakeConnection struct {
	mu         sync.Mutex
	sent       []sentMessage
	sendErr    error
	closeCalls int
	outcomes   chan Outcome
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{outcomes: make(chan Outcome, 1000)}
}

func (f *fakeConnection) Send(topic, key string, value []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (f *fakeConnection) Outcomes() <-chan Outcome {
	return f.outcomes
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.closeCalls == 1 {
		close(f.outcomes)
	}
	return nil
}

func (f *fakeConnection) ack(key string) {
	f.outcomes <- Outcome{Key: key, Success: true}
}

func (f *fakeConnection) fail(key string, err error) {
	f.outcomes <- Outcome{Key: key, Err: err}
}

func (f *fakeConnection) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}
