package retry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DeadLetter is one line of the dead-letter file.
type DeadLetter struct {
	Key      string          `json:"key"`               // Group identifier, or "unknown".
	Error    string          `json:"error"`             // Last error seen.
	FailedAt time.Time       `json:"failed_at"`         // Time the record was given up.
	Attempts int             `json:"attempts"`          // Submissions made.
	Payload  json.RawMessage `json:"payload,omitempty"` // Record as submitted or as read.
}

// DLQStats holds statistics about the dead-letter file.
type DLQStats struct {
	MessagesWritten int64     // Lines written.
	WriteErrors     int64     // Failed writes.
	LastWrittenTime time.Time // Time of the last successful write.
	LastErrorTime   time.Time // Time of the last failed write.
}

// DeadLetterFile appends records that could not be delivered to a JSON
// lines file, so they can be fixed and sent again with send-file.
type DeadLetterFile struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	stats DLQStats
}

// OpenDeadLetterFile opens path for appending, creating it if needed.
func OpenDeadLetterFile(path string) (*DeadLetterFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter file: %w", err)
	}
	return &DeadLetterFile{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends the failure as one line.
func (d *DeadLetterFile) Write(f Failure) error {
	letter := DeadLetter{
		Key:      f.Key,
		FailedAt: time.Now().UTC(),
		Attempts: f.Attempts,
		Payload:  f.Raw,
	}
	if f.Err != nil {
		letter.Error = f.Err.Error()
	}
	if f.Record != nil {
		payload, err := json.Marshal(f.Record)
		if err == nil {
			letter.Payload = payload
		}
	}
	if len(letter.Payload) > 0 && !json.Valid(letter.Payload) {
		quoted, _ := json.Marshal(string(letter.Payload))
		letter.Payload = quoted
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enc.Encode(letter); err != nil {
		d.stats.WriteErrors++
		d.stats.LastErrorTime = time.Now()
		return fmt.Errorf("failed to write dead letter: %w", err)
	}
	d.stats.MessagesWritten++
	d.stats.LastWrittenTime = time.Now()
	return nil
}

// Stats returns the current statistics.
func (d *DeadLetterFile) Stats() DLQStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close syncs and closes the file.
func (d *DeadLetterFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}
