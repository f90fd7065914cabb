package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trial log event names.
const (
	TrialOpened      = "opened"
	TrialInitialized = "initialized"
	TrialUpdated     = "updated"
	TrialSolved      = "solved"
	TrialComment     = "comment"
	TrialClosed      = "closed"
)

// TrialRecord is one line of the trial log.
type TrialRecord struct {
	TimeMS int64          `json:"time_ms"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
}

// TrialLog appends experiment events as JSONL. It is safe for concurrent
// use. A nil TrialLog is safe to use; all methods are no-ops on nil receiver.
type TrialLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewTrialLog writes records to w.
func NewTrialLog(w io.Writer) *TrialLog {
	return &TrialLog{w: w, now: time.Now}
}

// OpenTrialLog opens path for append, creating parent directories.
func OpenTrialLog(path string) (*TrialLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trial log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trial log: %w", err)
	}
	return &TrialLog{w: f, closer: f, now: time.Now}, nil
}

// Record writes one event. Safe to call on nil receiver.
func (t *TrialLog) Record(event string, data map[string]any) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}

	line, err := json.Marshal(TrialRecord{TimeMS: t.now().UnixMilli(), Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal trial record: %w", err)
	}
	line = append(line, '\n')
	if _, err := t.w.Write(line); err != nil {
		return fmt.Errorf("failed to write trial record: %w", err)
	}
	return nil
}

// Close closes the underlying file. Safe to call on nil receiver.
func (t *TrialLog) Close() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.w = nil
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

// Time returns the record timestamp.
func (r TrialRecord) Time() time.Time {
	return time.UnixMilli(r.TimeMS)
}

// ReadTrialLog decodes every record from a JSONL trial log. Blank lines are
// skipped; a malformed line fails with its line number.
func ReadTrialLog(r io.Reader) ([]TrialRecord, error) {
	var records []TrialRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec TrialRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trial log: %w", err)
	}
	return records, nil
}

// TrialSummary describes one model trial reconstructed from the log.
type TrialSummary struct {
	Experiment  string        `json:"experiment,omitempty"`
	Model       string        `json:"model"`
	Started     time.Time     `json:"started"`
	Updates     int           `json:"updates"`
	Solved      bool          `json:"solved"`
	Duration    time.Duration `json:"duration_ns"`
	OutputError float64       `json:"output_error"`
}

// Summarize groups records into trials. A trial starts at every
// "initialized" record naming a model and ends at the next one.
func Summarize(records []TrialRecord) []TrialSummary {
	var (
		out        []TrialSummary
		cur        *TrialSummary
		experiment string
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for _, rec := range records {
		switch rec.Event {
		case TrialOpened:
			flush()
			experiment, _ = rec.Data["experiment"].(string)
		case TrialInitialized:
			flush()
			if name, ok := rec.Data["model"].(string); ok {
				cur = &TrialSummary{Experiment: experiment, Model: name, Started: rec.Time()}
			}
		case TrialUpdated:
			if cur == nil {
				continue
			}
			cur.Updates++
			if v, ok := rec.Data["output_error"].(float64); ok {
				cur.OutputError = v
			}
			cur.Duration = rec.Time().Sub(cur.Started)
		case TrialSolved:
			if cur == nil {
				continue
			}
			cur.Solved = true
			cur.Duration = rec.Time().Sub(cur.Started)
		case TrialClosed:
			flush()
			experiment = ""
		}
	}
	flush()
	return out
}
