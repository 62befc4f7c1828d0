// Package journal records hub broadcasts as an append-only JSON-lines file:
// one header object followed by one [offset_seconds, kind, data] array per
// event.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Version is the journal format version written in every header.
const Version = 1

// Header is the first line of a journal.
type Header struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Event is a single recorded broadcast.
// Format: [time_offset, kind, data]
type Event struct {
	TimeOffset float64
	Kind       string
	Data       string
}

// MarshalJSON implements custom JSON marshaling for Event.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.Kind, e.Data})
}

// UnmarshalJSON implements custom JSON unmarshaling for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	kind, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event kind")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data type")
	}

	e.TimeOffset = offset
	e.Kind = kind
	e.Data = payload
	return nil
}

// Writer appends events to a journal.
type Writer struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// Create truncates or creates the file at path and returns a Writer for it.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}
	return &Writer{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}, nil
}

// NewWriter returns a Writer over w. The caller owns w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteHeader writes the header line. Call it once before any event.
func (w *Writer) WriteHeader(width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(Header{
		Version:   Version,
		Width:     width,
		Height:    height,
		Timestamp: w.startTime.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Record appends one event stamped with the time since the journal started.
func (w *Writer) Record(kind string, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(Event{
		TimeOffset: time.Since(w.startTime).Seconds(),
		Kind:       kind,
		Data:       string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the journal file if the Writer owns it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Read parses a complete journal.
func Read(r io.Reader) (*Header, []Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to read header: %w", err)
		}
		return nil, nil, fmt.Errorf("empty journal")
	}

	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var events []Event
	for line := 2; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read events: %w", err)
	}

	return &header, events, nil
}
