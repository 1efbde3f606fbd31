// Package logsink persists heart-rate samples to an append-only CSV file.
package logsink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/srg/h64log/internal/telemetry"
)

// DefaultDir is the directory DefaultPath places log files in.
const DefaultDir = "logs"

// TimestampLayout is the row timestamp format: local time, second precision.
const TimestampLayout = "2006-01-02T15:04:05"

// Header is the first row of every log file.
var Header = []string{"timestamp", "bpm", "battery_percent"}

// IOError wraps a filesystem failure of the sink.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DefaultPath returns the log file path for a session started at now.
func DefaultPath(now time.Time) string {
	return DefaultPathIn(DefaultDir, now)
}

// DefaultPathIn is DefaultPath rooted at dir.
func DefaultPathIn(dir string, now time.Time) string {
	return filepath.Join(dir, "h64_hr_log_"+now.Format("20060102_150405")+".csv")
}

// Sink writes one CSV row per sample. Every row is flushed and synced before
// Append returns, so a crash loses at most the row being written.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	rows   int
	closed bool
}

// Open creates (or truncates) the file at path, creating parent directories,
// and writes the header row.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	s := &Sink{path: path, file: f, writer: csv.NewWriter(f)}
	if err := s.write(Header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the file path the sink writes to.
func (s *Sink) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Append writes a row for sample with the battery level known at call time.
func (s *Sink) Append(sample telemetry.HeartRateSample, battery telemetry.BatteryReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &IOError{Op: "append", Path: s.path, Err: os.ErrClosed}
	}

	batteryField := ""
	if battery.Known {
		batteryField = strconv.Itoa(int(battery.Percent))
	}

	record := []string{
		sample.Timestamp.Local().Format(TimestampLayout),
		strconv.Itoa(int(sample.BPM)),
		batteryField,
	}
	if err := s.write(record); err != nil {
		return err
	}
	s.rows++
	return nil
}

func (s *Sink) write(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &IOError{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

// Rows returns the number of data rows written, excluding the header.
func (s *Sink) Rows() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes and closes the file. It is safe to call more than once and on a nil sink.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.writer.Flush()
	flushErr := s.writer.Error()
	if err := s.file.Close(); err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	if flushErr != nil {
		return &IOError{Op: "write", Path: s.path, Err: flushErr}
	}
	return nil
}
