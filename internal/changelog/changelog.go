// Package changelog records human-readable change notes per record.
package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the changelog file kept in each record directory.
const FileName = "changelog"

// Sink receives one change note for a record.
type Sink interface {
	Append(id, message string) error
}

// DirFunc maps a record identifier to the directory its changelog lives in.
type DirFunc func(id string) (string, error)

// FileSink appends entries to <dir>/changelog. An entry is the message
// prefixed by "* ", then a "-- <user>  <timestamp>" line.
type FileSink struct {
	Dir  DirFunc
	User string

	mu  sync.Mutex
	now func() time.Time
}

// NewFileSink returns a sink writing under the directories dir yields.
func NewFileSink(dir DirFunc, user string) *FileSink {
	if user == "" {
		user = defaultUser()
	}
	return &FileSink{Dir: dir, User: user, now: time.Now}
}

// Append implements Sink.
func (s *FileSink) Append(id, message string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	entry := Format(message, s.User, now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	p := filepath.Join(dir, FileName)
	// #nosec G304 - path built from the record store layout
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open changelog: %w", err)
	}
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append changelog: %w", err)
	}
	return f.Close()
}

// Format renders one changelog entry.
func Format(message, user string, at time.Time) string {
	message = strings.ReplaceAll(strings.TrimSpace(message), "\n", " ")
	return fmt.Sprintf("* %s\n-- %s  %s\n", message, user, at.Format(time.RFC3339))
}

func defaultUser() string {
	for _, k := range []string{"DDRSYNC_USER", "USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "ddrsync"
}

// Entry is an appended note kept by MemorySink.
type Entry struct {
	ID      string
	Message string
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// Append implements Sink.
func (m *MemorySink) Append(id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{ID: id, Message: message})
	return nil
}

// Entries returns a copy of what was appended.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
