package logbuf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Buffer is a logrus hook retaining the latest non-empty formatted log
// line. Polling endpoints attach it to running jobs as a live
// progress-text line. It is constructed once at startup and passed
// explicitly to whatever needs it, never kept as a package global.
type Buffer struct {
	mu   sync.Mutex
	last string
}

// New creates a buffer with a default waiting message.
func New() *Buffer {
	return &Buffer{last: "Waiting"}
}

// LastMessage returns the most recent captured line.
func (b *Buffer) LastMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Fire implements logrus.Hook.
func (b *Buffer) Fire(entry *logrus.Entry) error {
	msg := strings.TrimSpace(entry.Message)
	if msg == "" {
		return nil
	}
	line := fmt.Sprintf("%s | %s | %s",
		entry.Time.Format("15:04:05"),
		strings.ToUpper(entry.Level.String()),
		msg,
	)
	b.mu.Lock()
	b.last = line
	b.mu.Unlock()
	return nil
}

// Levels implements logrus.Hook.
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}
