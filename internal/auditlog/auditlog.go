package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"maestro/internal/models"

	log "github.com/sirupsen/logrus" // Use logrus
)

// AppendRecord appends one JSON line to path, creating directories as
// needed.
func AppendRecord(path string, record any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// WriteSnapshot writes JSON atomically via a temp file and rename, so a
// crash mid-write cannot leave a truncated snapshot behind.
func WriteSnapshot(path string, payload any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp_*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Entry is one terminal-job audit record.
type Entry struct {
	JobID           string    `json:"job_id"`
	Status          string    `json:"status"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Trail appends terminal job outcomes to a JSONL file and keeps an
// atomic rolling-summary snapshot next to it. A nil Trail is a no-op so
// the worker never has to care whether auditing is configured.
type Trail struct {
	mu           sync.Mutex
	logPath      string
	snapshotPath string
	succeeded    int
	failed       int
}

// NewTrail creates a trail rooted at dir, or nil when dir is empty.
func NewTrail(dir string) *Trail {
	if dir == "" {
		return nil
	}
	return &Trail{
		logPath:      filepath.Join(dir, "jobs.jsonl"),
		snapshotPath: filepath.Join(dir, "summary.json"),
	}
}

// Record writes one terminal outcome. Failures are logged and swallowed:
// the audit trail must never affect job processing.
func (t *Trail) Record(jobID string, status models.Status, duration time.Duration, errText string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if status == models.StatusSucceeded {
		t.succeeded++
	} else {
		t.failed++
	}

	entry := Entry{
		JobID:           jobID,
		Status:          string(status),
		DurationSeconds: duration.Seconds(),
		Error:           errText,
		FinishedAt:      time.Now().UTC(),
	}
	if err := AppendRecord(t.logPath, entry); err != nil {
		log.Warnf("audit append failed: %v", err)
	}

	summary := map[string]any{
		"succeeded":  t.succeeded,
		"failed":     t.failed,
		"updated_at": entry.FinishedAt,
	}
	if err := WriteSnapshot(t.snapshotPath, summary); err != nil {
		log.Warnf("audit snapshot failed: %v", err)
	}
}
