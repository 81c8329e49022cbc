package jobstore

import (
	"sync"
	"time"

	"maestro/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus" // Use logrus
)

// entry pairs a record with its notification slots. The channels are
// attached at submission time (not at creation) and observed by at most
// one consumer each.
type entry struct {
	rec      models.JobRecord
	done     chan struct{}
	doneOnce sync.Once
	events   chan models.Event
}

// Store is the authoritative, process-lifetime record of every job's
// lifecycle state. It exclusively owns JobRecord mutation; everything it
// hands out is a copy. The store is volatile: the result cache is the
// only state that can outlive it.
type Store struct {
	mu     sync.Mutex
	jobs   map[string]*entry
	maxAge time.Duration
	now    func() time.Time
}

// Stats is a point-in-time snapshot for observability endpoints.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// New creates an empty store. Terminal records older than maxAge become
// eligible for CleanupOldJobs.
func New(maxAge time.Duration) *Store {
	return &Store{
		jobs:   make(map[string]*entry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Create allocates a new queued record and returns a copy of it.
func (s *Store) Create(env string) models.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{
		rec: models.JobRecord{
			ID:        uuid.NewString(),
			Status:    models.StatusQueued,
			CreatedAt: s.now(),
			Stage:     string(models.StatusQueued),
			Env:       env,
		},
	}
	s.jobs[e.rec.ID] = e
	return e.rec
}

// Get returns a copy of the record, if present.
func (s *Store) Get(id string) (models.JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.JobRecord{}, false
	}
	return e.rec, true
}

// Remove deletes a record outright. Used to roll back a submission that
// lost the race against queue capacity; cleanup of old jobs goes through
// CleanupOldJobs instead.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// MarkRunning transitions queued -> running.
func (s *Store) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if e.rec.Status != models.StatusQueued {
		return models.ErrNotQueued
	}
	e.rec.Status = models.StatusRunning
	e.rec.Stage = string(models.StatusRunning)
	return nil
}

// MarkSucceeded transitions to the succeeded terminal state exactly once.
// Calls after a terminal state never double-apply.
func (s *Store) MarkSucceeded(id string, result *models.GenerationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if e.rec.Status.Terminal() {
		return models.ErrTerminal
	}
	e.rec.Status = models.StatusSucceeded
	e.rec.Stage = string(models.StatusSucceeded)
	e.rec.Progress = 1.0
	e.rec.Result = result
	return nil
}

// MarkFailed transitions to the failed terminal state exactly once.
func (s *Store) MarkFailed(id string, diagnostic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if e.rec.Status.Terminal() {
		return models.ErrTerminal
	}
	e.rec.Status = models.StatusFailed
	e.rec.Stage = string(models.StatusFailed)
	e.rec.Error = diagnostic
	return nil
}

// UpdateProgress records progress while the job is running. Anything
// else (missing record, queued, terminal) is silently ignored: progress
// is a notification, not a command.
func (s *Store) UpdateProgress(id string, value float64, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.rec.Status != models.StatusRunning {
		return
	}
	e.rec.Progress = clamp01(value)
	if stage != "" {
		e.rec.Stage = stage
	}
}

// UpdateProgressText sets the human-readable status line shown to
// polling clients.
func (s *Store) UpdateProgressText(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[id]; ok {
		e.rec.ProgressText = text
	}
}

// AttachDone attaches a one-shot completion signal for a synchronous
// waiter. Call it at submission time, before the worker can finish the
// job.
func (s *Store) AttachDone(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if e.done == nil {
		e.done = make(chan struct{})
	}
	return e.done
}

// AttachEvents attaches a buffered event channel for a streaming waiter.
// At most one consumer should read it.
func (s *Store) AttachEvents(id string, buffer int) <-chan models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		ch := make(chan models.Event)
		close(ch)
		return ch
	}
	if e.events == nil {
		e.events = make(chan models.Event, buffer)
	}
	return e.events
}

// Publish delivers an event to the job's channel if one is attached.
// Delivery never blocks; a slow or absent consumer drops events rather
// than stalling the worker.
func (s *Store) Publish(id string, ev models.Event) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	var ch chan models.Event
	if ok {
		ch = e.events
	}
	s.mu.Unlock()

	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		log.WithField("job_id", id).Warn("event channel full, dropping notification")
	}
}

// SignalDone fires the one-shot completion signal if a waiter attached
// one. Safe to call more than once.
func (s *Store) SignalDone(id string) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	s.mu.Unlock()

	if !ok || e.done == nil {
		return
	}
	e.doneOnce.Do(func() { close(e.done) })
}

// CleanupOldJobs removes terminal records older than the configured max
// age and returns how many were removed. Queued and running records of
// any age are never touched.
func (s *Store) CleanupOldJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for id, e := range s.jobs {
		if e.rec.Status.Terminal() && e.rec.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// GetStats returns a point-in-time snapshot of record counts.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.jobs)}
	for _, e := range s.jobs {
		switch e.rec.Status {
		case models.StatusQueued:
			st.Queued++
		case models.StatusRunning:
			st.Running++
		case models.StatusSucceeded:
			st.Succeeded++
		case models.StatusFailed:
			st.Failed++
		}
	}
	return st
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
