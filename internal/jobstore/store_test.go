package jobstore_test

import (
	"testing"
	"time"

	"maestro/internal/jobstore"
	"maestro/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	s := jobstore.New(24 * time.Hour)

	rec := s.Create("production")
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, models.StatusQueued, rec.Status)
	assert.Equal(t, "production", rec.Env)

	got, ok := s.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)

	_, ok = s.Get("no-such-id")
	assert.False(t, ok)
}

func TestLifecycleTransitions(t *testing.T) {
	s := jobstore.New(24 * time.Hour)
	rec := s.Create("test")

	require.NoError(t, s.MarkRunning(rec.ID))
	got, _ := s.Get(rec.ID)
	assert.Equal(t, models.StatusRunning, got.Status)

	// Running again is not a valid transition.
	assert.ErrorIs(t, s.MarkRunning(rec.ID), models.ErrNotQueued)

	result := &models.GenerationResult{Kind: models.KindGeneration, AudioPaths: []string{"a.flac"}}
	require.NoError(t, s.MarkSucceeded(rec.ID, result))
	got, _ = s.Get(rec.ID)
	assert.Equal(t, models.StatusSucceeded, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.Result)

	// Terminal states are never overwritten.
	assert.ErrorIs(t, s.MarkFailed(rec.ID, "late failure"), models.ErrTerminal)
	assert.ErrorIs(t, s.MarkSucceeded(rec.ID, nil), models.ErrTerminal)
	got, _ = s.Get(rec.ID)
	assert.Equal(t, models.StatusSucceeded, got.Status)
	assert.Empty(t, got.Error)
}

func TestMarkFailedRecordsDiagnostic(t *testing.T) {
	s := jobstore.New(24 * time.Hour)
	rec := s.Create("test")
	require.NoError(t, s.MarkRunning(rec.ID))

	require.NoError(t, s.MarkFailed(rec.ID, "device out of memory"))
	got, _ := s.Get(rec.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "device out of memory", got.Error)

	assert.ErrorIs(t, s.MarkRunning("missing"), models.ErrNotFound)
}

func TestUpdateProgressOnlyWhileRunning(t *testing.T) {
	s := jobstore.New(24 * time.Hour)
	rec := s.Create("test")

	// Queued: ignored.
	s.UpdateProgress(rec.ID, 0.5, "early")
	got, _ := s.Get(rec.ID)
	assert.Zero(t, got.Progress)

	require.NoError(t, s.MarkRunning(rec.ID))
	s.UpdateProgress(rec.ID, 0.5, "generating")
	got, _ = s.Get(rec.ID)
	assert.Equal(t, 0.5, got.Progress)
	assert.Equal(t, "generating", got.Stage)

	// Values outside [0,1] are clamped.
	s.UpdateProgress(rec.ID, 1.7, "late")
	got, _ = s.Get(rec.ID)
	assert.Equal(t, 1.0, got.Progress)

	// Empty stage keeps the previous one.
	s.UpdateProgress(rec.ID, 0.9, "")
	got, _ = s.Get(rec.ID)
	assert.Equal(t, "late", got.Stage)

	require.NoError(t, s.MarkSucceeded(rec.ID, nil))
	s.UpdateProgress(rec.ID, 0.1, "ghost")
	got, _ = s.Get(rec.ID)
	assert.Equal(t, 1.0, got.Progress)
}

func TestDoneSignal(t *testing.T) {
	s := jobstore.New(24 * time.Hour)
	rec := s.Create("test")

	done := s.AttachDone(rec.ID)
	select {
	case <-done:
		t.Fatal("done fired before completion")
	default:
	}

	s.SignalDone(rec.ID)
	s.SignalDone(rec.ID) // safe to repeat

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done signal not delivered")
	}

	// Missing records hand back an already-closed channel.
	select {
	case <-s.AttachDone("missing"):
	case <-time.After(time.Second):
		t.Fatal("missing-record done channel should be closed")
	}
}

func TestEventDelivery(t *testing.T) {
	s := jobstore.New(24 * time.Hour)
	rec := s.Create("test")

	events := s.AttachEvents(rec.ID, 2)
	s.Publish(rec.ID, models.Event{Type: models.EventResult})
	s.Publish(rec.ID, models.Event{Type: models.EventDone})

	ev := <-events
	assert.Equal(t, models.EventResult, ev.Type)
	ev = <-events
	assert.Equal(t, models.EventDone, ev.Type)

	// Publishing to a job with no channel is a no-op.
	other := s.Create("test")
	s.Publish(other.ID, models.Event{Type: models.EventDone})

	// A full channel drops rather than blocks.
	s.Publish(rec.ID, models.Event{Type: models.EventError})
	s.Publish(rec.ID, models.Event{Type: models.EventError})
	s.Publish(rec.ID, models.Event{Type: models.EventError})
}

func TestCleanupOldJobs(t *testing.T) {
	s := jobstore.New(time.Hour)

	oldDone := s.Create("test")
	require.NoError(t, s.MarkRunning(oldDone.ID))
	require.NoError(t, s.MarkSucceeded(oldDone.ID, nil))

	oldRunning := s.Create("test")
	require.NoError(t, s.MarkRunning(oldRunning.ID))

	jobstore.SetCreatedAtForTest(s, oldDone.ID, time.Now().Add(-2*time.Hour))
	jobstore.SetCreatedAtForTest(s, oldRunning.ID, time.Now().Add(-2*time.Hour))

	freshDone := s.Create("test")
	require.NoError(t, s.MarkRunning(freshDone.ID))
	require.NoError(t, s.MarkFailed(freshDone.ID, "x"))

	removed := s.CleanupOldJobs()
	assert.Equal(t, 1, removed)

	_, ok := s.Get(oldDone.ID)
	assert.False(t, ok, "old terminal record should be removed")
	_, ok = s.Get(oldRunning.ID)
	assert.True(t, ok, "running records are never removed")
	_, ok = s.Get(freshDone.ID)
	assert.True(t, ok, "fresh terminal records stay")
}

func TestGetStats(t *testing.T) {
	s := jobstore.New(time.Hour)

	a := s.Create("test")
	b := s.Create("test")
	c := s.Create("test")
	_ = s.Create("test")

	require.NoError(t, s.MarkRunning(a.ID))
	require.NoError(t, s.MarkRunning(b.ID))
	require.NoError(t, s.MarkSucceeded(b.ID, nil))
	require.NoError(t, s.MarkRunning(c.ID))
	require.NoError(t, s.MarkFailed(c.ID, "x"))

	st := s.GetStats()
	assert.Equal(t, jobstore.Stats{Total: 4, Queued: 1, Running: 1, Succeeded: 1, Failed: 1}, st)
}
