package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"maestro/internal/cache"
	"maestro/internal/jobstore"
	"maestro/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failSet bool
	failGet bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memBackend) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("backend down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("backend down")
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func decodeEntries(t *testing.T, raw string) []models.CacheEntry {
	t.Helper()
	var entries []models.CacheEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	return entries
}

func TestNilBackendIsNoOp(t *testing.T) {
	c := cache.New(nil, "p_", time.Hour)
	store := jobstore.New(time.Hour)

	assert.False(t, c.Enabled())
	c.WriteProgress(context.Background(), store, "id", 0.5, "generating")
	c.WriteTerminal(context.Background(), store, "id", nil, models.StatusFailed)
	_, ok := c.Get(context.Background(), "id")
	assert.False(t, ok)
}

func TestKeyUsesPrefix(t *testing.T) {
	c := cache.New(newMemBackend(), "maestro_v1_", time.Hour)
	assert.Equal(t, "maestro_v1_abc", c.Key("abc"))
}

func TestWriteProgressPayload(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", 7*24*time.Hour)
	store := jobstore.New(time.Hour)
	rec := store.Create("production")

	c.WriteProgress(context.Background(), store, rec.ID, 0.42, "generating")

	raw, ok := c.Get(context.Background(), rec.ID)
	require.True(t, ok)
	entries := decodeEntries(t, raw)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CodePending, entries[0].Status)
	assert.Equal(t, 0.42, entries[0].Progress)
	assert.Equal(t, "generating", entries[0].Stage)
	assert.Equal(t, "production", entries[0].Env)
	assert.Equal(t, rec.CreatedAt.Unix(), entries[0].CreateTime)
	assert.Equal(t, 7*24*time.Hour, b.ttls["p_"+rec.ID])
}

func TestWriteProgressMissingRecordDefaults(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)

	c.WriteProgress(context.Background(), store, "ghost", 0.1, "running")

	raw, ok := c.Get(context.Background(), "ghost")
	require.True(t, ok)
	entries := decodeEntries(t, raw)
	require.Len(t, entries, 1)
	assert.Equal(t, "development", entries[0].Env)
	assert.NotZero(t, entries[0].CreateTime)
}

func TestWriteTerminalSuccessOneEntryPerArtifact(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)
	rec := store.Create("test")

	result := &models.GenerationResult{
		Kind:       models.KindGeneration,
		AudioPaths: []string{"a.flac", "b.flac"},
		Prompt:     "jazz",
		SeedValue:  "42",
		DiTModel:   "base",
	}
	c.WriteTerminal(context.Background(), store, rec.ID, result, models.StatusSucceeded)

	raw, _ := c.Get(context.Background(), rec.ID)
	entries := decodeEntries(t, raw)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.flac", entries[0].File)
	assert.Equal(t, "b.flac", entries[1].File)
	for _, e := range entries {
		assert.Equal(t, models.CodeSucceeded, e.Status)
		assert.Equal(t, 1.0, e.Progress)
		assert.Equal(t, "jazz", e.Prompt)
		assert.Equal(t, "42", e.SeedValue)
	}
}

func TestWriteTerminalSuccessWithoutArtifacts(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)
	rec := store.Create("test")

	c.WriteTerminal(context.Background(), store, rec.ID,
		&models.GenerationResult{Kind: models.KindGeneration}, models.StatusSucceeded)

	raw, _ := c.Get(context.Background(), rec.ID)
	entries := decodeEntries(t, raw)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].File)
	assert.Equal(t, models.CodeSucceeded, entries[0].Status)
}

func TestWriteTerminalFullAnalysisPassesResultThrough(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)
	rec := store.Create("test")

	result := &models.GenerationResult{
		Kind:          models.KindFullAnalysis,
		StatusMessage: "Full Hardware Analysis Success",
		Analysis:      map[string]any{"caption": "slow piano"},
	}
	c.WriteTerminal(context.Background(), store, rec.ID, result, models.StatusSucceeded)

	raw, _ := c.Get(context.Background(), rec.ID)
	var results []models.GenerationResult
	require.NoError(t, json.Unmarshal([]byte(raw), &results))
	require.Len(t, results, 1)
	assert.Equal(t, models.KindFullAnalysis, results[0].Kind)
	assert.Equal(t, "slow piano", results[0].Analysis["caption"])
}

func TestWriteTerminalFailure(t *testing.T) {
	b := newMemBackend()
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)
	rec := store.Create("test")

	c.WriteTerminal(context.Background(), store, rec.ID, nil, models.StatusFailed)

	raw, _ := c.Get(context.Background(), rec.ID)
	entries := decodeEntries(t, raw)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CodeFailed, entries[0].Status)
	assert.Equal(t, string(models.StatusFailed), entries[0].Stage)
	assert.Zero(t, entries[0].Progress)
}

func TestWritesFailOpen(t *testing.T) {
	b := newMemBackend()
	b.failSet = true
	c := cache.New(b, "p_", time.Hour)
	store := jobstore.New(time.Hour)

	// Must not panic or surface the error.
	c.WriteProgress(context.Background(), store, "id", 0.5, "s")
	c.WriteTerminal(context.Background(), store, "id", nil, models.StatusFailed)
}

func TestGetDegradesToMissOnError(t *testing.T) {
	b := newMemBackend()
	b.data["p_id"] = "[]"
	b.failGet = true
	c := cache.New(b, "p_", time.Hour)

	_, ok := c.Get(context.Background(), "id")
	assert.False(t, ok)
}
