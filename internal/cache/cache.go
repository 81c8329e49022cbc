package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"maestro/internal/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus" // Use logrus
)

// Backend is the narrow key/value surface the result cache needs:
// string values with per-entry expiry. Redis in production, an in-memory
// map in tests.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects a Backend to a Redis server.
func NewRedisBackend(addr, password string, db int) Backend {
	return &redisBackend{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (b *redisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

// RecordReader is the slice of the job store the cache writers need to
// stamp env and create_time onto payloads.
type RecordReader interface {
	Get(id string) (models.JobRecord, bool)
}

// Cache publishes job state under {prefix}{job_id} with a TTL, in a
// format independent of the store's in-memory representation. It is not
// authoritative: every write is fire-and-forget and every read failure
// degrades to a miss. A nil backend turns every operation into a no-op.
type Cache struct {
	backend Backend
	prefix  string
	ttl     time.Duration
}

// New creates a cache front. backend may be nil when no cache is
// configured; the cache then fails open everywhere.
func New(backend Backend, prefix string, ttl time.Duration) *Cache {
	return &Cache{backend: backend, prefix: prefix, ttl: ttl}
}

// Enabled reports whether a backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.backend != nil
}

// Key returns the cache key for a job id.
func (c *Cache) Key(jobID string) string {
	return c.prefix + jobID
}

// Get returns the raw cached payload for a job id. Backend errors are
// logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, jobID string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	val, ok, err := c.backend.Get(ctx, c.Key(jobID))
	if err != nil {
		log.WithField("job_id", jobID).Debugf("cache read failed: %v", err)
		return "", false
	}
	return val, ok
}

// set marshals and stores a payload, fire-and-forget.
func (c *Cache) set(ctx context.Context, jobID string, payload any) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithField("job_id", jobID).Warnf("cache payload marshal failed: %v", err)
		return
	}
	if err := c.backend.Set(ctx, c.Key(jobID), string(data), c.ttl); err != nil {
		log.WithField("job_id", jobID).Debugf("cache write failed: %v", err)
	}
}

// recordEnvAndTime returns the env tag and creation time for payload
// stamping, defaulting when the store no longer has the record.
func recordEnvAndTime(store RecordReader, jobID string, now func() time.Time) (string, int64) {
	rec, ok := store.Get(jobID)
	if !ok {
		return "development", now().Unix()
	}
	env := rec.Env
	if env == "" {
		env = "development"
	}
	return env, rec.CreatedAt.Unix()
}

// WriteProgress publishes a queued/running progress payload (status
// code 0).
func (c *Cache) WriteProgress(ctx context.Context, store RecordReader, jobID string, progress float64, stage string) {
	if !c.Enabled() {
		return
	}
	env, createTime := recordEnvAndTime(store, jobID, time.Now)
	c.set(ctx, jobID, []models.CacheEntry{{
		Status:     models.CodePending,
		CreateTime: createTime,
		Env:        env,
		Progress:   progress,
		Stage:      stage,
	}})
}

// WriteTerminal publishes the terminal payload for a job: one element
// per audio artifact on success, a single placeholder element when there
// are none, the full-analysis result verbatim for that kind, or a
// failure marker.
func (c *Cache) WriteTerminal(ctx context.Context, store RecordReader, jobID string, result *models.GenerationResult, status models.Status) {
	if !c.Enabled() {
		return
	}
	env, createTime := recordEnvAndTime(store, jobID, time.Now)
	statusCode := status.Code()

	if status == models.StatusSucceeded && result != nil {
		if result.Kind == models.KindFullAnalysis {
			c.set(ctx, jobID, []*models.GenerationResult{result})
			return
		}
		c.set(ctx, jobID, successEntries(result, statusCode, createTime, env))
		return
	}

	stage := string(status)
	c.set(ctx, jobID, []models.CacheEntry{{
		Status:     statusCode,
		CreateTime: createTime,
		Env:        env,
		Progress:   0,
		Stage:      stage,
	}})
}

// successEntries builds the per-artifact list for a normal generation
// result.
func successEntries(result *models.GenerationResult, statusCode int, createTime int64, env string) []models.CacheEntry {
	metas := result.Metas
	base := models.CacheEntry{
		Status:         statusCode,
		CreateTime:     createTime,
		Env:            env,
		Prompt:         result.Prompt,
		Lyrics:         result.Lyrics,
		Metas:          &metas,
		GenerationInfo: result.GenerationInfo,
		SeedValue:      result.SeedValue,
		LMModel:        result.LMModel,
		DiTModel:       result.DiTModel,
		Progress:       1.0,
		Stage:          string(models.StatusSucceeded),
	}

	if len(result.AudioPaths) == 0 {
		return []models.CacheEntry{base}
	}
	entries := make([]models.CacheEntry, 0, len(result.AudioPaths))
	for _, path := range result.AudioPaths {
		e := base
		e.File = path
		entries = append(entries, e)
	}
	return entries
}
