package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maestro/internal/cache"
	"maestro/internal/jobstore"
	"maestro/internal/models"
)

// Item is one element of the batch poll response.
type Item struct {
	TaskID       string `json:"task_id"`
	Result       string `json:"result"`
	Status       int    `json:"status"`
	ProgressText string `json:"progress_text,omitempty"`
}

// Aggregator merges cache and store state into the client-facing result
// list. For each id it prefers the result cache, falls back to the job
// store, and finally reports "not started yet". The cache tier wins even
// when the store has fresher state; see the staleness note on Collect.
type Aggregator struct {
	cache      *cache.Cache
	store      *jobstore.Store
	staleAfter time.Duration
	lastLog    func() string
	now        func() time.Time
}

// New creates an aggregator. lastLog supplies the live progress-text
// line attached to still-running items; it may be nil.
func New(c *cache.Cache, store *jobstore.Store, staleAfter time.Duration, lastLog func() string) *Aggregator {
	if lastLog == nil {
		lastLog = func() string { return "" }
	}
	return &Aggregator{
		cache:      c,
		store:      store,
		staleAfter: staleAfter,
		lastLog:    lastLog,
		now:        time.Now,
	}
}

// ParseTaskIDs parses the raw task_id_list input permissively: a JSON
// array, or a JSON string containing one. Malformed input yields an
// empty list, never an error; legacy clients depend on the lenient
// behavior.
func ParseTaskIDs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		// Maybe a JSON-encoded string holding the array.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil
		}
	}

	ids := make([]string, 0, len(list))
	for _, v := range list {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		default:
			ids = append(ids, fmt.Sprint(v))
		}
	}
	return ids
}

// Collect produces one item per id, in input order.
//
// Known trade-off, preserved deliberately: when a cache entry exists its
// create_time is trusted over the store's, so a job the store completed
// after its cache entry went stale is still reported failed from the
// cache tier without consulting the store.
func (a *Aggregator) Collect(ctx context.Context, ids []string) []Item {
	now := a.now()
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		if raw, ok := a.cache.Get(ctx, id); ok {
			items = append(items, a.cacheItem(id, raw, now))
			continue
		}
		if rec, ok := a.store.Get(id); ok {
			items = append(items, a.storeItem(id, rec))
			continue
		}
		// Unknown to both tiers: indistinguishable from "not started yet".
		items = append(items, Item{TaskID: id, Result: "[]", Status: models.CodePending})
	}
	return items
}

// cacheItem builds a response item from a raw cache payload.
func (a *Aggregator) cacheItem(id, raw string, now time.Time) Item {
	var elems []map[string]any
	if err := json.Unmarshal([]byte(raw), &elems); err != nil || len(elems) == 0 {
		// Corrupted or expired-mid-read data: degrade this item only.
		return Item{TaskID: id, Result: raw, Status: models.CodeFailed}
	}

	first := elems[0]
	status, hasStatus := asInt(first["status"])
	if !hasStatus {
		// Full-analysis payloads carry no status field; they are terminal
		// successes by construction.
		status = models.CodeSucceeded
	}
	createTime, _ := asInt(first["create_time"])

	if status == models.CodePending && now.Unix()-int64(createTime) > int64(a.staleAfter.Seconds()) {
		// Reported "still running" for longer than the timeout: presumed
		// dead, regardless of the store's actual state.
		return Item{TaskID: id, Result: raw, Status: models.CodeFailed}
	}
	return Item{
		TaskID:       id,
		Result:       raw,
		Status:       status,
		ProgressText: a.lastLog(),
	}
}

// storeItem builds a response item from the job store record.
func (a *Aggregator) storeItem(id string, rec models.JobRecord) Item {
	statusCode := rec.Status.Code()

	var payload any
	if rec.Status == models.StatusSucceeded && rec.Result != nil {
		if rec.Result.Kind == models.KindFullAnalysis {
			payload = []*models.GenerationResult{rec.Result}
		} else {
			payload = storeSuccessEntries(rec, statusCode)
		}
	} else {
		payload = []models.CacheEntry{{
			Status:     statusCode,
			CreateTime: rec.CreatedAt.Unix(),
			Env:        rec.Env,
			Progress:   rec.Progress,
			Stage:      rec.Stage,
			Error:      rec.Error,
		}}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Item{TaskID: id, Result: "[]", Status: models.CodeFailed}
	}

	progressText := rec.ProgressText
	if statusCode == models.CodePending {
		progressText = a.lastLog()
	}
	return Item{
		TaskID:       id,
		Result:       string(data),
		Status:       statusCode,
		ProgressText: progressText,
	}
}

func storeSuccessEntries(rec models.JobRecord, statusCode int) []models.CacheEntry {
	result := rec.Result
	metas := result.Metas
	base := models.CacheEntry{
		Status:     statusCode,
		CreateTime: rec.CreatedAt.Unix(),
		Env:        rec.Env,
		Prompt:     result.Prompt,
		Lyrics:     result.Lyrics,
		Metas:      &metas,
		Progress:   1.0,
		Stage:      string(models.StatusSucceeded),
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

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
