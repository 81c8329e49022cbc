package progress

import (
	"context"
	"sync"
	"time"

	"maestro/internal/cache"
	"maestro/internal/jobstore"
)

// ReportFunc receives raw progress callbacks from the compute call:
// value in [0,1] plus a free-form stage label.
type ReportFunc func(value float64, stage string)

const (
	// minDelta is the smallest progress increase forwarded on its own.
	minDelta = 0.01
	// minInterval forwards an update regardless of delta once elapsed.
	minInterval = 500 * time.Millisecond
)

// Throttle suppresses redundant progress updates. An update passes when
// the value increased by at least minDelta, the stage changed, or
// minInterval elapsed since the last accepted update. This bounds write
// amplification on the store and cache during fast compute loops.
type Throttle struct {
	mu        sync.Mutex
	lastValue float64
	lastStage string
	lastTime  time.Time
	now       func() time.Time
}

// NewThrottle creates a throttle that accepts the first update it sees.
func NewThrottle() *Throttle {
	return &Throttle{lastValue: -1, now: time.Now}
}

// Accept reports whether the update should be forwarded, updating the
// throttle state when it is.
func (t *Throttle) Accept(value float64, stage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if value-t.lastValue >= minDelta ||
		stage != t.lastStage ||
		now.Sub(t.lastTime) >= minInterval {
		t.lastValue = value
		t.lastStage = stage
		t.lastTime = now
		return true
	}
	return false
}

// Bridge converts raw progress callbacks into job store updates and
// cache writes, throttled.
type Bridge struct {
	ctx      context.Context
	store    *jobstore.Store
	cache    *cache.Cache
	jobID    string
	throttle *Throttle

	mu        sync.Mutex
	lastStage string
}

// NewBridge creates a progress bridge for one job.
func NewBridge(ctx context.Context, store *jobstore.Store, c *cache.Cache, jobID string) *Bridge {
	return &Bridge{
		ctx:      ctx,
		store:    store,
		cache:    c,
		jobID:    jobID,
		throttle: NewThrottle(),
	}
}

// Report forwards one progress update. The value is clamped to [0,1];
// an empty stage falls back to the last seen stage, then "running".
func (b *Bridge) Report(value float64, stage string) {
	value = clamp01(value)

	b.mu.Lock()
	if stage == "" {
		stage = b.lastStage
	}
	if stage == "" {
		stage = "running"
	}
	b.lastStage = stage
	b.mu.Unlock()

	if !b.throttle.Accept(value, stage) {
		return
	}
	b.store.UpdateProgress(b.jobID, value, stage)
	b.cache.WriteProgress(b.ctx, b.store, b.jobID, value, stage)
}

// RunSpan returns the [start, end] progress window for sub-run i of n.
func RunSpan(i, n int) (float64, float64) {
	return float64(i) / float64(n), float64(i+1) / float64(n)
}

// Slice remaps a sub-run's raw [0,1] progress into [start, end]. The
// first observed value becomes the sub-run's zero so the externally
// visible progress stays monotonic and continuous across run boundaries
// (engines often start reporting mid-scale, e.g. at 0.51).
func Slice(report ReportFunc, start, end float64) ReportFunc {
	var mu sync.Mutex
	seen := false
	base := 0.0

	return func(value float64, stage string) {
		value = clamp01(value)

		mu.Lock()
		if !seen {
			seen = true
			base = value
		}
		var norm float64
		if value > base {
			denom := 1.0 - base
			if denom < 1e-6 {
				denom = 1e-6
			}
			norm = (value - base) / denom
			if norm > 1 {
				norm = 1
			}
		}
		mu.Unlock()

		report(start+(end-start)*norm, stage)
	}
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
