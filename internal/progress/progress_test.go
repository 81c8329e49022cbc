package progress_test

import (
	"context"
	"testing"
	"time"

	"maestro/internal/cache"
	"maestro/internal/jobstore"
	"maestro/internal/progress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleRules(t *testing.T) {
	now := time.Unix(1700000000, 0)
	th := progress.NewThrottle()
	progress.SetNowForTest(th, func() time.Time { return now })

	// First update always passes.
	assert.True(t, th.Accept(0.10, "generating"))

	// Tiny delta, same stage, no time passed: suppressed.
	now = now.Add(10 * time.Millisecond)
	assert.False(t, th.Accept(0.105, "generating"))

	// Delta of at least 0.01 passes.
	assert.True(t, th.Accept(0.11, "generating"))

	// Stage change passes regardless of delta.
	assert.True(t, th.Accept(0.11, "decoding"))

	// Suppressed again...
	assert.False(t, th.Accept(0.111, "decoding"))

	// ...until half a second elapses.
	now = now.Add(500 * time.Millisecond)
	assert.True(t, th.Accept(0.111, "decoding"))
}

func TestBridgeReportUpdatesStore(t *testing.T) {
	store := jobstore.New(24 * time.Hour)
	c := cache.New(nil, "test_", time.Hour)
	rec := store.Create("test")
	require.NoError(t, store.MarkRunning(rec.ID))

	b := progress.NewBridge(context.Background(), store, c, rec.ID)

	b.Report(0.3, "generating")
	got, _ := store.Get(rec.ID)
	assert.Equal(t, 0.3, got.Progress)
	assert.Equal(t, "generating", got.Stage)

	// Empty stage falls back to the last seen one.
	b.Report(0.6, "")
	got, _ = store.Get(rec.ID)
	assert.Equal(t, 0.6, got.Progress)
	assert.Equal(t, "generating", got.Stage)

	// Out-of-range values are clamped.
	b.Report(2.5, "decoding")
	got, _ = store.Get(rec.ID)
	assert.Equal(t, 1.0, got.Progress)
}

func TestBridgeDefaultsStageToRunning(t *testing.T) {
	store := jobstore.New(24 * time.Hour)
	rec := store.Create("test")
	require.NoError(t, store.MarkRunning(rec.ID))

	b := progress.NewBridge(context.Background(), store, cache.New(nil, "t_", time.Hour), rec.ID)
	b.Report(0.2, "")

	got, _ := store.Get(rec.ID)
	assert.Equal(t, "running", got.Stage)
}

func TestRunSpan(t *testing.T) {
	start, end := progress.RunSpan(0, 4)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 0.25, end)

	start, end = progress.RunSpan(3, 4)
	assert.Equal(t, 0.75, start)
	assert.Equal(t, 1.0, end)
}

func TestSliceRemapsIntoWindow(t *testing.T) {
	var values []float64
	report := func(v float64, stage string) { values = append(values, v) }

	sliced := progress.Slice(report, 0.5, 1.0)

	// Engines often start reporting mid-scale; the first observed value
	// becomes the sub-run's zero.
	sliced(0.5, "generating")
	sliced(0.75, "generating")
	sliced(1.0, "generating")

	require.Len(t, values, 3)
	assert.Equal(t, 0.5, values[0])
	assert.InDelta(t, 0.75, values[1], 1e-9)
	assert.InDelta(t, 1.0, values[2], 1e-9)
}

func TestSliceIsMonotonicAcrossRuns(t *testing.T) {
	var values []float64
	report := func(v float64, stage string) { values = append(values, v) }

	for i := 0; i < 2; i++ {
		start, end := progress.RunSpan(i, 2)
		sliced := progress.Slice(report, start, end)
		sliced(0.2, "s")
		sliced(0.6, "s")
		sliced(1.0, "s")
	}

	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress must never move backwards")
	}
	assert.InDelta(t, 1.0, values[len(values)-1], 1e-9)
}

func TestSliceNeverRegressesBelowBase(t *testing.T) {
	var values []float64
	sliced := progress.Slice(func(v float64, stage string) { values = append(values, v) }, 0.0, 0.5)

	sliced(0.8, "s")
	sliced(0.4, "s") // below the observed base maps to the window start

	require.Len(t, values, 2)
	assert.Equal(t, 0.0, values[0])
	assert.Equal(t, 0.0, values[1])
}
