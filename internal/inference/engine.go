package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"maestro/internal/models"
	"maestro/internal/modelswap"
)

// ProgressFunc receives progress callbacks from a running generation:
// value in [0,1] plus a stage label.
type ProgressFunc func(value float64, stage string)

// Engine is the opaque blocking compute call the serving layer wraps.
// Generate may hang or take minutes; callers run it under the
// timeout-guarded executor and must not assume it honors ctx promptly.
type Engine interface {
	Generate(ctx context.Context, req *models.GenerationRequest, progress ProgressFunc) (*models.GenerationResult, error)
	// ReclaimMemory releases cached device memory, best-effort. Invoked
	// after timeouts and between jobs to reduce fragmentation.
	ReclaimMemory()
}

// NoopEngine is a development stand-in used when no real inference
// backend is configured. It emits a handful of progress ticks and
// returns placeholder artifacts.
type NoopEngine struct {
	Delay    time.Duration
	OutDir   string
	ModelTag string
}

// NewNoopEngine creates the stand-in engine.
func NewNoopEngine(outDir string) *NoopEngine {
	return &NoopEngine{Delay: 10 * time.Millisecond, OutDir: outDir, ModelTag: "noop"}
}

func (e *NoopEngine) Generate(ctx context.Context, req *models.GenerationRequest, progress ProgressFunc) (*models.GenerationResult, error) {
	if req.FullAnalysisOnly {
		progress(0.5, "analyzing")
		return &models.GenerationResult{
			Kind:          models.KindFullAnalysis,
			StatusMessage: "Full Hardware Analysis Success",
			AudioPaths:    []string{},
			Analysis: map[string]any{
				"caption": req.Prompt,
				"lyrics":  req.Lyrics,
			},
		}, nil
	}

	batch := req.BatchSize
	if batch <= 0 {
		batch = 2
	}
	steps := []struct {
		value float64
		stage string
	}{
		{0.1, "preparing"},
		{0.5, "generating"},
		{0.9, "decoding"},
		{1.0, "finalizing"},
	}
	for _, s := range steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.Delay):
		}
		progress(s.value, s.stage)
	}

	paths := make([]string, 0, batch)
	for i := 0; i < batch; i++ {
		paths = append(paths, filepath.Join(e.OutDir, fmt.Sprintf("sample_%d.%s", i, format(req))))
	}
	return &models.GenerationResult{
		Kind:          models.KindGeneration,
		StatusMessage: "Success",
		AudioPaths:    paths,
		Prompt:        req.Prompt,
		Lyrics:        req.Lyrics,
		Metas: models.Metas{
			Prompt: req.Prompt,
			Lyrics: req.Lyrics,
		},
		DiTModel: e.ModelTag,
	}, nil
}

func (e *NoopEngine) ReclaimMemory() {}

// Params exposes the loaded model so the swapper can reconfigure it.
// Calls are serialized by the swapper's lock.
func (e *NoopEngine) Params() modelswap.Params {
	return modelswap.Params{modelswap.ModelPathKey: e.ModelTag}
}

// Reinitialize reloads the stand-in with new parameters.
func (e *NoopEngine) Reinitialize(p modelswap.Params) error {
	if tag := p[modelswap.ModelPathKey]; tag != "" {
		e.ModelTag = tag
	}
	return nil
}

func format(req *models.GenerationRequest) string {
	if req.AudioFormat != "" {
		return req.AudioFormat
	}
	return "flac"
}
