package runner

import (
	"context"
	"errors"
	"fmt"

	"maestro/internal/cache"
	"maestro/internal/execguard"
	"maestro/internal/inference"
	"maestro/internal/jobstore"
	"maestro/internal/models"
	"maestro/internal/progress"

	log "github.com/sirupsen/logrus" // Use logrus
)

// Runner builds the job body handed to the worker loop: it wraps the
// engine's blocking generate call in the timeout guard and wires the
// throttled progress bridge, including the sequential sub-run fallback.
type Runner struct {
	engine inference.Engine
	guard  *execguard.Executor
	store  *jobstore.Store
	cache  *cache.Cache
}

// New creates a runner.
func New(engine inference.Engine, guard *execguard.Executor, store *jobstore.Store, c *cache.Cache) *Runner {
	return &Runner{engine: engine, guard: guard, store: store, cache: c}
}

// Run executes one job. Its signature matches worker.JobBody.
func (r *Runner) Run(ctx context.Context, jobID string, req *models.GenerationRequest) (*models.GenerationResult, error) {
	if req == nil {
		return nil, errors.New("nil generation request")
	}

	bridge := progress.NewBridge(ctx, r.store, r.cache, jobID)

	if req.FullAnalysisOnly {
		r.store.UpdateProgressText(jobID, "Starting deep analysis...")
	}

	runs := req.SequentialRuns
	if runs <= 1 {
		return r.guardedGenerate(ctx, req, bridge.Report)
	}

	// Sequential fallback: run the batch one item at a time to bound
	// device memory, remapping each sub-run's progress into its share of
	// [0,1] so clients see a single monotonic value.
	log.WithField("runs", runs).Info("sequential generation mode enabled")

	var aggregated *models.GenerationResult
	for i := 0; i < runs; i++ {
		subReq := *req
		subReq.BatchSize = 1
		subReq.SequentialRuns = 0

		start, end := progress.RunSpan(i, runs)
		report := progress.Slice(bridge.Report, start, end)

		result, err := r.guardedGenerate(ctx, &subReq, report)
		if err != nil {
			return nil, fmt.Errorf("sequential run %d/%d: %w", i+1, runs, err)
		}
		if aggregated == nil {
			aggregated = result
		} else {
			aggregated.AudioPaths = append(aggregated.AudioPaths, result.AudioPaths...)
		}
	}
	if aggregated == nil {
		return nil, errors.New("generation produced no results")
	}
	return aggregated, nil
}

func (r *Runner) guardedGenerate(ctx context.Context, req *models.GenerationRequest, report progress.ReportFunc) (*models.GenerationResult, error) {
	info := execguard.CallInfo{
		BatchSize:      req.BatchSize,
		InferenceSteps: req.InferenceSteps,
		AudioDuration:  req.AudioDuration,
	}
	return r.guard.Run(func() (*models.GenerationResult, error) {
		return r.engine.Generate(ctx, req, inference.ProgressFunc(report))
	}, info)
}
