package app

import (
	"context"

	"maestro/internal/auditlog"
	"maestro/internal/auth"
	"maestro/internal/cache"
	"maestro/internal/cleanup"
	"maestro/internal/config"
	"maestro/internal/execguard"
	"maestro/internal/inference"
	"maestro/internal/jobstore"
	"maestro/internal/logbuf"
	"maestro/internal/models"
	"maestro/internal/modelswap"
	"maestro/internal/query"
	"maestro/internal/queue"
	"maestro/internal/runner"
	"maestro/internal/worker"

	log "github.com/sirupsen/logrus" // Use logrus
)

// eventBuffer is the per-subscriber event channel capacity. Two slots
// cover the worst case of a result event followed by done.
const eventBuffer = 4

type App struct {
	Config *config.Config

	LogBuffer *logbuf.Buffer
	Store     *jobstore.Store
	Cache     *cache.Cache
	Queue     *queue.Queue
	Guard     *execguard.Executor
	Engine    inference.Engine
	Swapper   *modelswap.Swapper
	Runner    *runner.Runner
	Worker    *worker.Worker
	Cleanup   *cleanup.Loop

	Aggregator *query.Aggregator
	Verifier   *auth.Verifier
	Audit      *auditlog.Trail
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.initLogBuffer()
	app.initCache()
	app.initEngine()
	app.initPipeline()

	log.Println("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initLogBuffer() {
	a.LogBuffer = logbuf.New()
	log.AddHook(a.LogBuffer)
}

func (a *App) initCache() {
	var backend cache.Backend
	if addr := a.Config.Redis.Address; addr != "" {
		backend = cache.NewRedisBackend(addr, a.Config.Redis.Password, a.Config.Redis.DB)
		log.WithField("address", addr).Info("result cache enabled")
	} else {
		log.Info("no Redis address configured, result cache disabled")
	}
	a.Cache = cache.New(backend, a.Config.Redis.Prefix, a.Config.ResultTTL())
}

func (a *App) initEngine() {
	// The noop engine stands in until a real inference backend is wired
	// behind the Engine interface.
	eng := inference.NewNoopEngine(a.Config.Generation.OutputDir)
	if mp := a.Config.Generation.ModelPath; mp != "" {
		eng.ModelTag = mp
	}
	a.Engine = eng
	a.Swapper = modelswap.New(eng)
}

func (a *App) initPipeline() {
	cfg := a.Config
	a.Store = jobstore.New(cfg.MaxJobAge())
	a.Queue = queue.New(cfg.Queue.MaxSize, cfg.Queue.AvgWindow, cfg.Queue.InitialAvgSecs)
	a.Guard = execguard.New(cfg.Timeout(), a.Engine.ReclaimMemory)
	a.Runner = runner.New(a.Engine, a.Guard, a.Store, a.Cache)
	a.Audit = auditlog.NewTrail(cfg.Audit.Dir)
	a.Worker = worker.New(a.Store, a.Queue, a.Cache, a.jobBody, a.Audit)
	a.Cleanup = cleanup.New(a.Store, cfg.CleanupInterval())
	a.Aggregator = query.New(a.Cache, a.Store, cfg.StaleAfter(), a.LogBuffer.LastMessage)
	a.Verifier = auth.NewVerifier(cfg.Auth.Key)
}

// jobBody is the body handed to the worker: the guarded runner call,
// optionally under a temporary model swap when the request names one.
func (a *App) jobBody(ctx context.Context, jobID string, req *models.GenerationRequest) (*models.GenerationResult, error) {
	var result *models.GenerationResult
	err := a.Swapper.WithModel(req.Model, func() error {
		var err error
		result, err = a.Runner.Run(ctx, jobID, req)
		return err
	})
	return result, err
}

// Submit registers a new job and enqueues it, returning the fresh record
// plus its completion and event channels. Both channels are attached
// before the submission reaches the queue so a fast worker cannot finish
// unobserved. On a full queue nothing is registered and ErrQueueFull is
// returned.
func (a *App) Submit(req *models.GenerationRequest) (models.JobRecord, <-chan struct{}, <-chan models.Event, error) {
	if a.Queue.Full() {
		return models.JobRecord{}, nil, nil, models.ErrQueueFull
	}

	rec := a.Store.Create(a.Config.Env)
	done := a.Store.AttachDone(rec.ID)
	events := a.Store.AttachEvents(rec.ID, eventBuffer)

	if err := a.Queue.Enqueue(rec.ID, req); err != nil {
		// Lost the race for the last slot; drop the record so the reject
		// leaves no trace.
		a.Store.Remove(rec.ID)
		return models.JobRecord{}, nil, nil, err
	}
	return rec, done, events, nil
}

// Stats is the operational snapshot served on /v1/stats.
type Stats struct {
	Jobs          jobstore.Stats `json:"jobs"`
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	PendingIDs    []string       `json:"pending_ids"`
	AvgJobSeconds float64        `json:"avg_job_seconds"`
	Orphans       int64          `json:"orphaned_calls"`
	CacheEnabled  bool           `json:"cache_enabled"`
	LastLogLine   string         `json:"last_log_line"`
}

// Stats assembles the current snapshot.
func (a *App) Stats() Stats {
	return Stats{
		Jobs:          a.Store.GetStats(),
		QueueDepth:    a.Queue.Depth(),
		QueueCapacity: a.Queue.Capacity(),
		PendingIDs:    a.Queue.PendingIDs(),
		AvgJobSeconds: a.Queue.AvgJobSeconds(),
		Orphans:       a.Guard.Orphans(),
		CacheEnabled:  a.Cache.Enabled(),
		LastLogLine:   a.LogBuffer.LastMessage(),
	}
}

// EstimatedWait approximates how long a new submission would wait before
// starting, based on queue depth and the rolling average job duration.
func (a *App) EstimatedWait() float64 {
	return float64(a.Queue.Depth()+1) * a.Queue.AvgJobSeconds()
}
