package worker

import (
	"context"
	"fmt"
	"time"

	"maestro/internal/auditlog"
	"maestro/internal/cache"
	"maestro/internal/jobstore"
	"maestro/internal/models"
	"maestro/internal/queue"

	log "github.com/sirupsen/logrus" // Use logrus
)

// JobBody executes one job. It runs the actual compute call (internally
// via the timeout-guarded executor) and emits progress through the
// bridge; the worker owns the terminal state transition and all
// notifications.
type JobBody func(ctx context.Context, jobID string, req *models.GenerationRequest) (*models.GenerationResult, error)

// Worker is the sequential consumer of the submission queue. Run one per
// guarded device: the default of a single worker exists because the GPU
// does not support concurrent jobs, and raising the count without
// partitioning the device breaks the at-most-one-job invariant.
type Worker struct {
	store *jobstore.Store
	queue *queue.Queue
	cache *cache.Cache
	body  JobBody
	audit *auditlog.Trail
}

// New creates a worker. audit may be nil.
func New(store *jobstore.Store, q *queue.Queue, c *cache.Cache, body JobBody, audit *auditlog.Trail) *Worker {
	return &Worker{store: store, queue: q, cache: c, body: body, audit: audit}
}

// Run drains the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		sub, ok := w.queue.Dequeue(ctx)
		if !ok {
			return
		}
		w.ProcessItem(ctx, sub)
	}
}

// ProcessItem executes one dequeued submission through the full
// lifecycle. Pending-set removal, temp-file cleanup, and the queue ack
// happen on every exit path so a failing job can never leak an id into
// limbo or leave temp files orphaned.
func (w *Worker) ProcessItem(ctx context.Context, sub queue.Submission) {
	jobID := sub.JobID
	start := time.Now()

	defer func() {
		w.queue.RemovePending(jobID)
		w.queue.CleanupTempFiles(jobID)
		w.queue.RecordDuration(time.Since(start))
		w.queue.Ack()
	}()

	// A record evicted between submission and dequeue does not stop
	// execution; the store mutators and notifications below all no-op on
	// a missing id.
	if _, ok := w.store.Get(jobID); !ok {
		log.WithField("job_id", jobID).Warn("job record missing at dequeue, executing without notification")
	}

	if err := w.store.MarkRunning(jobID); err != nil {
		log.WithField("job_id", jobID).Debugf("mark running: %v", err)
	}
	w.cache.WriteProgress(ctx, w.store, jobID, 0.01, string(models.StatusRunning))

	result, err := w.runBody(ctx, jobID, sub.Req)
	duration := time.Since(start)

	if err != nil {
		diagnostic := err.Error()
		log.WithField("job_id", jobID).Errorf("job failed after %s: %s", duration.Round(time.Millisecond), diagnostic)
		if serr := w.store.MarkFailed(jobID, diagnostic); serr != nil {
			log.WithField("job_id", jobID).Debugf("mark failed: %v", serr)
		}
		w.cache.WriteTerminal(ctx, w.store, jobID, nil, models.StatusFailed)
		w.store.Publish(jobID, models.Event{Type: models.EventError, Content: diagnostic})
		w.store.Publish(jobID, models.Event{Type: models.EventDone})
		w.store.SignalDone(jobID)
		w.audit.Record(jobID, models.StatusFailed, duration, diagnostic)
		return
	}

	log.WithField("job_id", jobID).Infof("job succeeded in %s", duration.Round(time.Millisecond))
	if serr := w.store.MarkSucceeded(jobID, result); serr != nil {
		log.WithField("job_id", jobID).Debugf("mark succeeded: %v", serr)
	}
	w.cache.WriteTerminal(ctx, w.store, jobID, result, models.StatusSucceeded)
	w.store.Publish(jobID, models.Event{Type: models.EventResult, Result: result})
	w.store.Publish(jobID, models.Event{Type: models.EventDone})
	w.store.SignalDone(jobID)
	w.audit.Record(jobID, models.StatusSucceeded, duration, "")
}

// runBody invokes the job body, converting a panic into a failure so one
// bad job never takes down the loop.
func (w *Worker) runBody(ctx context.Context, jobID string, req *models.GenerationRequest) (result *models.GenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job body panicked: %v", r)
		}
	}()
	return w.body(ctx, jobID, req)
}
