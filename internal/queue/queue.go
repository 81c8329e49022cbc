package queue

import (
	"context"
	"os"
	"sync"
	"time"

	"maestro/internal/models"

	log "github.com/sirupsen/logrus" // Use logrus
)

// Submission is one queued unit of work: the job id plus the raw request
// the worker will execute against.
type Submission struct {
	JobID string
	Req   *models.GenerationRequest
}

// Queue is a bounded FIFO of submissions. Enqueue fails fast when the
// queue is full so backpressure is visible to the caller immediately.
//
// Besides the FIFO itself the queue owns three pieces of cross-component
// state, each under its own mutex: the ordered pending-id set read by
// stats endpoints, the per-job temp-file registry, and the rolling
// duration window behind the average-job-seconds estimate.
type Queue struct {
	items chan Submission
	wg    sync.WaitGroup

	pendingMu sync.Mutex
	pending   []string

	tempMu    sync.Mutex
	tempFiles map[string][]string

	statsMu   sync.Mutex
	durations []float64
	window    int
	avg       float64
}

// New creates a queue holding at most maxSize submissions. avgWindow and
// initialAvg seed the rolling job-duration estimate used for ETA hints.
func New(maxSize, avgWindow int, initialAvg float64) *Queue {
	if maxSize <= 0 {
		maxSize = 1
	}
	if avgWindow <= 0 {
		avgWindow = 1
	}
	return &Queue{
		items:     make(chan Submission, maxSize),
		tempFiles: make(map[string][]string),
		window:    avgWindow,
		avg:       initialAvg,
	}
}

// Enqueue appends a submission, or returns models.ErrQueueFull without
// blocking when the queue is at capacity. On success the job id joins
// the pending set and the join bookkeeping counts one outstanding item.
func (q *Queue) Enqueue(jobID string, req *models.GenerationRequest) error {
	// Bookkeeping must precede the send: the moment the submission hits
	// the channel a worker may finish it and call Ack and RemovePending,
	// so the pending append and the counter Add have to already be in
	// place.
	q.pendingMu.Lock()
	q.pending = append(q.pending, jobID)
	q.pendingMu.Unlock()
	q.wg.Add(1)

	select {
	case q.items <- Submission{JobID: jobID, Req: req}:
		return nil
	default:
		q.RemovePending(jobID)
		q.wg.Done()
		return models.ErrQueueFull
	}
}

// Full reports whether the next Enqueue would be rejected. It is a
// fast-path check; Enqueue remains the authority under races.
func (q *Queue) Full() bool {
	return len(q.items) == cap(q.items)
}

// Dequeue blocks until a submission is available or the context is
// cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Submission, bool) {
	select {
	case <-ctx.Done():
		return Submission{}, false
	case sub := <-q.items:
		return sub, true
	}
}

// Ack marks one dequeued submission as fully processed. The worker calls
// it exactly once per dequeued item, success or failure.
func (q *Queue) Ack() {
	q.wg.Done()
}

// Join blocks until every enqueued submission has been acknowledged.
func (q *Queue) Join() {
	q.wg.Wait()
}

// Depth returns the number of submissions waiting in the FIFO.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Capacity returns the maximum queue depth.
func (q *Queue) Capacity() int {
	return cap(q.items)
}

// PendingIDs returns the ids currently queued or running, in submission
// order.
func (q *Queue) PendingIDs() []string {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	out := make([]string, len(q.pending))
	copy(out, q.pending)
	return out
}

// RemovePending drops a job id from the pending set once its execution
// finished, regardless of outcome.
func (q *Queue) RemovePending(jobID string) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	for i, id := range q.pending {
		if id == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// RegisterTempFile records a temporary file (for example an uploaded
// reference audio) owned by the job, to be deleted when the job ends.
func (q *Queue) RegisterTempFile(jobID, path string) {
	q.tempMu.Lock()
	defer q.tempMu.Unlock()
	q.tempFiles[jobID] = append(q.tempFiles[jobID], path)
}

// TempFiles returns the paths currently registered for a job.
func (q *Queue) TempFiles(jobID string) []string {
	q.tempMu.Lock()
	defer q.tempMu.Unlock()
	out := make([]string, len(q.tempFiles[jobID]))
	copy(out, q.tempFiles[jobID])
	return out
}

// CleanupTempFiles removes every file registered for the job,
// best-effort, and forgets the registration.
func (q *Queue) CleanupTempFiles(jobID string) {
	q.tempMu.Lock()
	paths := q.tempFiles[jobID]
	delete(q.tempFiles, jobID)
	q.tempMu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.WithField("job_id", jobID).Warnf("failed to remove temp file %s: %v", p, err)
		}
	}
}

// RecordDuration feeds one job duration into the rolling window.
func (q *Queue) RecordDuration(d time.Duration) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()

	q.durations = append(q.durations, d.Seconds())
	if len(q.durations) > q.window {
		q.durations = q.durations[len(q.durations)-q.window:]
	}
	var sum float64
	for _, v := range q.durations {
		sum += v
	}
	q.avg = sum / float64(len(q.durations))
}

// AvgJobSeconds returns the rolling average job duration in seconds.
func (q *Queue) AvgJobSeconds() float64 {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return q.avg
}
