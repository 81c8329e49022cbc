package execguard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"maestro/internal/models"

	log "github.com/sirupsen/logrus" // Use logrus
)

// DefaultTimeout bounds the guarded compute call when no explicit
// deadline is configured. Most generations finish well inside it, but
// large batches on slow devices can take several minutes.
const DefaultTimeout = 600 * time.Second

// CallInfo describes the guarded call for timeout diagnostics.
type CallInfo struct {
	BatchSize      int
	InferenceSteps int
	AudioDuration  float64
}

// TimeoutError reports a guarded call that exceeded its deadline. The
// underlying call is NOT cancelled: it is abandoned to finish or hang in
// the background while the caller moves on.
type TimeoutError struct {
	Timeout time.Duration
	Info    CallInfo
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"generation timed out after %s (batch=%d, steps=%d, duration=%.1fs); "+
			"this usually means the device ran out of memory or the diffusion loop stalled; "+
			"try reducing batch size, duration, or inference steps",
		e.Timeout, e.Info.BatchSize, e.Info.InferenceSteps, e.Info.AudioDuration,
	)
}

// Executor runs one blocking, potentially-hanging compute call under a
// hard wall-clock deadline without ever blocking the caller beyond it.
//
// Forcibly terminating a call that holds the device is unsafe, so on
// timeout the call is deliberately left running as an orphan. The live
// orphan count is tracked so operators can see timeouts accumulating
// between restarts. Do not "fix" this by adding forced cancellation.
type Executor struct {
	timeout time.Duration
	orphans atomic.Int64
	reclaim func()
}

// New creates an executor with the given deadline. A non-positive
// timeout falls back to DefaultTimeout. reclaim, if non-nil, is invoked
// after a timeout for best-effort device memory reclamation.
func New(timeout time.Duration, reclaim func()) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout, reclaim: reclaim}
}

// Timeout returns the configured deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Orphans returns how many abandoned calls are still alive.
func (e *Executor) Orphans() int64 {
	return e.orphans.Load()
}

type outcome struct {
	res *models.GenerationResult
	err error
}

// Run executes fn on its own goroutine and waits up to the deadline. If
// fn finishes in time its result or error is returned transparently. If
// not, Run returns a *TimeoutError while fn keeps running detached.
func (e *Executor) Run(fn func() (*models.GenerationResult, error), info CallInfo) (*models.GenerationResult, error) {
	ch := make(chan outcome, 1)

	var mu sync.Mutex
	finished := false
	orphaned := false

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("guarded call panicked: %v", r)}
			}
			mu.Lock()
			finished = true
			wasOrphaned := orphaned
			mu.Unlock()
			if wasOrphaned {
				live := e.orphans.Add(-1)
				log.Warnf("orphaned generation call finished after its deadline (%d still alive)", live)
				if e.reclaim != nil {
					e.reclaim()
				}
				return
			}
			ch <- out
		}()
		res, err := fn()
		out = outcome{res: res, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-timer.C:
	}

	mu.Lock()
	if finished {
		mu.Unlock()
		out := <-ch
		return out.res, out.err
	}
	orphaned = true
	// Increment while still holding the lock so a fast-finishing orphan
	// can never decrement first and report a negative live count.
	live := e.orphans.Add(1)
	mu.Unlock()

	log.Errorf(
		"generation exceeded %s timeout (batch=%d, steps=%d, duration=%.1fs); "+
			"the call may still be running in the background (%d orphaned calls alive)",
		e.timeout, info.BatchSize, info.InferenceSteps, info.AudioDuration, live,
	)
	if e.reclaim != nil {
		e.reclaim()
	}
	return nil, &TimeoutError{Timeout: e.timeout, Info: info}
}
