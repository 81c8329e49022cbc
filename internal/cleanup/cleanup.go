package cleanup

import (
	"fmt"
	"time"

	"maestro/internal/jobstore"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus" // Use logrus
)

// Loop periodically evicts old terminal records from the job store to
// bound memory. A failing sweep is logged and swallowed; only Stop ends
// the loop.
type Loop struct {
	store    *jobstore.Store
	interval time.Duration
	cron     *cron.Cron
}

// New creates a cleanup loop sweeping every interval.
func New(store *jobstore.Store, interval time.Duration) *Loop {
	return &Loop{
		store:    store,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and begins running it.
func (l *Loop) Start() error {
	spec := fmt.Sprintf("@every %s", l.interval)
	if _, err := l.cron.AddFunc(spec, l.Sweep); err != nil {
		return fmt.Errorf("schedule cleanup sweep: %w", err)
	}
	l.cron.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (l *Loop) Stop() {
	<-l.cron.Stop().Done()
}

// Sweep runs one eviction pass. Exported so the serve command can also
// trigger it on demand.
func (l *Loop) Sweep() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job store cleanup sweep failed: %v", r)
		}
	}()

	removed := l.store.CleanupOldJobs()
	if removed > 0 {
		stats := l.store.GetStats()
		log.Infof("cleaned up %d old jobs (total=%d succeeded=%d failed=%d running=%d queued=%d)",
			removed, stats.Total, stats.Succeeded, stats.Failed, stats.Running, stats.Queued)
	}
}
