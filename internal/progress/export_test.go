package progress

import "time"

// SetNowForTest injects a deterministic clock into the throttle.
func SetNowForTest(t *Throttle, now func() time.Time) {
	t.now = now
}
