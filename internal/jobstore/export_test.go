package jobstore

import "time"

// SetCreatedAtForTest backdates a record so cleanup tests can exercise
// the age cutoff.
func SetCreatedAtForTest(s *Store, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[id]; ok {
		e.rec.CreatedAt = at
	}
}
