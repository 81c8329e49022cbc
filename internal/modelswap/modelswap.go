package modelswap

import (
	"sync"

	log "github.com/sirupsen/logrus" // Use logrus
)

// Params are the initialization parameters of a reconfigurable engine.
type Params map[string]string

// ModelPathKey names the parameter the swapper rewrites.
const ModelPathKey = "model_path"

// Reconfigurable is an engine whose loaded model can be swapped by
// re-initializing it with new parameters.
type Reconfigurable interface {
	// Params returns the current initialization parameters, or nil when
	// the engine has not been initialized yet.
	Params() Params
	// Reinitialize reloads the engine with the given parameters.
	Reinitialize(Params) error
}

// Swapper temporarily points an engine at a different model for one
// critical section, restoring the previous model on every exit path.
// Swaps are serialized under a single lock because the engine holds the
// shared device.
type Swapper struct {
	mu     sync.Mutex
	engine Reconfigurable
}

// New creates a swapper for the given engine. engine may be nil, in
// which case WithModel degenerates to calling fn directly.
func New(engine Reconfigurable) *Swapper {
	return &Swapper{engine: engine}
}

// WithModel runs fn with the engine loaded for modelPath, then restores
// the previous parameters. A failed restore is logged and swallowed so
// it never masks fn's own error; a failed swap still runs fn against
// whatever model is loaded, matching the degraded behavior callers
// historically relied on.
func (s *Swapper) WithModel(modelPath string, fn func() error) error {
	if modelPath == "" || s.engine == nil {
		return fn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.engine.Params()
	if prev == nil || prev[ModelPathKey] == modelPath {
		return fn()
	}

	next := make(Params, len(prev))
	for k, v := range prev {
		next[k] = v
	}
	next[ModelPathKey] = modelPath

	swapped := true
	if err := s.engine.Reinitialize(next); err != nil {
		log.Errorf("model swap to %q failed, continuing with current model: %v", modelPath, err)
		swapped = false
	}

	defer func() {
		if !swapped {
			return
		}
		if err := s.engine.Reinitialize(prev); err != nil {
			// Never mask fn's error with a restore failure.
			log.Errorf("failed to restore model %q after swap: %v", prev[ModelPathKey], err)
		}
	}()

	return fn()
}
