package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Loader creates the backend for one slot. Returning an error wrapping
// models.ErrBackendUnavailable marks the slot unavailable instead of failed.
type Loader func(ctx context.Context) (models.Backend, error)

// Session owns one backend handle for a single (task, tier) pair.
type Session struct {
	Task models.TaskType
	Tier models.BackendTier

	lazy bool
	load Loader

	once    sync.Once
	stateMu sync.RWMutex
	state   models.LoadState
	loadErr error
	backend models.Backend
	closed  bool

	// callMu serializes inference calls; backends are not safe for concurrent use.
	callMu sync.Mutex
}

func newSession(task models.TaskType, tier models.BackendTier, lazy bool, load Loader) *Session {
	return &Session{Task: task, Tier: tier, lazy: lazy, load: load, state: models.StateUnavailable}
}

// ensureLoaded runs the loader at most once for the lifetime of the session.
// It reports whether this call performed the load.
func (s *Session) ensureLoaded(ctx context.Context) bool {
	ran := false
	var orphan models.Backend
	s.once.Do(func() {
		if s.load == nil || s.isClosed() {
			return
		}
		ran = true
		backend, err := s.load(ctx)

		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		switch {
		case s.closed:
			// closed while loading; the handle must not outlive the registry
			orphan = backend
			s.state = models.StateUnavailable
			s.loadErr = fmt.Errorf("%w: registry closed", models.ErrBackendUnavailable)
		case err == nil && backend != nil:
			s.backend = backend
			s.state = models.StateLoaded
		case errors.Is(err, models.ErrBackendUnavailable):
			s.state = models.StateUnavailable
			s.loadErr = err
		default:
			if err == nil {
				err = errors.New("loader returned no backend")
			}
			s.state = models.StateFailedToLoad
			s.loadErr = fmt.Errorf("%w: %v", models.ErrBackendLoadFailed, err)
		}
	})
	if orphan != nil {
		_ = orphan.Close()
	}
	return ran
}

func (s *Session) isClosed() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.closed
}

func (s *Session) State() models.LoadState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) LoadError() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.loadErr
}

func (s *Session) Name() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.backend == nil {
		return s.Tier.String()
	}
	return s.backend.Name()
}

// Infer borrows the backend for one call.
func (s *Session) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	s.stateMu.RLock()
	backend := s.backend
	s.stateMu.RUnlock()
	if backend == nil {
		return nil, fmt.Errorf("%w: %s/%s", models.ErrBackendUnavailable, s.Task, s.Tier)
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()
	return backend.Infer(ctx, req)
}

func (s *Session) close() error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.closed = true
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	s.state = models.StateUnavailable
	return err
}
