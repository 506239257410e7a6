package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Registry owns every backend session in the process. It is built once at
// startup, passed by reference, and closed at shutdown.
type Registry struct {
	policy   Policy
	logger   logrus.FieldLogger
	mu       sync.RWMutex
	sessions map[models.TaskType]map[models.BackendTier]*Session
	closed   bool
}

func New(policy Policy, logger logrus.FieldLogger) *Registry {
	return &Registry{
		policy:   policy,
		logger:   logger.WithField("component", "registry"),
		sessions: make(map[models.TaskType]map[models.BackendTier]*Session),
	}
}

// Register adds a loader for one slot. Lazy slots load on first acquire.
func (r *Registry) Register(task models.TaskType, tier models.BackendTier, lazy bool, load Loader) error {
	if _, ok := r.policy.Tiers(task); !ok {
		return fmt.Errorf("%w: %q", models.ErrUnknownTaskType, task)
	}
	if !r.policy.allows(task, tier) {
		return fmt.Errorf("tier %s is not part of the %s policy", tier, task)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[task] == nil {
		r.sessions[task] = make(map[models.BackendTier]*Session)
	}
	if _, dup := r.sessions[task][tier]; dup {
		return fmt.Errorf("%s/%s registered twice", task, tier)
	}
	r.sessions[task][tier] = newSession(task, tier, lazy, load)
	return nil
}

// Init loads every eager slot. Failures are recorded, never returned.
func (r *Registry) Init(ctx context.Context) {
	for _, task := range models.AllTaskTypes {
		tiers, _ := r.policy.Tiers(task)
		for _, tier := range tiers {
			s := r.session(task, tier)
			if s == nil || s.lazy {
				continue
			}
			r.load(ctx, s)
		}
	}
}

// AcquireBackends returns the loaded sessions for task in policy order. Lazy
// slots are loaded on the first call; a failed load is never retried.
func (r *Registry) AcquireBackends(ctx context.Context, task models.TaskType) ([]*Session, error) {
	tiers, ok := r.policy.Tiers(task)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTaskType, task)
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, nil
	}

	out := make([]*Session, 0, len(tiers))
	for _, tier := range tiers {
		s := r.session(task, tier)
		if s == nil {
			continue
		}
		r.load(ctx, s)
		if s.State() == models.StateLoaded {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Registry) load(ctx context.Context, s *Session) {
	start := time.Now()
	if !s.ensureLoaded(ctx) {
		return
	}

	log := r.logger.WithFields(logrus.Fields{
		"task":     s.Task,
		"tier":     s.Tier.String(),
		"lazy":     s.lazy,
		"duration": time.Since(start),
	})
	switch s.State() {
	case models.StateLoaded:
		log.WithField("backend", s.Name()).Info("✓ backend loaded")
	case models.StateUnavailable:
		log.WithError(s.LoadError()).Info("backend unavailable")
	default:
		log.WithError(s.LoadError()).Warn("⚠️  backend failed to load")
	}
}

func (r *Registry) session(task models.TaskType, tier models.BackendTier) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[task][tier]
}

// Statuses lists every policy slot, registered or not.
func (r *Registry) Statuses() []models.BackendStatus {
	var out []models.BackendStatus
	for _, task := range models.AllTaskTypes {
		tiers, _ := r.policy.Tiers(task)
		for _, tier := range tiers {
			st := models.BackendStatus{
				Task:     task,
				Tier:     tier,
				TierName: tier.String(),
				State:    models.StateUnavailable,
			}
			if s := r.session(task, tier); s != nil {
				st.State = s.State()
				st.Lazy = s.lazy
				if st.State == models.StateLoaded {
					st.Backend = s.Name()
				}
				if err := s.LoadError(); err != nil {
					st.LoadError = err.Error()
				}
			}
			out = append(out, st)
		}
	}
	return out
}

// Close shuts down every loaded backend. Later acquires return no sessions.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0)
	for _, byTier := range r.sessions {
		for _, s := range byTier {
			all = append(all, s)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", s.Task, s.Tier, err))
		}
	}
	return errors.Join(errs...)
}
