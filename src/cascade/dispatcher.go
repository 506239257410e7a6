// Package cascade walks the backend tiers of a task in fixed order and
// returns the first acceptable answer.
package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/metrics"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/registry"
)

// SessionSource yields the loaded sessions for a task in policy order.
type SessionSource interface {
	AcquireBackends(ctx context.Context, task models.TaskType) ([]*registry.Session, error)
}

type Dispatcher struct {
	sessions SessionSource
	logger   logrus.FieldLogger
	metrics  *metrics.Collector
}

func NewDispatcher(sessions SessionSource, logger logrus.FieldLogger, m *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		logger:   logger.WithField("component", "cascade"),
		metrics:  m,
	}
}

// Infer tries each tier once. Only unknown task types and invalid payloads
// are returned as errors; exhausting every tier yields a Failed result.
func (d *Dispatcher) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.Task == models.TaskEmbedding && len(req.Texts) == 0 {
		res := &models.InferenceResult{
			Task:       req.Task,
			Status:     models.StatusEmptyButValid,
			Embeddings: [][]float32{},
		}
		d.metrics.ObserveResult(string(req.Task), string(res.Status))
		return res, nil
	}

	sessions, err := d.sessions.AcquireBackends(ctx, req.Task)
	if err != nil {
		return nil, err
	}
	if req.BackendHint != nil {
		sessions = onlyTier(sessions, *req.BackendHint)
	}

	log := d.logger.WithField("task", req.Task)
	attempts := make([]models.TierAttempt, 0, len(sessions))

	for _, s := range sessions {
		tierStart := time.Now()
		res, err := s.Infer(ctx, req)
		if err == nil {
			err = checkResult(req, res)
		}
		elapsed := time.Since(tierStart)

		attempt := models.TierAttempt{
			Tier:    s.Tier,
			Backend: s.Name(),
			Latency: elapsed,
		}
		if err == nil {
			attempt.Outcome = string(res.Status)
			attempts = append(attempts, attempt)
			d.metrics.ObserveTier(string(req.Task), s.Tier.String(), attempt.Outcome, elapsed)

			res.Task = req.Task
			res.Tier = s.Tier
			res.Backend = attempt.Backend
			res.Attempts = attempts
			res.Latency = time.Since(start)
			if res.Status == models.StatusEmptyButValid && req.Task == models.TaskEmbedding && res.Embeddings == nil {
				res.Embeddings = [][]float32{}
			}

			log.WithFields(logrus.Fields{
				"tier":     s.Tier.String(),
				"backend":  attempt.Backend,
				"status":   res.Status,
				"attempts": len(attempts),
				"duration": res.Latency,
			}).Debug("cascade succeeded")
			d.metrics.ObserveResult(string(req.Task), string(res.Status))
			return res, nil
		}

		kind := models.FailureKind(err)
		attempt.Outcome = kind
		attempt.Error = err.Error()
		attempts = append(attempts, attempt)
		d.metrics.ObserveTier(string(req.Task), s.Tier.String(), kind, elapsed)

		log.WithFields(logrus.Fields{
			"tier":     s.Tier.String(),
			"backend":  attempt.Backend,
			"kind":     kind,
			"duration": elapsed,
		}).WithError(err).Warn("tier failed, advancing")

		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"kind":     models.FailureKind(models.ErrAllTiersExhausted),
		"attempts": len(attempts),
		"duration": time.Since(start),
	}).Error(models.ErrAllTiersExhausted.Error())

	d.metrics.ObserveResult(string(req.Task), string(models.StatusFailed))
	return &models.InferenceResult{
		Task:     req.Task,
		Status:   models.StatusFailed,
		Attempts: attempts,
		Latency:  time.Since(start),
	}, nil
}

func onlyTier(sessions []*registry.Session, tier models.BackendTier) []*registry.Session {
	for _, s := range sessions {
		if s.Tier == tier {
			return []*registry.Session{s}
		}
	}
	return nil
}
