package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/metrics"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// cacheBackend names answers served entirely from the embedding cache.
const cacheBackend = "cache"

type EmbeddingService struct {
	dispatcher models.Dispatcher
	cache      models.EmbeddingCacheStore
	model      string
	logger     logrus.FieldLogger
	metrics    *metrics.Collector
}

// NewEmbeddingService builds the adapter. cache may be nil.
func NewEmbeddingService(d models.Dispatcher, cache models.EmbeddingCacheStore, model string, logger logrus.FieldLogger, m *metrics.Collector) *EmbeddingService {
	return &EmbeddingService{
		dispatcher: d,
		cache:      cache,
		model:      model,
		logger:     logger.WithField("component", "embedding_service"),
		metrics:    m,
	}
}

// Embed returns one vector per text in input order, or a Failed outcome.
// Only unknown task types and invalid payloads are returned as errors.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) (*Embeddings, error) {
	if len(texts) == 0 {
		res, err := s.dispatcher.Infer(ctx, &models.InferenceRequest{Task: models.TaskEmbedding})
		if err != nil {
			return nil, err
		}
		return &Embeddings{Outcome: outcomeOf(res), Vectors: [][]float32{}}, nil
	}

	vectors, missing := s.lookup(ctx, texts)
	hits := len(texts) - len(missing)
	if len(missing) == 0 {
		return &Embeddings{
			Outcome:   Outcome{Status: models.StatusSuccess, Backend: cacheBackend},
			Vectors:   vectors,
			CacheHits: hits,
		}, nil
	}

	missTexts := make([]string, len(missing))
	for i, idx := range missing {
		missTexts[i] = texts[idx]
	}

	res, err := s.dispatcher.Infer(ctx, &models.InferenceRequest{Task: models.TaskEmbedding, Texts: missTexts})
	if err != nil {
		return nil, err
	}
	if res.Status != models.StatusSuccess {
		return &Embeddings{Outcome: outcomeOf(res)}, nil
	}

	if hits > 0 && !sameDimension(vectors, res.Embeddings) {
		// cached vectors came from a different embedding space; embed everything fresh
		s.logger.WithField("cache_hits", hits).Warn("cached embedding dimension differs, bypassing cache")
		res, err = s.dispatcher.Infer(ctx, &models.InferenceRequest{Task: models.TaskEmbedding, Texts: texts})
		if err != nil {
			return nil, err
		}
		if res.Status != models.StatusSuccess {
			return &Embeddings{Outcome: outcomeOf(res)}, nil
		}
		return &Embeddings{Outcome: outcomeOf(res), Vectors: res.Embeddings}, nil
	}

	for i, idx := range missing {
		vectors[idx] = res.Embeddings[i]
	}
	s.store(ctx, res, missTexts)

	return &Embeddings{Outcome: outcomeOf(res), Vectors: vectors, CacheHits: hits}, nil
}

// lookup returns the cached vectors and the indices still to embed.
func (s *EmbeddingService) lookup(ctx context.Context, texts []string) ([][]float32, []int) {
	vectors := make([][]float32, len(texts))
	all := make([]int, len(texts))
	for i := range all {
		all[i] = i
	}
	if s.cache == nil {
		return vectors, all
	}

	cached, err := s.cache.GetMany(ctx, s.model, texts)
	if err != nil || len(cached) != len(texts) {
		if err != nil {
			s.logger.WithError(err).Warn("embedding cache lookup failed")
		}
		s.metrics.ObserveCacheLookup(0, len(texts))
		return vectors, all
	}

	var missing []int
	for i, v := range cached {
		if len(v) == 0 {
			missing = append(missing, i)
			continue
		}
		vectors[i] = v
	}
	s.metrics.ObserveCacheLookup(len(texts)-len(missing), len(missing))
	return vectors, missing
}

func (s *EmbeddingService) store(ctx context.Context, res *models.InferenceResult, texts []string) {
	// remote vectors live in a different space than the local model
	if s.cache == nil || res.Tier == models.TierRemoteAPI {
		return
	}
	if err := s.cache.SetMany(ctx, s.model, texts, res.Embeddings); err != nil {
		s.logger.WithError(err).Warn("embedding cache write failed")
	}
}

func sameDimension(cached, fresh [][]float32) bool {
	dim := -1
	for _, group := range [][][]float32{cached, fresh} {
		for _, v := range group {
			if len(v) == 0 {
				continue
			}
			if dim >= 0 && len(v) != dim {
				return false
			}
			dim = len(v)
		}
	}
	return true
}
