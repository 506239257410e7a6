package services

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// UnknownLabel is returned when no label could be scored.
const UnknownLabel = "unknown"

// DefaultCandidateLabels are the labels used when none are configured.
var DefaultCandidateLabels = []string{"university.", "spam mail.", "company.", "security alert."}

type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Backend    string  `json:"backend,omitempty"`
}

// ClassificationService picks the candidate label closest to a text in
// embedding space.
type ClassificationService struct {
	embeddings *EmbeddingService
	labels     []string
	logger     logrus.FieldLogger
}

func NewClassificationService(e *EmbeddingService, labels []string, logger logrus.FieldLogger) *ClassificationService {
	if len(labels) == 0 {
		labels = DefaultCandidateLabels
	}
	return &ClassificationService{
		embeddings: e,
		labels:     labels,
		logger:     logger.WithField("component", "classification_service"),
	}
}

func (s *ClassificationService) Labels() []string {
	return s.labels
}

// Classify never fails: any error or a Failed cascade yields UnknownLabel.
func (s *ClassificationService) Classify(ctx context.Context, text string) Classification {
	unknown := Classification{Label: UnknownLabel}

	inputs := append([]string{text}, s.labels...)
	res, err := s.embeddings.Embed(ctx, inputs)
	if err != nil {
		s.logger.WithError(err).Warn("classification embedding failed")
		return unknown
	}
	if res.Status != models.StatusSuccess || len(res.Vectors) != len(inputs) {
		return unknown
	}

	query := res.Vectors[0]
	best := unknown
	bestScore := math.Inf(-1)
	for i, label := range s.labels {
		score := cosineSimilarity(query, res.Vectors[i+1])
		if score > bestScore {
			bestScore = score
			best = Classification{Label: label, Confidence: score, Backend: res.Backend}
		}
	}
	return best
}

// cosineSimilarity calculates the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
