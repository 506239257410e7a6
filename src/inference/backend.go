package inference

import (
	"context"
	"fmt"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

type TextRecognizer interface {
	Recognize(ctx context.Context, img *models.Image) ([]models.TextRegion, error)
	Close() error
}

type Detector interface {
	Detect(ctx context.Context, img *models.Image) ([]models.Detection, error)
	Close() error
}

// EmbeddingBackend adapts an Embedder to models.Backend.
type EmbeddingBackend struct {
	name     string
	embedder Embedder
}

func NewEmbeddingBackend(name string, e Embedder) *EmbeddingBackend {
	return &EmbeddingBackend{name: name, embedder: e}
}

func (b *EmbeddingBackend) Name() string { return b.name }

func (b *EmbeddingBackend) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	if req.Task != models.TaskEmbedding {
		return nil, fmt.Errorf("%s cannot serve %s", b.name, req.Task)
	}
	vectors, err := b.embedder.Embed(ctx, req.Texts)
	if err != nil {
		return nil, err
	}
	return &models.InferenceResult{
		Task:       models.TaskEmbedding,
		Status:     statusFor(len(vectors)),
		Embeddings: vectors,
	}, nil
}

func (b *EmbeddingBackend) Close() error { return b.embedder.Close() }

// OCRBackend adapts a TextRecognizer to models.Backend.
type OCRBackend struct {
	name       string
	recognizer TextRecognizer
}

func NewOCRBackend(name string, r TextRecognizer) *OCRBackend {
	return &OCRBackend{name: name, recognizer: r}
}

func (b *OCRBackend) Name() string { return b.name }

func (b *OCRBackend) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	if req.Task != models.TaskSceneTextOCR {
		return nil, fmt.Errorf("%s cannot serve %s", b.name, req.Task)
	}
	regions, err := b.recognizer.Recognize(ctx, req.Image)
	if err != nil {
		return nil, err
	}
	return &models.InferenceResult{
		Task:        models.TaskSceneTextOCR,
		Status:      statusFor(len(regions)),
		TextRegions: regions,
	}, nil
}

func (b *OCRBackend) Close() error { return b.recognizer.Close() }

// DetectionBackend adapts a Detector to models.Backend.
type DetectionBackend struct {
	name     string
	detector Detector
}

func NewDetectionBackend(name string, d Detector) *DetectionBackend {
	return &DetectionBackend{name: name, detector: d}
}

func (b *DetectionBackend) Name() string { return b.name }

func (b *DetectionBackend) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	if req.Task != models.TaskObjectDetection {
		return nil, fmt.Errorf("%s cannot serve %s", b.name, req.Task)
	}
	detections, err := b.detector.Detect(ctx, req.Image)
	if err != nil {
		return nil, err
	}
	return &models.InferenceResult{
		Task:       models.TaskObjectDetection,
		Status:     statusFor(len(detections)),
		Detections: detections,
	}, nil
}

func (b *DetectionBackend) Close() error { return b.detector.Close() }

func statusFor(n int) models.ResultStatus {
	if n == 0 {
		return models.StatusEmptyButValid
	}
	return models.StatusSuccess
}
