package services

import (
	"context"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

type OCRService struct {
	dispatcher models.Dispatcher
}

func NewOCRService(d models.Dispatcher) *OCRService {
	return &OCRService{dispatcher: d}
}

// Recognize returns the text regions found in img. Region order is not
// significant.
func (s *OCRService) Recognize(ctx context.Context, img *models.Image) (*TextRegions, error) {
	res, err := s.dispatcher.Infer(ctx, &models.InferenceRequest{Task: models.TaskSceneTextOCR, Image: img})
	if err != nil {
		return nil, err
	}
	out := &TextRegions{Outcome: outcomeOf(res), Regions: res.TextRegions}
	if out.Regions == nil && res.Status != models.StatusFailed {
		out.Regions = []models.TextRegion{}
	}
	return out, nil
}

type DetectionService struct {
	dispatcher models.Dispatcher
}

func NewDetectionService(d models.Dispatcher) *DetectionService {
	return &DetectionService{dispatcher: d}
}

func (s *DetectionService) Detect(ctx context.Context, img *models.Image) (*Detections, error) {
	res, err := s.dispatcher.Infer(ctx, &models.InferenceRequest{Task: models.TaskObjectDetection, Image: img})
	if err != nil {
		return nil, err
	}
	out := &Detections{Outcome: outcomeOf(res), Detections: res.Detections}
	if out.Detections == nil && res.Status != models.StatusFailed {
		out.Detections = []models.Detection{}
	}
	return out, nil
}
