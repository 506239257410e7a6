package cascade

import (
	"fmt"
	"math"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// validateRequest rejects payloads that no tier could serve.
func validateRequest(req *models.InferenceRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", models.ErrInvalidPayload)
	}
	switch req.Task {
	case models.TaskEmbedding:
		return nil
	case models.TaskSceneTextOCR, models.TaskObjectDetection:
		return req.Image.Validate()
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownTaskType, req.Task)
	}
}

// checkResult decides whether a tier answer can be accepted. Any error here
// counts as a tier failure.
func checkResult(req *models.InferenceRequest, res *models.InferenceResult) error {
	if res == nil {
		return fmt.Errorf("%w: nil result", models.ErrMalformedResponse)
	}
	switch res.Status {
	case models.StatusSuccess, models.StatusEmptyButValid:
	case models.StatusFailed:
		return fmt.Errorf("backend reported failure")
	default:
		return fmt.Errorf("%w: unknown status %q", models.ErrMalformedResponse, res.Status)
	}

	switch req.Task {
	case models.TaskEmbedding:
		return checkEmbeddings(len(req.Texts), res.Embeddings)
	case models.TaskSceneTextOCR:
		if res.Status == models.StatusEmptyButValid && len(res.TextRegions) > 0 {
			return fmt.Errorf("%w: empty result carries %d regions", models.ErrMalformedResponse, len(res.TextRegions))
		}
		if res.Status == models.StatusSuccess && len(res.TextRegions) == 0 {
			return fmt.Errorf("%w: success without regions", models.ErrMalformedResponse)
		}
		for i, r := range res.TextRegions {
			if r.Text == "" {
				return fmt.Errorf("%w: region %d has no text", models.ErrMalformedResponse, i)
			}
			if !unit(r.Confidence) {
				return fmt.Errorf("%w: region %d confidence %v", models.ErrMalformedResponse, i, r.Confidence)
			}
		}
	case models.TaskObjectDetection:
		if res.Status == models.StatusEmptyButValid && len(res.Detections) > 0 {
			return fmt.Errorf("%w: empty result carries %d detections", models.ErrMalformedResponse, len(res.Detections))
		}
		if res.Status == models.StatusSuccess && len(res.Detections) == 0 {
			return fmt.Errorf("%w: success without detections", models.ErrMalformedResponse)
		}
		for i, d := range res.Detections {
			if d.Box.X2 < d.Box.X1 || d.Box.Y2 < d.Box.Y1 {
				return fmt.Errorf("%w: detection %d has inverted box", models.ErrMalformedResponse, i)
			}
			if !unit(d.Confidence) {
				return fmt.Errorf("%w: detection %d confidence %v", models.ErrMalformedResponse, i, d.Confidence)
			}
		}
	}
	return nil
}

func checkEmbeddings(want int, vectors [][]float32) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: %d vectors for %d texts", models.ErrMalformedResponse, len(vectors), want)
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: vector %d is empty", models.ErrMalformedResponse, i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", models.ErrMalformedResponse, i, len(v), dim)
		}
		dim = len(v)
		for _, x := range v {
			if math.IsNaN(float64(x)) {
				return fmt.Errorf("%w: vector %d contains NaN", models.ErrMalformedResponse, i)
			}
		}
	}
	return nil
}

func unit(x float64) bool {
	return x >= 0 && x <= 1
}
