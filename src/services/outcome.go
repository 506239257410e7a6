// Package services translates cascade results into the shapes the embedding,
// classification, OCR and detection callers expect.
package services

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/disintegration/imaging"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/postprocess"
)

// Outcome is the part of every answer that describes how it was produced.
type Outcome struct {
	Status   models.ResultStatus  `json:"status"`
	Tier     string               `json:"tier,omitempty"`
	Backend  string               `json:"backend,omitempty"`
	Attempts []models.TierAttempt `json:"attempts,omitempty"`
	Latency  time.Duration        `json:"latency"`
}

func outcomeOf(res *models.InferenceResult) Outcome {
	o := Outcome{
		Status:   res.Status,
		Backend:  res.Backend,
		Attempts: res.Attempts,
		Latency:  res.Latency,
	}
	if res.Status != models.StatusFailed && res.Backend != "" {
		o.Tier = res.Tier.String()
	}
	return o
}

// Embeddings holds one vector per input text, in input order.
type Embeddings struct {
	Outcome
	Vectors   [][]float32 `json:"embeddings"`
	CacheHits int         `json:"cache_hits"`
}

type TextRegions struct {
	Outcome
	Regions []models.TextRegion `json:"text_regions"`
}

type Detections struct {
	Outcome
	Detections []models.Detection `json:"detections"`
}

// DecodeImage reads a PNG/JPEG/BMP/GIF/TIFF stream into an RGB buffer,
// honouring EXIF orientation.
func DecodeImage(r io.Reader) (*models.Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	img := postprocess.FromImage(src)
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func DecodeImageBytes(data []byte) (*models.Image, error) {
	return DecodeImage(bytes.NewReader(data))
}
