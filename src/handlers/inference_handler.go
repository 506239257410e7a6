package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/services"
)

const maxImageBytes = 32 << 20

type EmbeddingRequest struct {
	Texts []string `json:"texts"`
}

type ClassifyRequest struct {
	Text string `json:"text" binding:"required"`
}

type ImageRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type InferenceHandler struct {
	embeddings     *services.EmbeddingService
	classification *services.ClassificationService
	ocr            *services.OCRService
	detection      *services.DetectionService
	backends       models.BackendStatusProvider
}

func NewInferenceHandler(
	e *services.EmbeddingService,
	cl *services.ClassificationService,
	o *services.OCRService,
	d *services.DetectionService,
	b models.BackendStatusProvider,
) *InferenceHandler {
	return &InferenceHandler{
		embeddings:     e,
		classification: cl,
		ocr:            o,
		detection:      d,
		backends:       b,
	}
}

func (h *InferenceHandler) HandleEmbeddings(c *gin.Context) {
	var req EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.embeddings.Embed(c.Request.Context(), req.Texts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InferenceHandler) HandleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.classification.Classify(c.Request.Context(), req.Text)
	c.JSON(http.StatusOK, gin.H{
		"label":      result.Label,
		"confidence": result.Confidence,
		"backend":    result.Backend,
		"candidates": h.classification.Labels(),
	})
}

func (h *InferenceHandler) HandleOCR(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.ocr.Recognize(c.Request.Context(), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InferenceHandler) HandleDetect(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.detection.Detect(c.Request.Context(), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *InferenceHandler) ListBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": h.backends.Statuses()})
}

func (h *InferenceHandler) HealthCheck(c *gin.Context) {
	loaded := 0
	for _, st := range h.backends.Statuses() {
		if st.State == models.StateLoaded {
			loaded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"loaded_backends": loaded,
		"timestamp":       time.Now(),
	})
}

// readImage accepts a multipart "image" file or a JSON body with base64 data.
func readImage(c *gin.Context) (*models.Image, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image file: %w", err)
		}
		if fh.Size > maxImageBytes {
			return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return services.DecodeImage(f)
	}

	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return services.DecodeImageBytes(data)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, models.ErrInvalidPayload) || errors.Is(err, models.ErrUnknownTaskType) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
