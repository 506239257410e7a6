package models

import (
	"fmt"
	"time"
)

type TaskType string

const (
	TaskEmbedding       TaskType = "embedding"
	TaskSceneTextOCR    TaskType = "scene_text_ocr"
	TaskObjectDetection TaskType = "object_detection"
)

// AllTaskTypes lists every task type in a stable order.
var AllTaskTypes = []TaskType{TaskEmbedding, TaskSceneTextOCR, TaskObjectDetection}

func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
}

// BackendTier ordinal order is the cascade priority.
type BackendTier int

const (
	TierDedicatedAccelerator BackendTier = iota
	TierIsolatedAccelerator
	TierAcceleratedLocalRuntime
	TierCpuLocalRuntime
	TierRemoteAPI
)

var tierNames = map[BackendTier]string{
	TierDedicatedAccelerator:    "dedicated_accelerator",
	TierIsolatedAccelerator:     "isolated_accelerator",
	TierAcceleratedLocalRuntime: "accelerated_local_runtime",
	TierCpuLocalRuntime:         "cpu_local_runtime",
	TierRemoteAPI:               "remote_api",
}

func (t BackendTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

func ParseBackendTier(s string) (BackendTier, error) {
	for tier, name := range tierNames {
		if name == s {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown backend tier %q", s)
}

type LoadState string

const (
	StateUnavailable  LoadState = "unavailable"
	StateLoaded       LoadState = "loaded"
	StateFailedToLoad LoadState = "failed_to_load"
)

type ResultStatus string

const (
	StatusSuccess       ResultStatus = "success"
	StatusEmptyButValid ResultStatus = "empty"
	StatusFailed        ResultStatus = "failed"
)

// Image is a raw HWC buffer. Three-channel images are RGB.
type Image struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Channels int     `json:"channels"`
	Pix      []uint8 `json:"-"`
}

func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: image is required", ErrInvalidPayload)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidPayload, img.Width, img.Height)
	}
	switch img.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidPayload, img.Channels)
	}
	if len(img.Pix) != img.Width*img.Height*img.Channels {
		return fmt.Errorf("%w: buffer length %d does not match %dx%dx%d",
			ErrInvalidPayload, len(img.Pix), img.Height, img.Width, img.Channels)
	}
	return nil
}

type InferenceRequest struct {
	Task        TaskType
	Texts       []string
	Image       *Image
	BackendHint *BackendTier // forces a single tier, used by tests and diagnostics
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type TextRegion struct {
	Quad       [4]Point `json:"quad"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
}

type Detection struct {
	Box        Box     `json:"bbox"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// TierAttempt is one step of the cascade, kept for diagnostics.
type TierAttempt struct {
	Tier    BackendTier   `json:"-"`
	Backend string        `json:"backend"`
	Outcome string        `json:"outcome"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

type InferenceResult struct {
	Task        TaskType      `json:"task"`
	Status      ResultStatus  `json:"status"`
	Tier        BackendTier   `json:"-"`
	Backend     string        `json:"backend,omitempty"`
	Embeddings  [][]float32   `json:"embeddings,omitempty"`
	TextRegions []TextRegion  `json:"text_regions,omitempty"`
	Detections  []Detection   `json:"detections,omitempty"`
	Attempts    []TierAttempt `json:"attempts,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// BackendStatus describes one registry slot.
type BackendStatus struct {
	Task      TaskType    `json:"task"`
	Tier      BackendTier `json:"-"`
	TierName  string      `json:"tier"`
	State     LoadState   `json:"state"`
	Backend   string      `json:"backend,omitempty"`
	Lazy      bool        `json:"lazy"`
	LoadError string      `json:"load_error,omitempty"`
}
