package isolation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// SchemaVersion is the highest exchange schema this build reads and writes.
const SchemaVersion = 1

const (
	RequestFileName  = "request.json"
	ResponseFileName = "response.json"
	ImageFileName    = "image.msgpack"
)

const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// WorkerParameters carries everything the worker needs to build its pipeline.
type WorkerParameters struct {
	Provider        string            `json:"provider,omitempty"`
	ProviderOptions map[string]string `json:"provider_options,omitempty"`

	ModelPath     string `json:"model_path,omitempty"`
	TokenizerPath string `json:"tokenizer_path,omitempty"`
	MaxLength     int    `json:"max_length,omitempty"`

	DetectorPath     string   `json:"detector_path,omitempty"`
	RecognizerPath   string   `json:"recognizer_path,omitempty"`
	Charset          []string `json:"charset,omitempty"`
	DetectorWidth    int      `json:"detector_width,omitempty"`
	DetectorHeight   int      `json:"detector_height,omitempty"`
	RecognizerWidth  int      `json:"recognizer_width,omitempty"`
	RecognizerHeight int      `json:"recognizer_height,omitempty"`
	TextThreshold    float64  `json:"text_threshold,omitempty"`
	LinkThreshold    float64  `json:"link_threshold,omitempty"`
	LowText          float64  `json:"low_text,omitempty"`
	MinRegionSize    int      `json:"min_region_size,omitempty"`

	InputSize           int      `json:"input_size,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty"`
	IoUThreshold        float64  `json:"iou_threshold,omitempty"`
	MaxDetections       int      `json:"max_detections,omitempty"`
	PadValue            int      `json:"pad_value,omitempty"`
	ClassNames          []string `json:"class_names,omitempty"`
}

// ImageRef points at the binary tensor dump of the request image.
type ImageRef struct {
	Path     string `json:"path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
}

type WorkerRequest struct {
	SchemaVersion int              `json:"schema_version"`
	RequestID     string           `json:"request_id"`
	TaskType      models.TaskType  `json:"task_type"`
	Parameters    WorkerParameters `json:"parameters"`
	Texts         []string         `json:"texts,omitempty"`
	Image         *ImageRef        `json:"image,omitempty"`
}

type WorkerResponse struct {
	SchemaVersion int                 `json:"schema_version"`
	Status        string              `json:"status"`
	Message       string              `json:"message,omitempty"`
	Embeddings    [][]float32         `json:"embeddings,omitempty"`
	TextRegions   []models.TextRegion `json:"text_regions,omitempty"`
	Detections    []models.Detection  `json:"detections,omitempty"`
}

type tensorDump struct {
	Version  int    `msgpack:"v"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
	Data     []byte `msgpack:"data"`
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func WriteRequest(path string, req *WorkerRequest) error {
	if err := writeJSON(path, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func ReadRequest(path string) (*WorkerRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	var req WorkerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.SchemaVersion < 1 || req.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("unsupported request schema version %d", req.SchemaVersion)
	}
	if _, err := models.ParseTaskType(string(req.TaskType)); err != nil {
		return nil, err
	}
	return &req, nil
}

func WriteResponse(path string, resp *WorkerResponse) error {
	resp.SchemaVersion = SchemaVersion
	if err := writeJSON(path, resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// ReadResponse decodes a response file. Unknown fields are ignored; a newer
// schema version or an unknown status is reported as ErrMalformedResponse.
func ReadResponse(path string) (*WorkerResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	var resp WorkerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if resp.SchemaVersion < 1 || resp.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", models.ErrMalformedResponse, resp.SchemaVersion)
	}
	switch resp.Status {
	case StatusOK, StatusEmpty, StatusError:
	default:
		return nil, fmt.Errorf("%w: status %q", models.ErrMalformedResponse, resp.Status)
	}
	return &resp, nil
}

func WriteImage(path string, img *models.Image) error {
	data, err := msgpack.Marshal(&tensorDump{
		Version:  SchemaVersion,
		Width:    img.Width,
		Height:   img.Height,
		Channels: img.Channels,
		Data:     img.Pix,
	})
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// ReadImage loads a tensor dump and checks it against the request's reference.
func ReadImage(ref *ImageRef) (*models.Image, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	var dump tensorDump
	if err := msgpack.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if dump.Width != ref.Width || dump.Height != ref.Height || dump.Channels != ref.Channels {
		return nil, fmt.Errorf("image dump is %dx%dx%d, request says %dx%dx%d",
			dump.Width, dump.Height, dump.Channels, ref.Width, ref.Height, ref.Channels)
	}
	img := &models.Image{Width: dump.Width, Height: dump.Height, Channels: dump.Channels, Pix: dump.Data}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// ResponseFromResult encodes a backend result for the response file.
func ResponseFromResult(res *models.InferenceResult) *WorkerResponse {
	resp := &WorkerResponse{
		Status:      StatusOK,
		Embeddings:  res.Embeddings,
		TextRegions: res.TextRegions,
		Detections:  res.Detections,
	}
	switch res.Status {
	case models.StatusEmptyButValid:
		resp.Status = StatusEmpty
	case models.StatusFailed:
		resp.Status = StatusError
		resp.Message = "backend reported failure"
	}
	return resp
}

// ResultFromResponse converts a successful response into a result for task.
func ResultFromResponse(task models.TaskType, resp *WorkerResponse) (*models.InferenceResult, error) {
	res := &models.InferenceResult{
		Task:        task,
		Status:      models.StatusSuccess,
		Embeddings:  resp.Embeddings,
		TextRegions: resp.TextRegions,
		Detections:  resp.Detections,
	}

	var n int
	switch task {
	case models.TaskEmbedding:
		n = len(resp.Embeddings)
	case models.TaskSceneTextOCR:
		n = len(resp.TextRegions)
	case models.TaskObjectDetection:
		n = len(resp.Detections)
	}

	switch resp.Status {
	case StatusEmpty:
		if n != 0 {
			return nil, fmt.Errorf("%w: status empty with %d results", models.ErrMalformedResponse, n)
		}
		res.Status = models.StatusEmptyButValid
	case StatusOK:
		if n == 0 {
			res.Status = models.StatusEmptyButValid
		}
	default:
		return nil, fmt.Errorf("%w: status %q", models.ErrMalformedResponse, resp.Status)
	}
	return res, nil
}
