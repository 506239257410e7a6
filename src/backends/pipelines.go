// Package backends turns configuration into registry loaders and builds the
// in-process pipelines shared by the service and the isolated worker.
package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/config"
	"www.github.com/Wanderer0074348/HybridInfer/src/inference"
	"www.github.com/Wanderer0074348/HybridInfer/src/isolation"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/postprocess"
)

// NewPipeline loads the ONNX pipeline for task described by p.
func NewPipeline(name string, task models.TaskType, p isolation.WorkerParameters, opts inference.RuntimeOptions, logger logrus.FieldLogger) (models.Backend, error) {
	switch task {
	case models.TaskEmbedding:
		if p.TokenizerPath == "" {
			return nil, fmt.Errorf("%s: tokenizer path is not set", name)
		}
		tok, err := inference.LoadTokenizer(p.TokenizerPath, p.MaxLength)
		if err != nil {
			return nil, err
		}
		embedder, err := inference.NewONNXEmbedder(p.ModelPath, tok, opts)
		if err != nil {
			return nil, err
		}
		return inference.NewEmbeddingBackend(name, embedder), nil

	case models.TaskSceneTextOCR:
		pipeline, err := inference.NewOCRPipeline(p.DetectorPath, p.RecognizerPath, p.Charset, ocrParams(p), opts,
			logger.WithField("backend", name))
		if err != nil {
			return nil, err
		}
		return inference.NewOCRBackend(name, pipeline), nil

	case models.TaskObjectDetection:
		detector, err := inference.NewObjectDetector(p.ModelPath, detectionParams(p), opts)
		if err != nil {
			return nil, err
		}
		return inference.NewDetectionBackend(name, detector), nil

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTaskType, task)
	}
}

// WorkerHandler serves one isolated request by loading the pipeline, running
// it once and releasing it.
func WorkerHandler(logger logrus.FieldLogger) isolation.Handler {
	return func(ctx context.Context, req *isolation.WorkerRequest, img *models.Image) (*models.InferenceResult, error) {
		opts := inference.RuntimeOptions{
			Provider:        parseProvider(req.Parameters.Provider),
			ProviderOptions: req.Parameters.ProviderOptions,
		}
		backend, err := NewPipeline("worker-"+string(req.TaskType), req.TaskType, req.Parameters, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("load %s pipeline: %w", req.TaskType, err)
		}
		defer func() {
			if err := backend.Close(); err != nil {
				logger.WithError(err).Warn("failed to release worker pipeline")
			}
		}()

		return backend.Infer(ctx, &models.InferenceRequest{
			Task:  req.TaskType,
			Texts: req.Texts,
			Image: img,
		})
	}
}

func EmbeddingParameters(cfg *config.EmbeddingConfig, modelPath string) isolation.WorkerParameters {
	return isolation.WorkerParameters{
		ModelPath:     modelPath,
		TokenizerPath: cfg.TokenizerPath,
		MaxLength:     cfg.MaxLength,
	}
}

func OCRParameters(cfg *config.OCRConfig, detectorPath, recognizerPath string, charset []string) isolation.WorkerParameters {
	return isolation.WorkerParameters{
		DetectorPath:     detectorPath,
		RecognizerPath:   recognizerPath,
		Charset:          charset,
		DetectorWidth:    cfg.DetectorWidth,
		DetectorHeight:   cfg.DetectorHeight,
		RecognizerWidth:  cfg.RecognizerWidth,
		RecognizerHeight: cfg.RecognizerHeight,
		TextThreshold:    cfg.TextThreshold,
		LinkThreshold:    cfg.LinkThreshold,
		LowText:          cfg.LowText,
		MinRegionSize:    cfg.MinRegionSize,
	}
}

func DetectionParameters(cfg *config.DetectionConfig, modelPath string, maxDetections int) isolation.WorkerParameters {
	return isolation.WorkerParameters{
		ModelPath:           modelPath,
		InputSize:           cfg.InputSize,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		IoUThreshold:        cfg.IoUThreshold,
		MaxDetections:       maxDetections,
		PadValue:            cfg.PadValue,
		ClassNames:          cfg.ClassNames,
	}
}

// ocrParams fills unset fields with the pipeline defaults.
func ocrParams(p isolation.WorkerParameters) inference.OCRParams {
	out := inference.DefaultOCRParams()
	if p.DetectorWidth > 0 && p.DetectorHeight > 0 {
		out.DetectorWidth, out.DetectorHeight = p.DetectorWidth, p.DetectorHeight
	}
	if p.RecognizerWidth > 0 && p.RecognizerHeight > 0 {
		out.RecognizerWidth, out.RecognizerHeight = p.RecognizerWidth, p.RecognizerHeight
	}
	if p.MinRegionSize > 0 {
		out.MinRegionSize = p.MinRegionSize
	}
	regions := postprocess.DefaultRegionParams()
	if p.TextThreshold > 0 {
		regions.TextThreshold = p.TextThreshold
	}
	if p.LinkThreshold > 0 {
		regions.LinkThreshold = p.LinkThreshold
	}
	if p.LowText > 0 {
		regions.LowText = p.LowText
	}
	out.Regions = regions
	return out
}

func detectionParams(p isolation.WorkerParameters) inference.DetectionParams {
	out := inference.DefaultDetectionParams()
	if p.InputSize > 0 {
		out.InputSize = p.InputSize
	}
	if p.ConfidenceThreshold > 0 {
		out.ConfidenceThreshold = p.ConfidenceThreshold
	}
	if p.IoUThreshold > 0 {
		out.IoUThreshold = p.IoUThreshold
	}
	if p.PadValue > 0 && p.PadValue <= 255 {
		out.PadValue = uint8(p.PadValue)
	}
	if len(p.ClassNames) > 0 {
		out.ClassNames = p.ClassNames
	}
	out.MaxDetections = p.MaxDetections
	return out
}

func parseProvider(s string) inference.Provider {
	switch p := inference.Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return inference.ProviderCPU
	default:
		return p
	}
}
