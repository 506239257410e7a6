package backends

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/config"
	"www.github.com/Wanderer0074348/HybridInfer/src/inference"
	"www.github.com/Wanderer0074348/HybridInfer/src/isolation"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/registry"
)

// IsolatedRunner is what the isolated tier needs from isolation.Runner.
type IsolatedRunner interface {
	isolation.Exchanger
	Check() error
}

type builder struct {
	cfg    *config.Config
	runner IsolatedRunner
	logger logrus.FieldLogger
}

// Build registers a loader for every tier of every task. Nothing is loaded
// until Registry.Init or the first acquire. runner may be nil.
func Build(cfg *config.Config, runner IsolatedRunner, logger logrus.FieldLogger) (*registry.Registry, error) {
	reg := registry.New(registry.DefaultPolicy(), logger)
	b := &builder{cfg: cfg, runner: runner, logger: logger}

	slots := []struct {
		task models.TaskType
		tier models.BackendTier
		lazy bool
		load registry.Loader
	}{
		{models.TaskEmbedding, models.TierIsolatedAccelerator, false, b.isolatedEmbedding},
		{models.TaskEmbedding, models.TierAcceleratedLocalRuntime, false, b.localEmbedding(inference.ProviderCUDA)},
		{models.TaskEmbedding, models.TierCpuLocalRuntime, true, b.localEmbedding(inference.ProviderCPU)},
		{models.TaskEmbedding, models.TierRemoteAPI, false, b.remoteEmbedding},

		{models.TaskSceneTextOCR, models.TierDedicatedAccelerator, false, b.dedicatedOCR},
		{models.TaskSceneTextOCR, models.TierIsolatedAccelerator, false, b.isolatedOCR},
		{models.TaskSceneTextOCR, models.TierAcceleratedLocalRuntime, false, b.localOCR(inference.ProviderCUDA)},
		{models.TaskSceneTextOCR, models.TierCpuLocalRuntime, true, b.localOCR(inference.ProviderCPU)},

		{models.TaskObjectDetection, models.TierDedicatedAccelerator, false, b.dedicatedDetection},
		{models.TaskObjectDetection, models.TierIsolatedAccelerator, false, b.isolatedDetection},
		{models.TaskObjectDetection, models.TierAcceleratedLocalRuntime, false, b.localDetection(inference.ProviderCUDA)},
		{models.TaskObjectDetection, models.TierCpuLocalRuntime, true, b.localDetection(inference.ProviderCPU)},
	}

	for _, s := range slots {
		if err := reg.Register(s.task, s.tier, s.lazy, s.load); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrBackendUnavailable, fmt.Sprintf(format, args...))
}

func backendName(prefix string, task models.TaskType) string {
	return prefix + "-" + string(task)
}

// runtimeOptions returns the session options for an in-process tier, or an
// unavailable error when that tier is switched off.
func (b *builder) runtimeOptions(provider inference.Provider) (inference.RuntimeOptions, error) {
	opts := inference.RuntimeOptions{
		Provider:       provider,
		CUDADeviceID:   b.cfg.Runtime.CUDADeviceID,
		IntraOpThreads: b.cfg.Runtime.IntraOpThreads,
	}
	switch provider {
	case inference.ProviderCUDA:
		if !b.cfg.Runtime.CUDAEnabled {
			return opts, unavailable("cuda runtime disabled")
		}
	case inference.ProviderCPU:
	default:
		if !b.cfg.Accelerator.Enabled {
			return opts, unavailable("dedicated accelerator disabled")
		}
		opts.ProviderOptions = b.cfg.Accelerator.ProviderOptions
	}
	return opts, nil
}

func (b *builder) initRuntime() error {
	if err := inference.InitRuntime(b.cfg.Runtime.LibraryPath); err != nil {
		return fmt.Errorf("onnxruntime: %w", err)
	}
	return nil
}

func (b *builder) isolated(task models.TaskType, params isolation.WorkerParameters) (models.Backend, error) {
	if !b.cfg.Isolation.Enabled || b.runner == nil {
		return nil, unavailable("isolated worker disabled")
	}
	if err := b.runner.Check(); err != nil {
		return nil, err
	}
	params.Provider = b.cfg.Isolation.Provider
	params.ProviderOptions = b.cfg.Isolation.ProviderOptions
	return isolation.NewBackend(backendName("isolated", task), task, b.runner, params), nil
}

func (b *builder) isolatedEmbedding(ctx context.Context) (models.Backend, error) {
	modelPath := firstNonEmpty(b.cfg.Embedding.IsolatedModelPath, b.cfg.Embedding.ModelPath)
	if modelPath == "" || b.cfg.Embedding.TokenizerPath == "" {
		return nil, unavailable("no embedding model configured")
	}
	return b.isolated(models.TaskEmbedding, EmbeddingParameters(&b.cfg.Embedding, modelPath))
}

func (b *builder) localEmbedding(provider inference.Provider) registry.Loader {
	return func(ctx context.Context) (models.Backend, error) {
		if b.cfg.Embedding.ModelPath == "" || b.cfg.Embedding.TokenizerPath == "" {
			return nil, unavailable("no embedding model configured")
		}
		opts, err := b.runtimeOptions(provider)
		if err != nil {
			return nil, err
		}
		if err := b.initRuntime(); err != nil {
			return nil, err
		}
		return NewPipeline(backendName(string(provider), models.TaskEmbedding), models.TaskEmbedding,
			EmbeddingParameters(&b.cfg.Embedding, b.cfg.Embedding.ModelPath), opts, b.logger)
	}
}

func (b *builder) remoteEmbedding(ctx context.Context) (models.Backend, error) {
	remote := &b.cfg.Embedding.Remote
	if remote.Provider == "" {
		return nil, unavailable("no remote embedding provider configured")
	}
	if remote.APIKey == "" && remote.Provider != "openai-compatible" {
		return nil, unavailable("remote embedding API key is not set")
	}
	embedder, err := inference.NewRemoteEmbedder(ctx, remote)
	if err != nil {
		return nil, err
	}
	return inference.NewEmbeddingBackend(backendName(remote.Provider, models.TaskEmbedding), embedder), nil
}

func (b *builder) ocrModels(isolated bool) (string, string, error) {
	detector, recognizer := b.cfg.OCR.DetectorPath, b.cfg.OCR.RecognizerPath
	if isolated {
		detector = firstNonEmpty(b.cfg.OCR.IsolatedDetectorPath, detector)
		recognizer = firstNonEmpty(b.cfg.OCR.IsolatedRecognizerPath, recognizer)
	}
	if detector == "" || recognizer == "" || b.cfg.OCR.CharsetPath == "" {
		return "", "", unavailable("ocr models or charset not configured")
	}
	return detector, recognizer, nil
}

func (b *builder) ocrParameters(isolated bool) (isolation.WorkerParameters, error) {
	detector, recognizer, err := b.ocrModels(isolated)
	if err != nil {
		return isolation.WorkerParameters{}, err
	}
	charset, err := inference.LoadCharset(b.cfg.OCR.CharsetPath)
	if err != nil {
		return isolation.WorkerParameters{}, err
	}
	return OCRParameters(&b.cfg.OCR, detector, recognizer, charset), nil
}

// dedicatedProvider resolves the accelerator's execution provider. A CPU
// provider would only repeat the CPU tier, so that slot stays unavailable.
func (b *builder) dedicatedProvider() (inference.Provider, error) {
	if !b.cfg.Accelerator.Enabled {
		return "", unavailable("dedicated accelerator disabled")
	}
	provider := parseProvider(b.cfg.Accelerator.Provider)
	if provider == inference.ProviderCPU {
		return "", unavailable("dedicated accelerator has no provider other than cpu")
	}
	return provider, nil
}

func (b *builder) dedicatedOCR(ctx context.Context) (models.Backend, error) {
	provider, err := b.dedicatedProvider()
	if err != nil {
		return nil, err
	}
	return b.localOCR(provider)(ctx)
}

func (b *builder) isolatedOCR(ctx context.Context) (models.Backend, error) {
	if !b.cfg.Isolation.Enabled || b.runner == nil {
		return nil, unavailable("isolated worker disabled")
	}
	params, err := b.ocrParameters(true)
	if err != nil {
		return nil, err
	}
	return b.isolated(models.TaskSceneTextOCR, params)
}

func (b *builder) localOCR(provider inference.Provider) registry.Loader {
	return func(ctx context.Context) (models.Backend, error) {
		if _, _, err := b.ocrModels(false); err != nil {
			return nil, err
		}
		opts, err := b.runtimeOptions(provider)
		if err != nil {
			return nil, err
		}
		params, err := b.ocrParameters(false)
		if err != nil {
			return nil, err
		}
		if err := b.initRuntime(); err != nil {
			return nil, err
		}
		return NewPipeline(backendName(string(provider), models.TaskSceneTextOCR), models.TaskSceneTextOCR,
			params, opts, b.logger)
	}
}

func (b *builder) dedicatedDetection(ctx context.Context) (models.Backend, error) {
	provider, err := b.dedicatedProvider()
	if err != nil {
		return nil, err
	}
	return b.localDetection(provider)(ctx)
}

func (b *builder) isolatedDetection(ctx context.Context) (models.Backend, error) {
	modelPath := firstNonEmpty(b.cfg.Detection.IsolatedModelPath, b.cfg.Detection.ModelPath)
	if modelPath == "" {
		return nil, unavailable("no detection model configured")
	}
	return b.isolated(models.TaskObjectDetection,
		DetectionParameters(&b.cfg.Detection, modelPath, b.cfg.Isolation.MaxDetections))
}

func (b *builder) localDetection(provider inference.Provider) registry.Loader {
	return func(ctx context.Context) (models.Backend, error) {
		if b.cfg.Detection.ModelPath == "" {
			return nil, unavailable("no detection model configured")
		}
		opts, err := b.runtimeOptions(provider)
		if err != nil {
			return nil, err
		}
		if err := b.initRuntime(); err != nil {
			return nil, err
		}
		return NewPipeline(backendName(string(provider), models.TaskObjectDetection), models.TaskObjectDetection,
			DetectionParameters(&b.cfg.Detection, b.cfg.Detection.ModelPath, b.cfg.Detection.MaxDetections),
			opts, b.logger)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
