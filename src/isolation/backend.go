package isolation

import (
	"context"
	"fmt"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Exchanger runs one request in a separate process.
type Exchanger interface {
	Run(ctx context.Context, req *WorkerRequest, img *models.Image) (*WorkerResponse, error)
}

// Backend serves a single task through the isolated worker program.
type Backend struct {
	name   string
	task   models.TaskType
	runner Exchanger
	params WorkerParameters
}

func NewBackend(name string, task models.TaskType, runner Exchanger, params WorkerParameters) *Backend {
	return &Backend{name: name, task: task, runner: runner, params: params}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	if req.Task != b.task {
		return nil, fmt.Errorf("%s cannot serve %s", b.name, req.Task)
	}

	wreq := &WorkerRequest{
		TaskType:   b.task,
		Parameters: b.params,
		Texts:      req.Texts,
	}
	resp, err := b.runner.Run(ctx, wreq, req.Image)
	if err != nil {
		return nil, err
	}
	return ResultFromResponse(b.task, resp)
}

// Close is a no-op: every call owns its own process.
func (b *Backend) Close() error { return nil }
