package inference

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"
)

type Provider string

const (
	ProviderCPU  Provider = "cpu"
	ProviderCUDA Provider = "cuda"
	ProviderQNN  Provider = "qnn"
)

// RuntimeOptions selects the execution provider for one session.
type RuntimeOptions struct {
	Provider        Provider
	ProviderOptions map[string]string
	CUDADeviceID    int
	IntraOpThreads  int
}

var envMu sync.Mutex

// InitRuntime loads the onnxruntime shared library once per process.
// An empty libraryPath falls back to the usual system locations.
func InitRuntime(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxrt.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = findSharedLibrary()
	}
	if libraryPath != "" {
		onnxrt.SetSharedLibraryPath(libraryPath)
	}
	if err := onnxrt.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnxruntime (%s): %w", libraryPath, err)
	}
	return nil
}

// ShutdownRuntime releases the environment. Sessions must be closed first.
func ShutdownRuntime() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !onnxrt.IsInitialized() {
		return nil
	}
	return onnxrt.DestroyEnvironment()
}

func findSharedLibrary() string {
	var candidates []string
	switch runtime.GOOS {
	case "linux":
		candidates = []string{"/usr/local/lib/libonnxruntime.so", "/usr/lib/libonnxruntime.so", "/opt/onnxruntime/lib/libonnxruntime.so"}
	case "darwin":
		candidates = []string{"/usr/local/lib/libonnxruntime.dylib", "/opt/homebrew/lib/libonnxruntime.dylib"}
	case "windows":
		candidates = []string{"onnxruntime.dll"}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func newSessionOptions(opts RuntimeOptions) (*onnxrt.SessionOptions, error) {
	so, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}

	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("intra-op threads: %w", err)
		}
	}

	if err := appendProvider(so, opts); err != nil {
		so.Destroy()
		return nil, err
	}
	return so, nil
}

func appendProvider(so *onnxrt.SessionOptions, opts RuntimeOptions) error {
	switch opts.Provider {
	case "", ProviderCPU:
		return nil
	case ProviderCUDA:
		cuda, err := onnxrt.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("cuda provider options: %w", err)
		}
		defer cuda.Destroy()

		settings := map[string]string{"device_id": strconv.Itoa(opts.CUDADeviceID)}
		for k, v := range opts.ProviderOptions {
			settings[k] = v
		}
		if err := cuda.Update(settings); err != nil {
			return fmt.Errorf("cuda provider options: %w", err)
		}
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("append cuda provider: %w", err)
		}
		return nil
	default:
		name := executionProviderName(opts.Provider)
		if err := so.AppendExecutionProvider(name, opts.ProviderOptions); err != nil {
			return fmt.Errorf("append %s provider: %w", name, err)
		}
		return nil
	}
}

// executionProviderName maps a configured provider to the name onnxruntime
// registers it under. Unknown names pass through untouched.
func executionProviderName(p Provider) string {
	switch p {
	case ProviderQNN:
		return "QNN"
	case ProviderCUDA:
		return "CUDA"
	default:
		return string(p)
	}
}

// Model is a loaded ONNX graph with its declared inputs and outputs.
type Model struct {
	path    string
	session *onnxrt.DynamicAdvancedSession
	inputs  []onnxrt.InputOutputInfo
	outputs []onnxrt.InputOutputInfo
}

func LoadModel(path string, opts RuntimeOptions) (*Model, error) {
	if path == "" {
		return nil, errors.New("empty model path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("io info for %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", path)
	}

	so, err := newSessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	session, err := onnxrt.NewDynamicAdvancedSession(path, ioNames(inputs), ioNames(outputs), so)
	if err != nil {
		return nil, fmt.Errorf("session for %s (%s): %w", path, providerName(opts.Provider), err)
	}

	return &Model{path: path, session: session, inputs: inputs, outputs: outputs}, nil
}

// Run executes the graph. The caller owns the returned values and must destroy them.
func (m *Model) Run(inputs []onnxrt.Value) ([]onnxrt.Value, error) {
	outputs := make([]onnxrt.Value, len(m.outputs))
	if err := m.session.Run(inputs, outputs); err != nil {
		destroyAll(outputs)
		return nil, fmt.Errorf("run %s: %w", m.path, err)
	}
	return outputs, nil
}

func (m *Model) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	return m.session.Destroy()
}

func ioNames(infos []onnxrt.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func providerName(p Provider) string {
	if p == "" {
		return string(ProviderCPU)
	}
	return string(p)
}

func destroyAll(values []onnxrt.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

func floatOutput(v onnxrt.Value) ([]float32, []int64, error) {
	t, ok := v.(*onnxrt.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output tensor type %T", v)
	}
	return t.GetData(), []int64(t.GetShape()), nil
}

// intTensor builds a [1, len(values)] tensor in the element type the model declares.
func intTensor(info onnxrt.InputOutputInfo, values []int64) (onnxrt.Value, error) {
	shape := onnxrt.NewShape(1, int64(len(values)))
	switch info.DataType {
	case onnxrt.TensorElementDataTypeInt64:
		return onnxrt.NewTensor(shape, values)
	case onnxrt.TensorElementDataTypeInt32:
		data := make([]int32, len(values))
		for i, v := range values {
			data[i] = int32(v)
		}
		return onnxrt.NewTensor(shape, data)
	case onnxrt.TensorElementDataTypeFloat:
		data := make([]float32, len(values))
		for i, v := range values {
			data[i] = float32(v)
		}
		return onnxrt.NewTensor(shape, data)
	default:
		return nil, fmt.Errorf("input %s has unsupported element type %v", info.Name, info.DataType)
	}
}
