package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// TextEncoder turns one text into fixed-length ids and attention mask.
type TextEncoder interface {
	Encode(text string) ([]int64, []int64, error)
}

// ONNXEmbedder runs a sentence-embedding graph one text at a time.
type ONNXEmbedder struct {
	model   *Model
	encoder TextEncoder
}

func NewONNXEmbedder(modelPath string, encoder TextEncoder, opts RuntimeOptions) (*ONNXEmbedder, error) {
	model, err := LoadModel(modelPath, opts)
	if err != nil {
		return nil, err
	}
	return &ONNXEmbedder{model: model, encoder: encoder}, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.embedOne(text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *ONNXEmbedder) embedOne(text string) ([]float32, error) {
	ids, mask, err := e.encoder.Encode(text)
	if err != nil {
		return nil, err
	}

	inputs := make([]onnxrt.Value, 0, len(e.model.inputs))
	defer func() { destroyAll(inputs) }()

	for _, info := range e.model.inputs {
		var values []int64
		switch inputRole(info.Name) {
		case "mask":
			values = mask
		case "type":
			values = make([]int64, len(ids))
		default:
			values = ids
		}
		t, err := intTensor(info, values)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, t)
	}

	outputs, err := e.model.Run(inputs)
	if err != nil {
		return nil, err
	}
	defer destroyAll(outputs)

	data, shape, err := floatOutput(outputs[0])
	if err != nil {
		return nil, err
	}
	return poolEmbedding(data, shape, mask)
}

func (e *ONNXEmbedder) Close() error {
	return e.model.Close()
}

// inputRole classifies an embedding-model input by its name.
func inputRole(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "mask"):
		return "mask"
	case strings.Contains(lower, "type"):
		return "type"
	default:
		return "tokens"
	}
}

// poolEmbedding accepts either a pooled [1, D] output or token states [1, L, D],
// which are mean-pooled over the attention mask.
func poolEmbedding(data []float32, shape []int64, mask []int64) ([]float32, error) {
	switch len(shape) {
	case 2:
		dim := int(shape[1])
		if dim <= 0 || len(data) < dim {
			return nil, fmt.Errorf("bad embedding output shape %v", shape)
		}
		vec := make([]float32, dim)
		copy(vec, data[:dim])
		return vec, nil
	case 3:
		steps, dim := int(shape[1]), int(shape[2])
		if dim <= 0 || len(data) < steps*dim {
			return nil, fmt.Errorf("bad embedding output shape %v", shape)
		}
		vec := make([]float32, dim)
		var count float32
		for t := 0; t < steps && t < len(mask); t++ {
			if mask[t] == 0 {
				continue
			}
			for k := 0; k < dim; k++ {
				vec[k] += data[t*dim+k]
			}
			count++
		}
		if count == 0 {
			return nil, errors.New("attention mask is empty")
		}
		for k := range vec {
			vec[k] /= count
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("unsupported embedding output rank %d", len(shape))
	}
}
