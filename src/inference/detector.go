package inference

import (
	"context"
	"fmt"

	onnxrt "github.com/yalue/onnxruntime_go"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/postprocess"
)

type DetectionParams struct {
	InputSize           int
	ConfidenceThreshold float64
	IoUThreshold        float64
	MaxDetections       int // 0 keeps everything
	PadValue            uint8
	ClassNames          []string
}

func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		InputSize:           640,
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.45,
		PadValue:            114,
		ClassNames:          COCOClassNames,
	}
}

// ObjectDetector runs a YOLO-style single-output detection graph.
type ObjectDetector struct {
	model  *Model
	params DetectionParams
}

func NewObjectDetector(modelPath string, params DetectionParams, opts RuntimeOptions) (*ObjectDetector, error) {
	model, err := LoadModel(modelPath, opts)
	if err != nil {
		return nil, err
	}
	if len(params.ClassNames) == 0 {
		params.ClassNames = COCOClassNames
	}
	return &ObjectDetector{model: model, params: params}, nil
}

func (d *ObjectDetector) Detect(ctx context.Context, img *models.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lb := postprocess.NewLetterbox(img.Width, img.Height, d.params.InputSize)
	boxed := lb.Apply(img, d.params.PadValue)

	input, err := d.inputTensor(boxed)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	outputs, err := d.model.Run([]onnxrt.Value{input})
	if err != nil {
		return nil, err
	}
	defer destroyAll(outputs)

	data, shape, err := floatOutput(outputs[0])
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected detection output shape %v", shape)
	}
	attrs, anchors := int(shape[1]), int(shape[2])
	if attrs > anchors {
		// [1, N, 4+C] layout
		data = transpose(data, attrs, anchors)
		attrs, anchors = anchors, attrs
	}

	scored := postprocess.FilterByConfidence(postprocess.DecodeYOLO(data, attrs, anchors), d.params.ConfidenceThreshold)
	for i := range scored {
		scored[i].Box = lb.InverseBoxClipped(scored[i].Box)
	}
	kept := postprocess.NMS(scored, d.params.IoUThreshold)
	if d.params.MaxDetections > 0 && len(kept) > d.params.MaxDetections {
		kept = kept[:d.params.MaxDetections]
	}

	detections := make([]models.Detection, len(kept))
	for i, s := range kept {
		detections[i] = models.Detection{
			Box:        s.Box,
			ClassID:    s.ClassID,
			ClassName:  ClassName(d.params.ClassNames, s.ClassID),
			Confidence: s.Score,
		}
	}
	return detections, nil
}

func (d *ObjectDetector) inputTensor(img *models.Image) (onnxrt.Value, error) {
	size := int64(d.params.InputSize)
	shape := onnxrt.NewShape(1, 3, size, size)
	if d.model.inputs[0].DataType == onnxrt.TensorElementDataTypeUint8 {
		return onnxrt.NewTensor(shape, postprocess.ToCHWUint8(img))
	}
	return onnxrt.NewTensor(shape, postprocess.ToCHW(img, [3]float32{}, [3]float32{1, 1, 1}, 1.0/255))
}

func (d *ObjectDetector) Close() error {
	return d.model.Close()
}

func transpose(data []float32, rows, cols int) []float32 {
	out := make([]float32, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return out
}
