package inference

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	onnxrt "github.com/yalue/onnxruntime_go"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/postprocess"
)

// BlankSymbol occupies index 0 of every recognizer charset.
const BlankSymbol = "[blank]"

type OCRParams struct {
	DetectorWidth    int
	DetectorHeight   int
	RecognizerWidth  int
	RecognizerHeight int
	MinRegionSize    int
	Regions          postprocess.RegionParams
}

func DefaultOCRParams() OCRParams {
	return OCRParams{
		DetectorWidth:    800,
		DetectorHeight:   608,
		RecognizerWidth:  1000,
		RecognizerHeight: 64,
		MinRegionSize:    5,
		Regions:          postprocess.DefaultRegionParams(),
	}
}

// OCRPipeline chains a text-region detector and a line recognizer.
type OCRPipeline struct {
	detector   *Model
	recognizer *Model
	charset    []string
	params     OCRParams
	logger     logrus.FieldLogger
}

func NewOCRPipeline(detectorPath, recognizerPath string, charset []string, params OCRParams, opts RuntimeOptions, logger logrus.FieldLogger) (*OCRPipeline, error) {
	if len(charset) < 2 {
		return nil, fmt.Errorf("charset has %d symbols", len(charset))
	}
	detector, err := LoadModel(detectorPath, opts)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	recognizer, err := LoadModel(recognizerPath, opts)
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	return &OCRPipeline{
		detector:   detector,
		recognizer: recognizer,
		charset:    charset,
		params:     params,
		logger:     logger,
	}, nil
}

// Recognize returns the recognized regions in source image coordinates. Regions
// that decode to nothing are left out; the call fails only when every attempted
// region failed to run.
func (p *OCRPipeline) Recognize(ctx context.Context, img *models.Image) ([]models.TextRegion, error) {
	textMap, linkMap, mapW, mapH, err := p.scoreMaps(img)
	if err != nil {
		return nil, err
	}

	quads := postprocess.ExtractTextRegions(textMap, linkMap, mapW, mapH, p.params.Regions)
	sx := float64(img.Width) / float64(mapW)
	sy := float64(img.Height) / float64(mapH)

	regions := make([]models.TextRegion, 0, len(quads))
	var attempted, failed int
	var lastErr error
	for i, q := range quads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		quad := postprocess.ScaleQuad(q, sx, sy)
		x0, y0, x1, y1 := postprocess.QuadBounds(quad)
		if x1-x0 < p.params.MinRegionSize || y1-y0 < p.params.MinRegionSize {
			continue
		}
		crop := postprocess.Crop(img, image.Rect(x0, y0, x1, y1))
		if crop == nil {
			continue
		}

		attempted++
		text, conf, err := p.recognize(crop)
		if err != nil {
			failed++
			lastErr = err
			p.logger.WithError(err).WithField("region", i).Warn("text recognition failed, region omitted")
			continue
		}
		if text == "" {
			continue
		}
		regions = append(regions, models.TextRegion{Quad: quad, Text: text, Confidence: conf})
	}

	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("recognition failed for all %d regions: %w", attempted, lastErr)
	}
	return regions, nil
}

func (p *OCRPipeline) scoreMaps(img *models.Image) ([]float32, []float32, int, int, error) {
	w, h := p.params.DetectorWidth, p.params.DetectorHeight
	resized := postprocess.Resize(img, w, h)
	data := postprocess.ToCHW(resized, postprocess.DetectorMean, postprocess.DetectorStd, 1)

	input, err := onnxrt.NewTensor(onnxrt.NewShape(1, 3, int64(h), int64(w)), data)
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("detector input: %w", err)
	}
	defer input.Destroy()

	outputs, err := p.detector.Run([]onnxrt.Value{input})
	if err != nil {
		return nil, nil, 0, 0, err
	}
	defer destroyAll(outputs)

	out, shape, err := floatOutput(outputs[0])
	if err != nil {
		return nil, nil, 0, 0, err
	}
	// [1, H', W', 2]: channel 0 is text score, channel 1 is link score
	if len(shape) != 4 || shape[3] != 2 {
		return nil, nil, 0, 0, fmt.Errorf("unexpected detector output shape %v", shape)
	}
	mapH, mapW := int(shape[1]), int(shape[2])
	textMap := make([]float32, mapW*mapH)
	linkMap := make([]float32, mapW*mapH)
	for i := range textMap {
		textMap[i] = out[i*2]
		linkMap[i] = out[i*2+1]
	}
	return textMap, linkMap, mapW, mapH, nil
}

func (p *OCRPipeline) recognize(crop *models.Image) (string, float64, error) {
	w, h := p.params.RecognizerWidth, p.params.RecognizerHeight
	line := postprocess.GrayscaleFit(crop, w, h, 0)

	input, err := onnxrt.NewTensor(onnxrt.NewShape(1, 1, int64(h), int64(w)), postprocess.GrayToFloat(line))
	if err != nil {
		return "", 0, fmt.Errorf("recognizer input: %w", err)
	}
	defer input.Destroy()

	outputs, err := p.recognizer.Run([]onnxrt.Value{input})
	if err != nil {
		return "", 0, err
	}
	defer destroyAll(outputs)

	logits, shape, err := floatOutput(outputs[0])
	if err != nil {
		return "", 0, err
	}
	if len(shape) != 3 {
		return "", 0, fmt.Errorf("unexpected recognizer output shape %v", shape)
	}
	steps, classes := int(shape[1]), int(shape[2])

	probs := make([]float32, steps*classes)
	copy(probs, logits)
	postprocess.Softmax(probs, steps, classes)
	text, conf := postprocess.GreedyDecode(probs, steps, classes, p.charset, 0)
	return strings.TrimSpace(text), conf, nil
}

func (p *OCRPipeline) Close() error {
	err := p.detector.Close()
	if rerr := p.recognizer.Close(); err == nil {
		err = rerr
	}
	return err
}

// LoadCharset reads one symbol per line and reserves index 0 for the CTC blank.
func LoadCharset(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open charset: %w", err)
	}
	defer f.Close()

	charset := []string{BlankSymbol}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbol := strings.TrimRight(scanner.Text(), "\r")
		if symbol == "" {
			continue
		}
		charset = append(charset, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read charset: %w", err)
	}
	return charset, nil
}
