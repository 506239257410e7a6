package postprocess

import "www.github.com/Wanderer0074348/HybridInfer/src/models"

// ImageNet statistics in 0-255 pixel units, as used by the text detector.
var (
	DetectorMean = [3]float32{0.485 * 255, 0.456 * 255, 0.406 * 255}
	DetectorStd  = [3]float32{0.229 * 255, 0.224 * 255, 0.225 * 255}
)

// ToCHW converts an RGB image into planar float32 data computing
// (pixel*scale - mean[c]) / std[c] for each channel.
func ToCHW(img *models.Image, mean, std [3]float32, scale float32) []float32 {
	plane := img.Width * img.Height
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			var v uint8
			if img.Channels == 1 {
				v = img.Pix[i]
			} else {
				v = img.Pix[i*img.Channels+c]
			}
			out[c*plane+i] = (float32(v)*scale - mean[c]) / std[c]
		}
	}
	return out
}

// ToCHWUint8 is ToCHW without normalization, for models that take raw bytes.
func ToCHWUint8(img *models.Image) []uint8 {
	plane := img.Width * img.Height
	out := make([]uint8, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			if img.Channels == 1 {
				out[c*plane+i] = img.Pix[i]
			} else {
				out[c*plane+i] = img.Pix[i*img.Channels+c]
			}
		}
	}
	return out
}

// GrayToFloat scales a single-channel image into [0,1].
func GrayToFloat(img *models.Image) []float32 {
	out := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		out[i] = float32(v) / 255
	}
	return out
}
