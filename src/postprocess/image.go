// Package postprocess holds the backend-agnostic numeric kernels shared by every
// tier: image preparation, box decoding, NMS, coordinate remapping, CTC decoding
// and text-region extraction. Nothing here performs I/O or keeps state.
package postprocess

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// ToNRGBA converts a raw HWC buffer to an image.NRGBA.
func ToNRGBA(img *models.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	n := img.Width * img.Height
	c := img.Channels
	for i := 0; i < n; i++ {
		src := img.Pix[i*c : i*c+c]
		dst := out.Pix[i*4 : i*4+4]
		switch c {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 255
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		default:
			copy(dst, src)
		}
	}
	return out
}

// FromImage flattens any image.Image into a 3-channel RGB buffer.
func FromImage(src image.Image) *models.Image {
	nrgba := imaging.Clone(src)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	out := &models.Image{Width: w, Height: h, Channels: 3, Pix: make([]uint8, w*h*3)}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(out.Pix[(y*w+x)*3:(y*w+x)*3+3], row[x*4:x*4+3])
		}
	}
	return out
}

// Resize scales img to exactly width x height.
func Resize(img *models.Image, width, height int) *models.Image {
	resized := imaging.Resize(ToNRGBA(img), width, height, imaging.Linear)
	return FromImage(resized)
}

// Crop cuts r out of img, clamped to the image bounds. It returns nil for an empty intersection.
func Crop(img *models.Image, r image.Rectangle) *models.Image {
	r = r.Intersect(image.Rect(0, 0, img.Width, img.Height))
	if r.Empty() {
		return nil
	}
	c := img.Channels
	out := &models.Image{Width: r.Dx(), Height: r.Dy(), Channels: c, Pix: make([]uint8, r.Dx()*r.Dy()*c)}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		src := img.Pix[(y*img.Width+r.Min.X)*c : (y*img.Width+r.Max.X)*c]
		copy(out.Pix[(y-r.Min.Y)*r.Dx()*c:], src)
	}
	return out
}

// GrayscaleFit converts img to one channel, resizes it to fit inside
// width x height keeping the aspect ratio, and centers it on a fill-colored canvas.
func GrayscaleFit(img *models.Image, width, height int, fill uint8) *models.Image {
	gray := imaging.Grayscale(ToNRGBA(img))

	ratio := minFloat(float64(width)/float64(img.Width), float64(height)/float64(img.Height))
	newW := clampInt(int(float64(img.Width)*ratio), 1, width)
	newH := clampInt(int(float64(img.Height)*ratio), 1, height)
	resized := imaging.Resize(gray, newW, newH, imaging.Lanczos)

	canvas := imaging.New(width, height, color.NRGBA{R: fill, G: fill, B: fill, A: 255})
	canvas = imaging.Paste(canvas, resized, image.Pt((width-newW)/2, (height-newH)/2))

	out := &models.Image{Width: width, Height: height, Channels: 1, Pix: make([]uint8, width*height)}
	for i := range out.Pix {
		out.Pix[i] = canvas.Pix[i*4]
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
