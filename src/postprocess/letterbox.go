package postprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Letterbox records the aspect-preserving fit of a source image into a square input.
type Letterbox struct {
	Size      int
	SrcWidth  int
	SrcHeight int
	NewWidth  int
	NewHeight int
	Scale     float64
	PadX      float64
	PadY      float64
}

func NewLetterbox(srcWidth, srcHeight, size int) Letterbox {
	scale := math.Min(float64(size)/float64(srcWidth), float64(size)/float64(srcHeight))
	newW := clampInt(int(float64(srcWidth)*scale), 1, size)
	newH := clampInt(int(float64(srcHeight)*scale), 1, size)

	return Letterbox{
		Size:      size,
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
		NewWidth:  newW,
		NewHeight: newH,
		Scale:     scale,
		PadX:      float64((size - newW) / 2),
		PadY:      float64((size - newH) / 2),
	}
}

// Apply renders img into a Size x Size canvas filled with fill.
func (l Letterbox) Apply(img *models.Image, fill uint8) *models.Image {
	resized := imaging.Resize(ToNRGBA(img), l.NewWidth, l.NewHeight, imaging.Linear)
	canvas := imaging.New(l.Size, l.Size, color.NRGBA{R: fill, G: fill, B: fill, A: 255})
	canvas = imaging.Paste(canvas, resized, image.Pt(int(l.PadX), int(l.PadY)))
	return FromImage(canvas)
}

func (l Letterbox) Forward(p models.Point) models.Point {
	return models.Point{X: p.X*l.Scale + l.PadX, Y: p.Y*l.Scale + l.PadY}
}

func (l Letterbox) Inverse(p models.Point) models.Point {
	return models.Point{X: (p.X - l.PadX) / l.Scale, Y: (p.Y - l.PadY) / l.Scale}
}

func (l Letterbox) ForwardBox(b models.Box) models.Box {
	p1 := l.Forward(models.Point{X: b.X1, Y: b.Y1})
	p2 := l.Forward(models.Point{X: b.X2, Y: b.Y2})
	return models.Box{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}
}

// InverseBox maps a model-space box back to source coordinates without clipping.
func (l Letterbox) InverseBox(b models.Box) models.Box {
	p1 := l.Inverse(models.Point{X: b.X1, Y: b.Y1})
	p2 := l.Inverse(models.Point{X: b.X2, Y: b.Y2})
	return models.Box{X1: p1.X, Y1: p1.Y, X2: p2.X, Y2: p2.Y}
}

// InverseBoxClipped maps back and clips to the source image bounds.
func (l Letterbox) InverseBoxClipped(b models.Box) models.Box {
	return ClipBox(l.InverseBox(b), float64(l.SrcWidth), float64(l.SrcHeight))
}

func ClipBox(b models.Box, width, height float64) models.Box {
	return models.Box{
		X1: clampFloat(b.X1, 0, width),
		Y1: clampFloat(b.Y1, 0, height),
		X2: clampFloat(b.X2, 0, width),
		Y2: clampFloat(b.Y2, 0, height),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
