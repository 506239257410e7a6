package postprocess

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

func rgb(w, h int, fill func(x, y int) [3]uint8) *models.Image {
	img := &models.Image{Width: w, Height: h, Channels: 3, Pix: make([]uint8, w*h*3)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := fill(x, y)
			copy(img.Pix[(y*w+x)*3:], p[:])
		}
	}
	return img
}

func TestToCHW(t *testing.T) {
	img := rgb(2, 1, func(x, y int) [3]uint8 { return [3]uint8{10, 20, 30} })

	out := ToCHW(img, [3]float32{0, 10, 20}, [3]float32{1, 2, 5}, 1)

	assert.Equal(t, []float32{10, 10, 5, 5, 2, 2}, out)
	assert.Equal(t, []uint8{10, 10, 20, 20, 30, 30}, ToCHWUint8(img))
}

func TestToCHW_Grayscale(t *testing.T) {
	img := &models.Image{Width: 2, Height: 1, Channels: 1, Pix: []uint8{0, 255}}

	assert.Equal(t, []uint8{0, 255, 0, 255, 0, 255}, ToCHWUint8(img))
	assert.Equal(t, []float32{0, 1}, GrayToFloat(img))
}

func TestNRGBARoundTrip(t *testing.T) {
	img := rgb(3, 2, func(x, y int) [3]uint8 { return [3]uint8{uint8(x), uint8(y), 7} })

	back := FromImage(ToNRGBA(img))

	assert.Equal(t, img, back)
}

func TestCrop(t *testing.T) {
	img := rgb(4, 4, func(x, y int) [3]uint8 { return [3]uint8{uint8(x), uint8(y), 0} })

	c := Crop(img, image.Rect(2, 2, 10, 10))
	require.NotNil(t, c)
	assert.Equal(t, 2, c.Width)
	assert.Equal(t, 2, c.Height)
	assert.Equal(t, []uint8{2, 2, 0}, c.Pix[:3])

	assert.Nil(t, Crop(img, image.Rect(5, 5, 8, 8)))
}

func TestGrayscaleFit(t *testing.T) {
	img := rgb(20, 10, func(x, y int) [3]uint8 { return [3]uint8{200, 200, 200} })

	out := GrayscaleFit(img, 40, 40, 0)

	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 40, out.Height)
	assert.Equal(t, 1, out.Channels)
	// the 40x20 content sits in the middle, padding above and below
	assert.Equal(t, uint8(0), out.Pix[0])
	assert.InDelta(t, 200, int(out.Pix[20*40+20]), 2)
}

func TestResize(t *testing.T) {
	img := rgb(8, 4, func(x, y int) [3]uint8 { return [3]uint8{50, 60, 70} })

	out := Resize(img, 4, 2)

	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 2, out.Height)
	assert.Len(t, out.Pix, 4*2*3)
	assert.InDelta(t, 60, int(out.Pix[1]), 1)
}
