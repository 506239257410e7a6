package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

func box(x1, y1, x2, y2 float64) models.Box {
	return models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestIoU(t *testing.T) {
	assert.InDelta(t, 1.0, IoU(box(0, 0, 10, 10), box(0, 0, 10, 10)), 1e-9)
	assert.InDelta(t, 0.81, IoU(box(0, 0, 10, 10), box(1, 1, 10, 10)), 1e-9)
	assert.Equal(t, 0.0, IoU(box(0, 0, 10, 10), box(20, 20, 30, 30)))
}

func TestIoU_DegenerateBoxes(t *testing.T) {
	assert.Equal(t, 0.0, IoU(box(5, 5, 5, 5), box(5, 5, 5, 5)))
	assert.Equal(t, 0.0, IoU(box(0, 0, 10, 0), box(0, 0, 10, 10)))
	assert.Equal(t, 0.0, IoU(box(0, 0, 10, 10), box(3, 3, 3, 8)))
}

func TestNMS_KeepsHighestOfOverlappingPair(t *testing.T) {
	dets := []Scored{
		{Box: box(0, 0, 10, 10), Score: 0.9},
		{Box: box(1, 1, 10, 10), Score: 0.8},
		{Box: box(50, 50, 60, 60), Score: 0.95},
	}

	kept := NMS(dets, 0.45)

	require.Len(t, kept, 2)
	assert.Equal(t, 0.95, kept[0].Score)
	assert.Equal(t, box(50, 50, 60, 60), kept[0].Box)
	assert.Equal(t, 0.9, kept[1].Score)
	assert.Equal(t, box(0, 0, 10, 10), kept[1].Box)
}

func TestNMS_Idempotent(t *testing.T) {
	dets := []Scored{
		{Box: box(0, 0, 100, 100), Score: 0.7},
		{Box: box(10, 10, 110, 110), Score: 0.75},
		{Box: box(200, 200, 240, 260), Score: 0.6},
		{Box: box(205, 195, 245, 255), Score: 0.65},
		{Box: box(400, 0, 420, 20), Score: 0.99},
		{Box: box(0, 300, 0, 300), Score: 0.8},
	}

	once := NMS(dets, 0.45)
	twice := NMS(once, 0.45)

	assert.Equal(t, once, twice)
}

func TestNMS_DoesNotModifyInput(t *testing.T) {
	dets := []Scored{
		{Box: box(0, 0, 1, 1), Score: 0.1},
		{Box: box(5, 5, 6, 6), Score: 0.9},
	}
	NMS(dets, 0.5)
	assert.Equal(t, 0.1, dets[0].Score)
}

func TestFilterByConfidence(t *testing.T) {
	cands := []Candidate{
		{Box: box(0, 0, 1, 1), Scores: []float32{0.1, 0.7, 0.2}},
		{Box: box(0, 0, 2, 2), Scores: []float32{0.3, 0.2, 0.4}},
		{Box: box(0, 0, 3, 3), Scores: []float32{0.5}},
		{Box: box(0, 0, 4, 4)},
	}

	got := FilterByConfidence(cands, 0.5)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ClassID)
	assert.InDelta(t, 0.7, got[0].Score, 1e-6)
	assert.Equal(t, 0, got[1].ClassID)
}

func TestDecodeYOLO_ChannelMajor(t *testing.T) {
	// two anchors, two classes: rows are cx, cy, w, h, class0, class1
	data := []float32{
		10, 50,
		20, 60,
		4, 10,
		6, 20,
		0.9, 0.1,
		0.2, 0.8,
	}

	cands := DecodeYOLO(data, 6, 2)

	require.Len(t, cands, 2)
	assert.Equal(t, box(8, 17, 12, 23), cands[0].Box)
	assert.Equal(t, []float32{0.9, 0.2}, cands[0].Scores)
	assert.Equal(t, box(45, 50, 55, 70), cands[1].Box)
	assert.Equal(t, []float32{0.1, 0.8}, cands[1].Scores)
}

func TestDecodeYOLO_ShortBuffer(t *testing.T) {
	assert.Nil(t, DecodeYOLO([]float32{1, 2, 3}, 6, 2))
}
