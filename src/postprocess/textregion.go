package postprocess

import (
	"math"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

type RegionParams struct {
	TextThreshold float64
	LinkThreshold float64
	LowText       float64
	MinArea       int
}

// DefaultRegionParams matches the detector thresholds used in production.
func DefaultRegionParams() RegionParams {
	return RegionParams{TextThreshold: 0.2, LinkThreshold: 0.15, LowText: 0.15, MinArea: 10}
}

// ExtractTextRegions finds word regions in a pair of width x height score maps.
// Pixels above LowText in the text map or above LinkThreshold in the link map are
// joined into 4-connected components; components that are too small or whose peak
// text score is below TextThreshold are dropped. Each survivor is grown by a margin
// proportional to its size and emitted as an axis-aligned quadrilateral in map space.
func ExtractTextRegions(textMap, linkMap []float32, width, height int, p RegionParams) [][4]models.Point {
	n := width * height
	if len(textMap) < n || len(linkMap) < n {
		return nil
	}

	textMask := make([]bool, n)
	linkMask := make([]bool, n)
	comb := make([]bool, n)
	for i := 0; i < n; i++ {
		textMask[i] = float64(textMap[i]) > p.LowText
		linkMask[i] = float64(linkMap[i]) > p.LinkThreshold
		comb[i] = textMask[i] || linkMask[i]
	}

	labels := make([]int, n)
	var regions [][4]models.Point
	queue := make([]int, 0, 64)
	next := 0

	for start := 0; start < n; start++ {
		if !comb[start] || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		queue = append(queue[:0], start)

		var pixels []int
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			pixels = append(pixels, i)

			x, y := i%width, i/width
			for _, nb := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if nb[0] < 0 || nb[0] >= width || nb[1] < 0 || nb[1] >= height {
					continue
				}
				j := nb[1]*width + nb[0]
				if comb[j] && labels[j] == 0 {
					labels[j] = next
					queue = append(queue, j)
				}
			}
		}

		if quad, ok := componentRegion(pixels, textMap, textMask, linkMask, width, height, p); ok {
			regions = append(regions, quad)
		}
	}

	return regions
}

func componentRegion(pixels []int, textMap []float32, textMask, linkMask []bool, width, height int, p RegionParams) ([4]models.Point, bool) {
	if len(pixels) < p.MinArea {
		return [4]models.Point{}, false
	}

	var peak float32
	cMinX, cMinY, cMaxX, cMaxY := width, height, -1, -1
	sMinX, sMinY, sMaxX, sMaxY := width, height, -1, -1
	for _, i := range pixels {
		x, y := i%width, i/width
		if textMap[i] > peak {
			peak = textMap[i]
		}
		cMinX, cMinY = minInt(cMinX, x), minInt(cMinY, y)
		cMaxX, cMaxY = maxInt(cMaxX, x), maxInt(cMaxY, y)

		// link-only pixels join characters but are not part of the word body
		if linkMask[i] && !textMask[i] {
			continue
		}
		sMinX, sMinY = minInt(sMinX, x), minInt(sMinY, y)
		sMaxX, sMaxY = maxInt(sMaxX, x), maxInt(sMaxY, y)
	}
	if float64(peak) < p.TextThreshold || sMaxX < 0 {
		return [4]models.Point{}, false
	}

	cw, ch := cMaxX-cMinX+1, cMaxY-cMinY+1
	margin := int(math.Sqrt(float64(len(pixels)*minInt(cw, ch))/float64(cw*ch)) * 2)

	x0 := float64(maxInt(sMinX-margin, 0))
	y0 := float64(maxInt(sMinY-margin, 0))
	x1 := float64(minInt(sMaxX+1+margin, width))
	y1 := float64(minInt(sMaxY+1+margin, height))

	return [4]models.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}, true
}

// ScaleQuad multiplies every vertex by (sx, sy).
func ScaleQuad(q [4]models.Point, sx, sy float64) [4]models.Point {
	for i := range q {
		q[i].X *= sx
		q[i].Y *= sy
	}
	return q
}

// QuadBounds returns the integer bounding rectangle of q.
func QuadBounds(q [4]models.Point) (x0, y0, x1, y1 int) {
	minX, minY := q[0].X, q[0].Y
	maxX, maxY := q[0].X, q[0].Y
	for _, pt := range q[1:] {
		minX, minY = math.Min(minX, pt.X), math.Min(minY, pt.Y)
		maxX, maxY = math.Max(maxX, pt.X), math.Max(maxY, pt.Y)
	}
	return int(minX), int(minY), int(maxX), int(maxY)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
