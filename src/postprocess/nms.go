package postprocess

import (
	"sort"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Candidate is one raw model proposal before class selection.
type Candidate struct {
	Box    models.Box
	Scores []float32
}

// Scored is a candidate after argmax over its class scores.
type Scored struct {
	Box     models.Box
	ClassID int
	Score   float64
}

func Area(b models.Box) float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU is intersection over union. Degenerate boxes have IoU 0 with everything.
func IoU(a, b models.Box) float64 {
	areaA, areaB := Area(a), Area(b)
	if areaA == 0 || areaB == 0 {
		return 0
	}
	inter := Area(models.Box{
		X1: maxFloat(a.X1, b.X1),
		Y1: maxFloat(a.Y1, b.Y1),
		X2: minFloat(a.X2, b.X2),
		Y2: minFloat(a.Y2, b.Y2),
	})
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// FilterByConfidence picks the best class per candidate and keeps those scoring at least threshold.
func FilterByConfidence(cands []Candidate, threshold float64) []Scored {
	out := make([]Scored, 0)
	for _, c := range cands {
		if len(c.Scores) == 0 {
			continue
		}
		best := 0
		for k := 1; k < len(c.Scores); k++ {
			if c.Scores[k] > c.Scores[best] {
				best = k
			}
		}
		score := float64(c.Scores[best])
		if score < threshold {
			continue
		}
		out = append(out, Scored{Box: c.Box, ClassID: best, Score: score})
	}
	return out
}

// NMS applies class-agnostic greedy suppression. The input slice is not modified.
func NMS(dets []Scored, iouThreshold float64) []Scored {
	order := make([]Scored, len(dets))
	copy(order, dets)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Score > order[j].Score })

	kept := make([]Scored, 0, len(order))
	suppressed := make([]bool, len(order))
	for i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, order[i])
		for j := i + 1; j < len(order); j++ {
			if !suppressed[j] && IoU(order[i].Box, order[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// DecodeYOLO reads a channel-major [4+C, N] output (cx, cy, w, h, class scores...)
// into corner-format candidates.
func DecodeYOLO(data []float32, attrs, anchors int) []Candidate {
	if attrs < 5 || len(data) < attrs*anchors {
		return nil
	}
	numClasses := attrs - 4
	out := make([]Candidate, anchors)
	for j := 0; j < anchors; j++ {
		cx := float64(data[j])
		cy := float64(data[anchors+j])
		w := float64(data[2*anchors+j])
		h := float64(data[3*anchors+j])

		scores := make([]float32, numClasses)
		for k := 0; k < numClasses; k++ {
			scores[k] = data[(4+k)*anchors+j]
		}
		out[j] = Candidate{
			Box:    models.Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
			Scores: scores,
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
