package postprocess

import (
	"math"
	"strings"
)

// Softmax normalizes each row of a steps x classes matrix in place.
func Softmax(logits []float32, steps, classes int) {
	for t := 0; t < steps; t++ {
		row := logits[t*classes : (t+1)*classes]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for k, v := range row {
			e := math.Exp(float64(v - maxV))
			row[k] = float32(e)
			sum += e
		}
		for k := range row {
			row[k] = float32(float64(row[k]) / sum)
		}
	}
}

// ArgmaxRows returns the best class index and its value for every step.
func ArgmaxRows(probs []float32, steps, classes int) ([]int, []float32) {
	idx := make([]int, steps)
	val := make([]float32, steps)
	for t := 0; t < steps; t++ {
		row := probs[t*classes : (t+1)*classes]
		best := 0
		for k := 1; k < classes; k++ {
			if row[k] > row[best] {
				best = k
			}
		}
		idx[t] = best
		val[t] = row[best]
	}
	return idx, val
}

// CollapseCTC drops repeats and blanks, returning the positions of the emitted symbols.
func CollapseCTC(indices []int, blank int) []int {
	kept := make([]int, 0, len(indices))
	prev := -1
	for t, id := range indices {
		if id != prev && id != blank {
			kept = append(kept, t)
		}
		prev = id
	}
	return kept
}

// GreedyDecode turns a steps x classes probability matrix into text. Confidence
// is the mean probability of the emitted symbols, 0 when nothing is emitted.
// Indices outside the charset are dropped.
func GreedyDecode(probs []float32, steps, classes int, charset []string, blank int) (string, float64) {
	idx, val := ArgmaxRows(probs, steps, classes)

	var sb strings.Builder
	var sum float64
	var n int
	for _, t := range CollapseCTC(idx, blank) {
		id := idx[t]
		if id >= len(charset) {
			continue
		}
		sb.WriteString(charset[id])
		sum += float64(val[t])
		n++
	}
	if n == 0 {
		return "", 0
	}
	return sb.String(), sum / float64(n)
}
