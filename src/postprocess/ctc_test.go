package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testCharset = []string{"[blank]", "a", "b", "c"}

// oneHot builds a steps x len(testCharset) matrix with prob p on each chosen index.
func oneHot(indices []int, p float32) []float32 {
	classes := len(testCharset)
	out := make([]float32, len(indices)*classes)
	rest := (1 - p) / float32(classes-1)
	for t, id := range indices {
		for k := 0; k < classes; k++ {
			out[t*classes+k] = rest
		}
		out[t*classes+id] = p
	}
	return out
}

func TestCollapseCTC(t *testing.T) {
	seq := []int{1, 1, 0, 2, 2, 2, 0, 3}
	assert.Equal(t, []int{0, 3, 7}, CollapseCTC(seq, 0))
}

func TestGreedyDecode_CollapsesRepeatsAndBlanks(t *testing.T) {
	probs := oneHot([]int{1, 1, 0, 2, 2, 2, 0, 3}, 0.9)

	text, conf := GreedyDecode(probs, 8, len(testCharset), testCharset, 0)

	assert.Equal(t, "abc", text)
	assert.InDelta(t, 0.9, conf, 1e-6)
}

func TestGreedyDecode_RepeatAcrossBlankIsKept(t *testing.T) {
	probs := oneHot([]int{1, 0, 1}, 0.8)

	text, _ := GreedyDecode(probs, 3, len(testCharset), testCharset, 0)

	assert.Equal(t, "aa", text)
}

func TestGreedyDecode_AllBlank(t *testing.T) {
	probs := oneHot([]int{0, 0, 0}, 0.99)

	text, conf := GreedyDecode(probs, 3, len(testCharset), testCharset, 0)

	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestGreedyDecode_IgnoresIndicesOutsideCharset(t *testing.T) {
	probs := []float32{
		0.1, 0.1, 0.1, 0.1, 0.6,
		0.1, 0.6, 0.1, 0.1, 0.1,
	}

	text, _ := GreedyDecode(probs, 2, 5, testCharset, 0)

	assert.Equal(t, "a", text)
}

func TestSoftmax(t *testing.T) {
	logits := []float32{0, 0, 1000, 1, 1, 1}

	Softmax(logits, 2, 3)

	assert.InDelta(t, 1.0, logits[2], 1e-6)
	assert.InDelta(t, 0.0, logits[0], 1e-6)
	for k := 3; k < 6; k++ {
		assert.InDelta(t, 1.0/3, logits[k], 1e-6)
	}
}
