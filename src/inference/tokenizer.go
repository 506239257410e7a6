package inference

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer wraps a HuggingFace tokenizer.json and produces fixed-length encodings.
type Tokenizer struct {
	tk     *tokenizer.Tokenizer
	maxLen int
}

func LoadTokenizer(path string, maxLen int) (*Tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &Tokenizer{tk: tk, maxLen: maxLen}, nil
}

// Encode returns token ids and the attention mask, both exactly maxLen long.
func (t *Tokenizer) Encode(text string) ([]int64, []int64, error) {
	en, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	ids, mask := fitLength(en.Ids, en.AttentionMask, t.maxLen)
	return ids, mask, nil
}

// fitLength truncates (keeping the final special token) or zero-pads to n.
func fitLength(ids, mask []int, n int) ([]int64, []int64) {
	outIDs := make([]int64, n)
	outMask := make([]int64, n)

	if len(ids) > n {
		for i := 0; i < n-1; i++ {
			outIDs[i] = int64(ids[i])
			outMask[i] = 1
		}
		outIDs[n-1] = int64(ids[len(ids)-1])
		outMask[n-1] = 1
		return outIDs, outMask
	}

	for i, id := range ids {
		outIDs[i] = int64(id)
		if i < len(mask) {
			outMask[i] = int64(mask[i])
		} else {
			outMask[i] = 1
		}
	}
	return outIDs, outMask
}
