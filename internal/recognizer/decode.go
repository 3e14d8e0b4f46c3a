package recognizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// Decoding modes.
const (
	// DecodeSequence reads one token per step and stops at the
	// end-of-sequence index (autoregressive models such as PARSeq).
	DecodeSequence = "sequence"
	// DecodeCTC drops blanks and collapses repeats.
	DecodeCTC = "ctc"
)

// Decoder maps network logits to text.
type Decoder struct {
	Charset *Charset
	Mode    string
	// StopIndex is the end-of-sequence index in sequence mode and the
	// blank index in CTC mode.
	StopIndex int
	// Offset is subtracted from a class index to get the charset index.
	Offset int
}

// Decoded is the outcome of greedy decoding.
type Decoded struct {
	Text       string
	Indices    []int
	Confidence float64
}

// Decode greedily decodes a [1,T,C] or [T,C] logits tensor.
func (d Decoder) Decode(logits onnx.Tensor) (Decoded, error) {
	if d.Charset == nil {
		return Decoded{}, fmt.Errorf("decoder has no charset")
	}
	steps, classes, err := sequenceDims(logits)
	if err != nil {
		return Decoded{}, err
	}

	var (
		b       strings.Builder
		indices []int
		probSum float64
		prev    = -1
	)
	for t := range steps {
		row := logits.Data[t*classes : (t+1)*classes]
		idx, _ := argmax(row)

		if d.Mode == DecodeCTC {
			if idx == d.StopIndex || idx == prev {
				prev = idx
				continue
			}
			prev = idx
		} else if idx == d.StopIndex {
			break
		}

		tok, ok := d.Charset.Token(idx - d.Offset)
		if !ok {
			continue
		}
		b.WriteString(tok)
		indices = append(indices, idx)
		probSum += softmaxProb(row, idx)
	}

	out := Decoded{Text: b.String(), Indices: indices}
	if len(indices) > 0 {
		out.Confidence = probSum / float64(len(indices))
	}
	return out, nil
}

func sequenceDims(t onnx.Tensor) (int, int, error) {
	var steps, classes int
	switch len(t.Shape) {
	case 2:
		steps, classes = int(t.Shape[0]), int(t.Shape[1])
	case 3:
		if t.Shape[0] != 1 {
			return 0, 0, fmt.Errorf("expected batch size 1, got %d", t.Shape[0])
		}
		steps, classes = int(t.Shape[1]), int(t.Shape[2])
	default:
		return 0, 0, fmt.Errorf("unexpected logits rank %d", len(t.Shape))
	}
	if steps < 0 || classes <= 0 || len(t.Data) < steps*classes {
		return 0, 0, fmt.Errorf("logits shape %v does not match %d values", t.Shape, len(t.Data))
	}
	return steps, classes, nil
}

// argmax returns the index of the first maximum.
func argmax(v []float32) (int, float32) {
	if len(v) == 0 {
		return -1, 0
	}
	idx, best := 0, v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > best {
			idx, best = i, v[i]
		}
	}
	return idx, best
}

// softmaxProb returns the softmax probability of v[idx].
func softmaxProb(v []float32, idx int) float64 {
	if idx < 0 || idx >= len(v) {
		return 0
	}
	m := float64(v[0])
	for _, x := range v[1:] {
		m = math.Max(m, float64(x))
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x) - m)
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx])-m) / denom
}
