package detector

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// ErrMalformedOutput marks detector output that could not be parsed.
// Decode still returns an empty, non-nil region slice alongside it.
var ErrMalformedOutput = errors.New("malformed detector output")

const (
	pairedStride = 5 // x1,y1,x2,y2,score
	packedStride = 6 // x1,y1,x2,y2,score,label
)

// rawDetection is one row in network input coordinates.
type rawDetection struct {
	x1, y1, x2, y2 float64
	score          float64
	label          int
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedOutput, fmt.Sprintf(format, args...))
}

// Decode converts raw detector outputs into regions in original image
// coordinates. Two layouts are accepted: a "dets"/"labels" pair, or a
// single packed tensor of [1,N,6] rows. Output order is not meaningful.
func Decode(outputs map[string]onnx.Tensor, meta PreprocessMetadata, cfg DecodeConfig) ([]TextRegion, error) {
	raw, err := parseOutputs(outputs, cfg.OutputOrder)
	if err != nil {
		return []TextRegion{}, err
	}
	if meta.InputSize <= 0 || meta.MaxWH <= 0 {
		return []TextRegion{}, malformed("invalid preprocess metadata %+v", meta.Letterbox)
	}

	regions := make([]TextRegion, 0, len(raw))
	for _, d := range raw {
		if r, ok := toRegion(d, meta, cfg); ok {
			regions = append(regions, r)
		}
	}
	if cfg.UseNMS {
		regions = NonMaxSuppression(regions, cfg.NMSThreshold)
	}
	return regions, nil
}

func toRegion(d rawDetection, meta PreprocessMetadata, cfg DecodeConfig) (TextRegion, bool) {
	// NaN scores fail this comparison and are dropped with the rest.
	if !(d.score >= cfg.ScoreThreshold) {
		return TextRegion{}, false
	}

	x1 := meta.ToOriginal(d.x1)
	y1 := meta.ToOriginal(d.y1)
	x2 := meta.ToOriginal(d.x2)
	y2 := meta.ToOriginal(d.y2)

	dh := (y2 - y1) * cfg.ExpandRatio
	box := geometry.ClipBox(x1, y1-dh, x2, y2+dh, meta.OriginalWidth, meta.OriginalHeight)
	if box.Width < cfg.MinSize || box.Height < cfg.MinSize || box.Width <= 0 || box.Height <= 0 {
		return TextRegion{}, false
	}

	r := TextRegion{Box: box, Confidence: d.score, ClassID: d.label}
	if cat, ok := cfg.CategoryByClass[d.label]; ok {
		r.CharCountCategory = &cat
	}
	return r, true
}

func parseOutputs(outputs map[string]onnx.Tensor, order []string) ([]rawDetection, error) {
	if len(outputs) == 0 {
		return nil, malformed("no outputs")
	}
	dets, hasDets := outputs["dets"]
	labels, hasLabels := outputs["labels"]
	if hasDets && hasLabels {
		return parsePaired(dets, labels)
	}
	return parsePacked(outputs, order)
}

func parsePaired(dets, labels onnx.Tensor) ([]rawDetection, error) {
	if len(dets.Data)%pairedStride != 0 {
		return nil, malformed("dets length %d is not a multiple of %d", len(dets.Data), pairedStride)
	}
	n := len(dets.Data) / pairedStride
	if len(labels.Data) < n {
		return nil, malformed("labels length %d < detections %d", len(labels.Data), n)
	}
	out := make([]rawDetection, n)
	for i := range n {
		row := dets.Data[i*pairedStride : (i+1)*pairedStride]
		out[i] = newRaw(row, labels.Data[i])
	}
	return out, nil
}

// parsePacked reads the first model output. order is the model's
// declaration order; without it the first name in sorted order is used.
// The tensor's second dimension is the detection count.
func parsePacked(outputs map[string]onnx.Tensor, order []string) ([]rawDetection, error) {
	name := firstOutput(outputs, order)
	t := outputs[name]

	if len(t.Shape) < 2 {
		return nil, malformed("output %q has rank %d, want >= 2", name, len(t.Shape))
	}
	count := t.Shape[1]
	if count < 0 || count > int64(len(t.Data)/packedStride) {
		return nil, malformed("output %q has %d values, too few for %d detections",
			name, len(t.Data), count)
	}
	n := int(count)
	out := make([]rawDetection, n)
	for i := range n {
		row := t.Data[i*packedStride : (i+1)*packedStride]
		out[i] = newRaw(row[:5], row[5])
	}
	return out, nil
}

func firstOutput(outputs map[string]onnx.Tensor, order []string) string {
	for _, name := range order {
		if _, ok := outputs[name]; ok {
			return name
		}
	}
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

func newRaw(row []float32, label float32) rawDetection {
	l := 0
	if !math.IsNaN(float64(label)) {
		l = int(label)
	}
	return rawDetection{
		x1:    float64(row[0]),
		y1:    float64(row[1]),
		x2:    float64(row[2]),
		y2:    float64(row[3]),
		score: float64(row[4]),
		label: l,
	}
}
