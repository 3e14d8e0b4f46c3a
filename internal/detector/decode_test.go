package detector

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
)

func squareMeta() PreprocessMetadata {
	return NewPreprocessMetadata(1024, 1024, 1024)
}

func TestDecodeEmptyOutput(t *testing.T) {
	regions, err := Decode(mock.PackedOutput("output"), squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	assert.NotNil(t, regions)
	assert.Empty(t, regions)

	regions, err = Decode(mock.PairedOutput(), squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestDecodeNMSKeepsMostConfident(t *testing.T) {
	out := mock.PairedOutput(
		mock.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Score: 0.9, Label: 1},
		mock.Detection{X1: 100, Y1: 100, X2: 190, Y2: 300, Score: 0.4, Label: 1},
		mock.Detection{X1: 500, Y1: 500, X2: 600, Y2: 600, Score: 0.7, Label: 2},
	)
	regions, err := Decode(out, squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	require.Len(t, regions, 2)

	confs := []float64{regions[0].Confidence, regions[1].Confidence}
	assert.InDelta(t, 0.9, confs[0], 1e-6)
	assert.InDelta(t, 0.7, confs[1], 1e-6)
	for _, r := range regions {
		assert.NotEqual(t, 90, r.Width)
	}
}

func TestDecodeScoreFilter(t *testing.T) {
	out := mock.PackedOutput("output",
		mock.Detection{X1: 10, Y1: 10, X2: 100, Y2: 100, Score: 0.29},
		mock.Detection{X1: 200, Y1: 200, X2: 300, Y2: 300, Score: 0.3},
	)
	regions, err := Decode(out, squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 200, regions[0].X)
}

func TestDecodeUnletterboxAndExpand(t *testing.T) {
	// 2048x1024 image: maxWH 2048, scale 2.
	meta := NewPreprocessMetadata(2048, 1024, 1024)
	out := mock.PackedOutput("output",
		mock.Detection{X1: 100, Y1: 100, X2: 200, Y2: 150, Score: 0.8, Label: 3},
	)
	regions, err := Decode(out, meta, DefaultDecodeConfig())
	require.NoError(t, err)
	require.Len(t, regions, 1)

	// y1=200, y2=300, height 100, expanded by 2 on each side.
	r := regions[0]
	assert.Equal(t, geometry.Box{X: 200, Y: 198, Width: 200, Height: 104}, r.Box)
	assert.Equal(t, 3, r.ClassID)
	assert.Nil(t, r.CharCountCategory)
}

func TestDecodeClipsToImage(t *testing.T) {
	// Portrait image; padding occupies x in [600, 1200).
	meta := NewPreprocessMetadata(600, 1200, 1024)
	out := mock.PackedOutput("output",
		mock.Detection{X1: -20, Y1: -20, X2: 700, Y2: 1100, Score: 0.9},
		mock.Detection{X1: 900, Y1: 100, X2: 1000, Y2: 200, Score: 0.9}, // entirely in padding
	)
	regions, err := Decode(out, meta, DefaultDecodeConfig())
	require.NoError(t, err)
	require.Len(t, regions, 1)

	r := regions[0]
	assert.GreaterOrEqual(t, r.X, 0)
	assert.GreaterOrEqual(t, r.Y, 0)
	assert.LessOrEqual(t, r.MaxX(), 600)
	assert.LessOrEqual(t, r.MaxY(), 1200)
}

func TestDecodeMinSize(t *testing.T) {
	out := mock.PackedOutput("output",
		mock.Detection{X1: 10, Y1: 10, X2: 19, Y2: 100, Score: 0.9},
		mock.Detection{X1: 200, Y1: 10, X2: 300, Y2: 19, Score: 0.9},
		mock.Detection{X1: 400, Y1: 10, X2: 410, Y2: 20, Score: 0.9},
	)
	regions, err := Decode(out, squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 400, regions[0].X)
	assert.Equal(t, 10, regions[0].Width)
}

func TestDecodePairedInt64Labels(t *testing.T) {
	out := mock.PairedOutput(mock.Detection{X1: 10, Y1: 10, X2: 110, Y2: 60, Score: 0.95, Label: 7})
	cfg := DefaultDecodeConfig()
	cfg.CategoryByClass = map[int]int{7: 3}

	regions, err := Decode(out, squareMeta(), cfg)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 7, regions[0].ClassID)
	require.NotNil(t, regions[0].CharCountCategory)
	assert.Equal(t, 3, *regions[0].CharCountCategory)
}

func TestDecodePrefersPairedLayout(t *testing.T) {
	out := mock.PairedOutput(mock.Detection{X1: 10, Y1: 10, X2: 110, Y2: 60, Score: 0.95})
	out["aaa_other"] = onnx.Tensor{Data: []float32{1, 2}, Shape: []int64{1, 2}}

	regions, err := Decode(out, squareMeta(), DefaultDecodeConfig())
	require.NoError(t, err)
	assert.Len(t, regions, 1)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		outputs map[string]onnx.Tensor
		meta    PreprocessMetadata
	}{
		{"no outputs", map[string]onnx.Tensor{}, squareMeta()},
		{"nil outputs", nil, squareMeta()},
		{"rank one", map[string]onnx.Tensor{"o": {Data: make([]float32, 6), Shape: []int64{6}}}, squareMeta()},
		{"short data", map[string]onnx.Tensor{"o": {Data: make([]float32, 6), Shape: []int64{1, 2, 6}}}, squareMeta()},
		{"dets not multiple of five", map[string]onnx.Tensor{
			"dets":   {Data: make([]float32, 7), Shape: []int64{1, 1, 7}},
			"labels": {Data: make([]float32, 1), Shape: []int64{1, 1}},
		}, squareMeta()},
		{"labels too short", map[string]onnx.Tensor{
			"dets":   {Data: make([]float32, 10), Shape: []int64{1, 2, 5}},
			"labels": {Data: make([]float32, 1), Shape: []int64{1, 1}},
		}, squareMeta()},
		{"zero metadata", mock.PackedOutput("o"), PreprocessMetadata{}},
		{"negative count", map[string]onnx.Tensor{"o": {Data: make([]float32, 6), Shape: []int64{1, -1, 6}}}, squareMeta()},
		{"count larger than data", map[string]onnx.Tensor{"o": {Data: make([]float32, 6), Shape: []int64{1, 1 << 62, 6}}}, squareMeta()},
		{"count at int64 max", map[string]onnx.Tensor{"o": {Data: make([]float32, 12), Shape: []int64{1, math.MaxInt64, 6}}}, squareMeta()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions, err := Decode(tt.outputs, tt.meta, DefaultDecodeConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedOutput))
			assert.NotNil(t, regions)
			assert.Empty(t, regions)
		})
	}
}

func TestDecodeWithoutNMS(t *testing.T) {
	d := mock.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Score: 0.9}
	cfg := DefaultDecodeConfig()
	cfg.UseNMS = false

	regions, err := Decode(mock.PackedOutput("o", d, d), squareMeta(), cfg)
	require.NoError(t, err)
	assert.Len(t, regions, 2)
}

func TestDecodeConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultDecodeConfig().Validate())

	cfg := DefaultDecodeConfig()
	cfg.ScoreThreshold = 1.5
	cfg.MinSize = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score threshold")
	assert.Contains(t, err.Error(), "min size")
}

func TestDecodePackedUsesDeclaredOutputOrder(t *testing.T) {
	d := mock.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Score: 0.9}
	outputs := mock.PackedOutput("scores_out", d)
	// Sorts before "scores_out" but is not the detections tensor.
	outputs["aux"] = onnx.Tensor{Data: []float32{1}, Shape: []int64{1}}

	_, err := Decode(outputs, squareMeta(), DefaultDecodeConfig())
	assert.ErrorIs(t, err, ErrMalformedOutput)

	cfg := DefaultDecodeConfig()
	cfg.OutputOrder = []string{"missing", "scores_out", "aux"}
	regions, err := Decode(outputs, squareMeta(), cfg)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 100, regions[0].X)
}
