package detector

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputSize = 64
	return cfg
}

func TestDetectorDetect(t *testing.T) {
	// 128x64 image, 64 input: scale factor 2.
	engine := mock.NewEngine(mock.PackedOutput("output",
		mock.Detection{X1: 5, Y1: 5, X2: 30, Y2: 20, Score: 0.9},
	))
	d, err := NewWithEngine(engine, testConfig())
	require.NoError(t, err)

	var progress []float64
	regions, err := d.Detect(context.Background(), solidImage(128, 64, color.White), func(p float64) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 10, regions[0].X)
	assert.Equal(t, 50, regions[0].Width)

	assert.Equal(t, []float64{0.1, 0.5, 0.8, 1.0}, progress)
	assert.Equal(t, [][]int64{{1, 3, 64, 64}}, engine.InputShapes())
}

func TestDetectorDecodeFailure(t *testing.T) {
	engine := mock.NewEngine(map[string]onnx.Tensor{})
	d, err := NewWithEngine(engine, testConfig())
	require.NoError(t, err)

	regions, err := d.Detect(context.Background(), solidImage(32, 32, color.White), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.False(t, errors.Is(err, ErrInference))
	assert.Empty(t, regions)
}

func TestDetectorEngineFailure(t *testing.T) {
	boom := errors.New("engine exploded")
	d, err := NewWithEngine(mock.NewFailingEngine(boom), testConfig())
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), solidImage(32, 32, color.White), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, boom)
}

func TestDetectorClose(t *testing.T) {
	d, err := NewWithEngine(mock.NewEngine(mock.PackedOutput("o")), testConfig())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = d.Detect(context.Background(), solidImage(32, 32, color.White), nil)
	assert.ErrorIs(t, err, ErrInference)
}

func TestNewWithEngineValidation(t *testing.T) {
	_, err := NewWithEngine(nil, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.InputSize = 0
	_, err = NewWithEngine(mock.NewEngine(nil), cfg)
	assert.Error(t, err)
}

func TestNewDetectorMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/deim.onnx"
	_, err := NewDetector(cfg)
	assert.Error(t, err)
}

type namedEngine struct {
	*mock.Engine
	names []string
}

func (e namedEngine) OutputNames() []string { return e.names }

func TestDetectorTakesOutputOrderFromEngine(t *testing.T) {
	outputs := mock.PackedOutput("boxes", mock.Detection{X1: 5, Y1: 5, X2: 30, Y2: 20, Score: 0.9})
	outputs["aux"] = onnx.Tensor{Data: []float32{1}, Shape: []int64{1}}
	engine := namedEngine{Engine: mock.NewEngine(outputs), names: []string{"boxes", "aux"}}

	d, err := NewWithEngine(engine, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"boxes", "aux"}, d.Config().Decode.OutputOrder)

	regions, err := d.Detect(context.Background(), solidImage(128, 64, color.White), nil)
	require.NoError(t, err)
	assert.Len(t, regions, 1)

	// An explicit order is kept.
	cfg := testConfig()
	cfg.Decode.OutputOrder = []string{"aux"}
	d, err = NewWithEngine(engine, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"aux"}, d.Config().Decode.OutputOrder)
}
