package pipeline

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

func TestProcessImageOrdersBlocks(t *testing.T) {
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), recognizer.StrategyFunc(widthText))

	res, err := p.ProcessImage(context.Background(), testImage(128, 64), nil)
	require.NoError(t, err)

	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "a", res.Blocks[0].Text)
	assert.Equal(t, 1, res.Blocks[0].ReadingOrder)
	assert.Equal(t, 10, res.Blocks[0].X)
	assert.Equal(t, "b", res.Blocks[1].Text)
	assert.Equal(t, 2, res.Blocks[1].ReadingOrder)
	assert.Equal(t, "a\nb", res.FullText)
	assert.Equal(t, 2, res.RegionCount)
	assert.Equal(t, "horizontal", res.Direction)
	assert.Equal(t, 128, res.Width)
	assert.False(t, res.Degraded())
	assert.NoError(t, ValidateImageResult(res))
}

func TestProcessImageProgress(t *testing.T) {
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), recognizer.StrategyFunc(widthText))
	log := &progressLog{}

	_, err := p.ProcessImageWithID(context.Background(), "img-1", testImage(128, 64), log)
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageLayoutDetection, StageTextRecognition, StageReadingOrder, StageGeneratingOutput}, log.stages())

	first := log.updates[0]
	assert.Equal(t, "img-1", first.ImageID)
	assert.InDelta(t, 0.1, first.Fraction, 1e-9)

	var last float64
	var recognized []string
	for _, u := range log.updates {
		assert.GreaterOrEqual(t, u.Fraction, last, "progress went backwards at %s", u.Stage)
		last = u.Fraction
		if u.Stage == StageTextRecognition && u.Fraction > 0.4 {
			recognized = append(recognized, u.Message)
		}
	}
	assert.Equal(t, []string{"Recognized 1/2 regions", "Recognized 2/2 regions"}, recognized)
	assert.InDelta(t, 0.9, last, 1e-9)
}

func TestProcessImageEmptyDetectorOutput(t *testing.T) {
	zeroBefore := testutil.ToFloat64(zeroDetectionImages)
	decodeBefore := testutil.ToFloat64(decodeFailures)

	strategy := &countingStrategy{}
	p := newTestPipeline(t, mock.NewEngine(mock.PackedOutput("output")), strategy)

	res, err := p.ProcessImage(context.Background(), testImage(128, 64), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Blocks)
	assert.Empty(t, res.Blocks)
	assert.Empty(t, res.FullText)
	assert.Empty(t, res.DecodeError)
	assert.Zero(t, strategy.calls.Load())

	assert.Equal(t, zeroBefore+1, testutil.ToFloat64(zeroDetectionImages))
	assert.Equal(t, decodeBefore, testutil.ToFloat64(decodeFailures))
}

func TestProcessImageMalformedOutputDegrades(t *testing.T) {
	zeroBefore := testutil.ToFloat64(zeroDetectionImages)
	decodeBefore := testutil.ToFloat64(decodeFailures)

	bad := map[string]onnx.Tensor{"output": {Data: []float32{1, 2}, Shape: []int64{1}}}
	p := newTestPipeline(t, mock.NewEngine(bad), recognizer.StrategyFunc(widthText))

	res, err := p.ProcessImage(context.Background(), testImage(128, 64), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Blocks)
	assert.NotEmpty(t, res.DecodeError)
	assert.True(t, res.Degraded())

	assert.Equal(t, decodeBefore+1, testutil.ToFloat64(decodeFailures))
	assert.Equal(t, zeroBefore, testutil.ToFloat64(zeroDetectionImages))
}

func TestProcessImageEngineFailure(t *testing.T) {
	boom := errors.New("device lost")
	p := newTestPipeline(t, mock.NewFailingEngine(boom), recognizer.StrategyFunc(widthText))

	res, err := p.ProcessImageWithID(context.Background(), "x", testImage(128, 64), nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, KindPipeline)
	assert.ErrorIs(t, err, detector.ErrInference)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, KindDecode)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageLayoutDetection, pe.Stage)
	assert.Equal(t, "x", pe.ImageID)
}

func TestProcessImageRecognitionFailureLeavesTextEmpty(t *testing.T) {
	before := testutil.ToFloat64(recognitionFailures.WithLabelValues("single"))
	strategy := recognizer.StrategyFunc(func(ctx context.Context, crop image.Image) (string, error) {
		if crop.Bounds().Dx() == 50 {
			return "", errors.New("bad crop")
		}
		return widthText(ctx, crop)
	})
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), strategy)

	res, err := p.ProcessImage(context.Background(), testImage(128, 64), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecognitionFailures)
	assert.Equal(t, 2, res.RegionCount)
	// The empty block is dropped by reading order reconstruction.
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "b", res.Blocks[0].Text)
	assert.Equal(t, 1, res.Blocks[0].ReadingOrder)
	assert.Equal(t, "b", res.FullText)
	assert.Equal(t, before+1, testutil.ToFloat64(recognitionFailures.WithLabelValues("single")))
}

func TestProcessImageNilImage(t *testing.T) {
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), recognizer.StrategyFunc(widthText))
	_, err := p.ProcessImage(context.Background(), nil, nil)
	assert.ErrorIs(t, err, KindPipeline)
}

func TestProcessImageCancelledBetweenRegions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	strategy := recognizer.StrategyFunc(func(c context.Context, crop image.Image) (string, error) {
		cancel()
		return widthText(c, crop)
	})
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), strategy)

	_, err := p.ProcessImage(ctx, testImage(128, 64), nil)
	assert.ErrorIs(t, err, KindPipeline)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessImageSinkPanicIsContained(t *testing.T) {
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), recognizer.StrategyFunc(widthText))
	sink := ProgressFunc(func(Progress) { panic("observer bug") })

	res, err := p.ProcessImage(context.Background(), testImage(128, 64), sink)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", res.FullText)
}

func TestNewPipelineRequiresComponents(t *testing.T) {
	cfg := testConfig()
	d, err := detector.NewWithEngine(mock.NewEngine(nil), cfg.Detector)
	require.NoError(t, err)
	disp, err := recognizer.NewSingle(recognizer.StrategyFunc(widthText))
	require.NoError(t, err)

	_, err = NewPipeline(nil, disp, cfg)
	assert.ErrorIs(t, err, KindInitialization)

	_, err = NewPipeline(d, nil, cfg)
	assert.ErrorIs(t, err, KindInitialization)

	bad := cfg
	bad.ReadingOrder.Direction = "diagonal"
	_, err = NewPipeline(d, disp, bad)
	assert.ErrorIs(t, err, KindInitialization)
}

func TestJoinText(t *testing.T) {
	blocks := []TextBlock{{Text: "一"}, {Text: ""}, {Text: "二"}}
	assert.Equal(t, "一\n二", JoinText(blocks))
	assert.Empty(t, JoinText(nil))
}

type countingStrategy struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *countingStrategy) Recognize(ctx context.Context, crop image.Image) (string, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return widthText(ctx, crop)
}
