package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

const testInputSize = 64

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// Two boxes on one line of a 128x64 image, given right box first. After
// un-letterboxing (scale 2) they are (10,10 50x20) and (80,10 40x20).
func twoBoxOutput() map[string]onnx.Tensor {
	return mock.PackedOutput("output",
		mock.Detection{X1: 40, Y1: 5, X2: 60, Y2: 15, Score: 0.8},
		mock.Detection{X1: 5, Y1: 5, X2: 30, Y2: 15, Score: 0.9},
	)
}

// widthText names crops by width: 50 -> "a", 40 -> "b".
func widthText(_ context.Context, crop image.Image) (string, error) {
	switch crop.Bounds().Dx() {
	case 50:
		return "a", nil
	case 40:
		return "b", nil
	default:
		return fmt.Sprintf("w%d", crop.Bounds().Dx()), nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Detector.InputSize = testInputSize
	return cfg
}

func newTestPipeline(t *testing.T, det onnx.Engine, strategy recognizer.Strategy) *Pipeline {
	t.Helper()
	cfg := testConfig()
	d, err := detector.NewWithEngine(det, cfg.Detector)
	require.NoError(t, err)
	disp, err := recognizer.NewSingle(strategy)
	require.NoError(t, err)
	p, err := NewPipeline(d, disp, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

type progressLog struct {
	mu      sync.Mutex
	updates []Progress
}

func (l *progressLog) Report(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, p)
}

func (l *progressLog) stages() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Stage
	for _, u := range l.updates {
		if len(out) == 0 || out[len(out)-1] != u.Stage {
			out = append(out, u.Stage)
		}
	}
	return out
}

func testCharset(t *testing.T) *recognizer.Charset {
	t.Helper()
	cs, err := recognizer.NewCharset([]string{"古", "文", "書"})
	require.NoError(t, err)
	return cs
}
