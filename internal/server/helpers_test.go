package server

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/history"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

// Two boxes on one line of a 128x64 image. With a 64px detector input
// they map to (10,10 50x20) and (80,10 40x20).
func twoBoxOutput() map[string]onnx.Tensor {
	return mock.PackedOutput("output",
		mock.Detection{X1: 40, Y1: 5, X2: 60, Y2: 15, Score: 0.8},
		mock.Detection{X1: 5, Y1: 5, X2: 30, Y2: 15, Score: 0.9},
	)
}

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

func newTestWorker(t *testing.T, det onnx.Engine) *pipeline.Worker {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Detector.InputSize = 64
	d, err := detector.NewWithEngine(det, cfg.Detector)
	require.NoError(t, err)
	disp, err := recognizer.NewSingle(recognizer.StrategyFunc(widthText))
	require.NoError(t, err)
	p, err := pipeline.NewPipeline(d, disp, cfg)
	require.NoError(t, err)
	return pipeline.NewWorkerWithPipeline(p)
}

type testOptions struct {
	engine    onnx.Engine
	noHistory bool
	rateLimit RateLimitConfig
	maxMB     int64
	wsIdle    time.Duration
}

func newTestServer(t *testing.T, opts testOptions) (*Server, history.Store) {
	t.Helper()
	if opts.engine == nil {
		opts.engine = mock.NewEngine(twoBoxOutput())
	}
	var store history.Store
	if !opts.noHistory {
		store = history.NewMemoryStore()
	}
	srv, err := New(Config{
		Host:          "localhost",
		Port:          8080,
		MaxUploadMB:   opts.maxMB,
		TimeoutSec:    5,
		ModelsDir:     t.TempDir(),
		Version:       "test",
		RateLimit:     opts.rateLimit,
		WebSocketIdle: opts.wsIdle,
	}, newTestWorker(t, opts.engine), store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, store
}

func testImagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, field, filename string, data []byte, extra map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
