package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

func nextTerminal(t *testing.T, events <-chan Event) (Event, []ProgressEvent) {
	t.Helper()
	var progress []ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed early")
			if pe, ok := ev.(ProgressEvent); ok {
				progress = append(progress, pe)
				continue
			}
			return ev, progress
		case <-timeout:
			t.Fatal("timed out waiting for worker event")
			return nil, nil
		}
	}
}

func TestWorkerProcessesInOrder(t *testing.T) {
	p := newTestPipeline(t, mock.NewEngine(twoBoxOutput()), recognizer.StrategyFunc(widthText))
	w := NewWorkerWithPipeline(p)
	defer func() { _ = w.Close() }()

	ctx := context.Background()
	require.NoError(t, w.Submit(ctx, ProcessRequest{ID: "one", Image: testImage(128, 64)}))
	require.NoError(t, w.Submit(ctx, ProcessRequest{ID: "two", Image: testImage(128, 64)}))

	for _, id := range []string{"one", "two"} {
		ev, progress := nextTerminal(t, w.Events())
		done, ok := ev.(CompleteEvent)
		require.True(t, ok, "expected completion, got %T", ev)
		assert.Equal(t, id, done.ID)
		assert.Equal(t, "a\nb", done.Result.FullText)
		for _, pe := range progress {
			assert.Equal(t, id, pe.ImageID)
		}
	}
}

func TestWorkerLazyInitializationReportsLoading(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Cascade = false
	b := NewBuilderFromConfig(cfg).
		WithCharset(testCharset(t)).
		WithEngineFactory(func(c onnx.SessionConfig) (onnx.Engine, error) {
			if c.ModelPath == cfg.Detector.ModelPath {
				return mock.NewEngine(twoBoxOutput()), nil
			}
			return mock.NewEngine(map[string]onnx.Tensor{"output": mock.SequenceLogits(4, 4, 2, 0)}), nil
		})

	w := NewWorker(b.BuildWithProgress)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(context.Background(), ProcessRequest{ID: "p", Image: testImage(128, 64)}))
	ev, progress := nextTerminal(t, w.Events())
	done, ok := ev.(CompleteEvent)
	require.True(t, ok, "expected completion, got %#v", ev)
	assert.Equal(t, "文\n文", done.Result.FullText)

	stages := map[Stage]bool{}
	for _, pe := range progress {
		stages[pe.Stage] = true
	}
	for _, s := range []Stage{StageInitializing, StageLoadingLayoutModel, StageLoadingRecognitionModel, StageInitialized} {
		assert.True(t, stages[s], "missing stage %s", s)
	}
}

func TestWorkerInitializationFailure(t *testing.T) {
	attempts := 0
	w := NewWorker(func(ProgressSink) (*Pipeline, error) {
		attempts++
		return nil, errors.New("model missing")
	})
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(context.Background(), InitializeRequest{}))
	ev, _ := nextTerminal(t, w.Events())
	failed, ok := ev.(FailedEvent)
	require.True(t, ok)
	assert.Equal(t, StageInitialization, failed.Stage)
	assert.ErrorIs(t, failed.Err, KindInitialization)

	// The next request retries initialization and reports against its id.
	require.NoError(t, w.Submit(context.Background(), ProcessRequest{ID: "img", Image: testImage(8, 8)}))
	ev, _ = nextTerminal(t, w.Events())
	failed, ok = ev.(FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "img", failed.ID)
	assert.Equal(t, 2, attempts)
}

func TestWorkerReportsPipelineFailure(t *testing.T) {
	p := newTestPipeline(t, mock.NewFailingEngine(errors.New("boom")), recognizer.StrategyFunc(widthText))
	w := NewWorkerWithPipeline(p)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(context.Background(), ProcessRequest{ID: "x", Image: testImage(64, 64)}))
	ev, _ := nextTerminal(t, w.Events())
	failed, ok := ev.(FailedEvent)
	require.True(t, ok)
	assert.Equal(t, "x", failed.ID)
	assert.Equal(t, StageLayoutDetection, failed.Stage)
	assert.ErrorIs(t, failed.Err, KindPipeline)
}

func TestWorkerTerminate(t *testing.T) {
	det := mock.NewEngine(twoBoxOutput())
	p := newTestPipeline(t, det, recognizer.StrategyFunc(widthText))
	w := NewWorkerWithPipeline(p)

	require.NoError(t, w.Submit(context.Background(), InitializeRequest{}))
	require.NoError(t, w.Submit(context.Background(), TerminateRequest{}))

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	for range w.Events() {
	}
	assert.ErrorIs(t, w.Submit(context.Background(), ProcessRequest{ID: "late"}), ErrWorkerStopped)
	assert.NoError(t, w.Close())

	// The pipeline was closed with the worker.
	_, err := det.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestWorkerSubmitRespectsContext(t *testing.T) {
	block := make(chan struct{})
	w := NewWorker(func(ProgressSink) (*Pipeline, error) {
		<-block
		return nil, errors.New("never ready")
	}, WithQueueSize(0))
	defer func() {
		close(block)
		_ = w.Close()
	}()

	require.NoError(t, w.Submit(context.Background(), InitializeRequest{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Submit(ctx, InitializeRequest{}), context.DeadlineExceeded)
	assert.Error(t, w.Submit(context.Background(), nil))
}
