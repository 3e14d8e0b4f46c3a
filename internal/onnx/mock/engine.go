// Package mock provides in-memory Engine implementations and synthetic
// detector outputs for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// Engine is a scripted onnx.Engine.
type Engine struct {
	RunFunc func(ctx context.Context, inputs map[string]onnx.Tensor) (map[string]onnx.Tensor, error)

	mu     sync.Mutex
	calls  int
	closed bool
	shapes [][]int64
}

// NewEngine returns an Engine that answers every call with outputs.
func NewEngine(outputs map[string]onnx.Tensor) *Engine {
	return &Engine{RunFunc: func(context.Context, map[string]onnx.Tensor) (map[string]onnx.Tensor, error) {
		return outputs, nil
	}}
}

// NewFailingEngine returns an Engine whose Run always fails with err.
func NewFailingEngine(err error) *Engine {
	return &Engine{RunFunc: func(context.Context, map[string]onnx.Tensor) (map[string]onnx.Tensor, error) {
		return nil, err
	}}
}

// Run records the call and delegates to RunFunc.
func (e *Engine) Run(ctx context.Context, inputs map[string]onnx.Tensor) (map[string]onnx.Tensor, error) {
	e.mu.Lock()
	e.calls++
	closed := e.closed
	for _, t := range inputs {
		e.shapes = append(e.shapes, t.Shape)
	}
	fn := e.RunFunc
	e.mu.Unlock()

	if closed {
		return nil, onnx.ErrSessionClosed
	}
	if fn == nil {
		return nil, errors.New("mock engine has no RunFunc")
	}
	return fn(ctx, inputs)
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns how many times Run was invoked.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// InputShapes returns the shapes of every input tensor seen so far.
func (e *Engine) InputShapes() [][]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]int64, len(e.shapes))
	copy(out, e.shapes)
	return out
}

// Detection is one raw detector row in network input coordinates.
type Detection struct {
	X1, Y1, X2, Y2 float32
	Score          float32
	Label          float32
}

// PackedOutput builds a single [1,N,6] tensor with rows
// x1,y1,x2,y2,score,label.
func PackedOutput(name string, dets ...Detection) map[string]onnx.Tensor {
	data := make([]float32, 0, len(dets)*6)
	for _, d := range dets {
		data = append(data, d.X1, d.Y1, d.X2, d.Y2, d.Score, d.Label)
	}
	return map[string]onnx.Tensor{
		name: {Data: data, Shape: []int64{1, int64(len(dets)), 6}},
	}
}

// PairedOutput builds the dets [1,N,5] and labels [1,N] tensors.
func PairedOutput(dets ...Detection) map[string]onnx.Tensor {
	boxes := make([]float32, 0, len(dets)*5)
	labels := make([]float32, 0, len(dets))
	for _, d := range dets {
		boxes = append(boxes, d.X1, d.Y1, d.X2, d.Y2, d.Score)
		labels = append(labels, d.Label)
	}
	n := int64(len(dets))
	return map[string]onnx.Tensor{
		"dets":   {Data: boxes, Shape: []int64{1, n, 5}},
		"labels": {Data: labels, Shape: []int64{1, n}},
	}
}

// SequenceLogits builds a [1,T,C] logits tensor whose argmax at each step
// is the given class index. Unused steps point to index 0.
func SequenceLogits(steps, classes int, indices ...int) onnx.Tensor {
	data := make([]float32, steps*classes)
	for t := range steps {
		idx := 0
		if t < len(indices) {
			idx = indices[t]
		}
		data[t*classes+idx] = 10
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(steps), int64(classes)}}
}
