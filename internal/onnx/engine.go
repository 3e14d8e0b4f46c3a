package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Engine runs a loaded model on named input tensors.
type Engine interface {
	Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error)
	Close() error
}

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("onnx session is closed")

// SessionConfig configures an onnxruntime-backed Engine.
type SessionConfig struct {
	ModelPath   string
	NumThreads  int
	LibraryPath string
	GPU         GPUConfig
}

// Session is an Engine backed by an onnxruntime DynamicAdvancedSession.
// The runtime is not safe for concurrent Run calls on one session, so
// calls are serialized.
type Session struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
	path    string
}

// NewSession loads the model and prepares a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, err
	}
	if err := InitializeRuntime(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", cfg.ModelPath)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()

	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, infoNames(inputs), infoNames(outputs), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("onnx session created",
		"model", cfg.ModelPath,
		"inputs", infoNames(inputs),
		"outputs", infoNames(outputs))

	return &Session{session: sess, inputs: inputs, outputs: outputs, path: cfg.ModelPath}, nil
}

func infoNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// InputNames returns the model input names in declaration order.
func (s *Session) InputNames() []string { return infoNames(s.inputs) }

// OutputNames returns the model output names in declaration order.
func (s *Session) OutputNames() []string { return infoNames(s.outputs) }

// ModelPath returns the path the session was loaded from.
func (s *Session) ModelPath() string { return s.path }

// Run executes the model. A single-input model accepts any one tensor
// regardless of its key.
func (s *Session) Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrSessionClosed
	}

	values, err := s.buildInputs(inputs)
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	if err != nil {
		return nil, err
	}

	outs := make([]ort.Value, len(s.outputs))
	if err := s.session.Run(values, outs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	result := make(map[string]Tensor, len(outs))
	for i, o := range outs {
		t, err := fromValue(o)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", s.outputs[i].Name, err)
		}
		result[s.outputs[i].Name] = t
	}
	return result, nil
}

func (s *Session) buildInputs(inputs map[string]Tensor) ([]ort.Value, error) {
	values := make([]ort.Value, 0, len(s.inputs))
	for _, info := range s.inputs {
		t, ok := inputs[info.Name]
		if !ok && len(s.inputs) == 1 && len(inputs) == 1 {
			for _, only := range inputs {
				t, ok = only, true
			}
		}
		if !ok {
			return values, fmt.Errorf("missing input %q", info.Name)
		}
		if err := t.Validate(); err != nil {
			return values, fmt.Errorf("input %q: %w", info.Name, err)
		}
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return values, fmt.Errorf("failed to create input tensor %q: %w", info.Name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func fromValue(v ort.Value) (Tensor, error) {
	if v == nil {
		return Tensor{}, errors.New("nil output value")
	}
	shape := slices.Clone([]int64(v.GetShape()))
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		return Tensor{Data: slices.Clone(tv.GetData()), Shape: shape}, nil
	case *ort.Tensor[int64]:
		return Tensor{Data: widen(tv.GetData()), Shape: shape}, nil
	case *ort.Tensor[int32]:
		return Tensor{Data: widen(tv.GetData()), Shape: shape}, nil
	case *ort.Tensor[float64]:
		return Tensor{Data: widen(tv.GetData()), Shape: shape}, nil
	default:
		return Tensor{}, fmt.Errorf("unsupported output type %T", v)
	}
}

func widen[T int64 | int32 | float64](in []T) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
