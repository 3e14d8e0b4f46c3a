package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/yomitori/internal/mempool"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// Config configures a fixed input shape ONNX recognition strategy.
type Config struct {
	ModelPath   string
	Width       int // fixed input width, e.g. 256, 384 or 768
	Height      int // fixed input height (default: 16)
	InputName   string
	NumThreads  int
	LibraryPath string
	GPU         onnx.GPUConfig
	KeepAspect  bool
	Decoding    string // DecodeSequence (default) or DecodeCTC
	StopIndex   int
	Offset      int
	Clean       CleanOptions
}

// DefaultConfig returns a PARSeq style configuration for the given width.
func DefaultConfig(modelPath string, width int) Config {
	return Config{
		ModelPath:  modelPath,
		Width:      width,
		Height:     16,
		InputName:  "input",
		GPU:        onnx.DefaultGPUConfig(),
		KeepAspect: true,
		Decoding:   DecodeSequence,
		StopIndex:  0,
		Offset:     1,
		Clean:      DefaultCleanOptions(),
	}
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid input size %dx%d", c.Width, c.Height)
	}
	switch c.Decoding {
	case "", DecodeSequence, DecodeCTC:
	default:
		return fmt.Errorf("unknown decoding mode %q", c.Decoding)
	}
	return nil
}

// ONNXStrategy recognizes a crop with one fixed-shape network.
type ONNXStrategy struct {
	config  Config
	engine  onnx.Engine
	decoder Decoder
}

// NewONNXStrategy loads the model in config.ModelPath.
func NewONNXStrategy(config Config, charset *Charset) (*ONNXStrategy, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	session, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   config.ModelPath,
		NumThreads:  config.NumThreads,
		LibraryPath: config.LibraryPath,
		GPU:         config.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recognition model: %w", err)
	}
	s, err := NewONNXStrategyWithEngine(session, config, charset)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return s, nil
}

// NewONNXStrategyWithEngine wraps an already loaded engine.
func NewONNXStrategyWithEngine(engine onnx.Engine, config Config, charset *Charset) (*ONNXStrategy, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if charset == nil {
		return nil, errors.New("charset is nil")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.InputName == "" {
		config.InputName = "input"
	}
	return &ONNXStrategy{
		config: config,
		engine: engine,
		decoder: Decoder{
			Charset:   charset,
			Mode:      config.Decoding,
			StopIndex: config.StopIndex,
			Offset:    config.Offset,
		},
	}, nil
}

// InputShape returns the fixed [1,3,H,W] input shape.
func (s *ONNXStrategy) InputShape() []int64 {
	return []int64{1, 3, int64(s.config.Height), int64(s.config.Width)}
}

// Recognize implements Strategy.
func (s *ONNXStrategy) Recognize(ctx context.Context, crop image.Image) (string, error) {
	d, err := s.RecognizeDetailed(ctx, crop)
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

// RecognizeDetailed returns the decoded text with indices and confidence.
func (s *ONNXStrategy) RecognizeDetailed(ctx context.Context, crop image.Image) (Decoded, error) {
	resized, err := ResizeForRecognition(crop, s.config.Width, s.config.Height, s.config.KeepAspect)
	if err != nil {
		return Decoded{}, fmt.Errorf("resize: %w", err)
	}
	input, err := NormalizeForRecognition(resized)
	if err != nil {
		return Decoded{}, fmt.Errorf("normalize: %w", err)
	}
	defer mempool.PutFloat32(input.Data)

	outputs, err := s.engine.Run(ctx, map[string]onnx.Tensor{s.config.InputName: input})
	if err != nil {
		return Decoded{}, fmt.Errorf("inference: %w", err)
	}
	logits, err := pickOutput(outputs)
	if err != nil {
		return Decoded{}, err
	}

	d, err := s.decoder.Decode(logits)
	if err != nil {
		return Decoded{}, fmt.Errorf("decode: %w", err)
	}
	d.Text = PostProcessText(d.Text, s.config.Clean)
	slog.Debug("region recognized", "width", s.config.Width, "chars", len(d.Indices), "confidence", d.Confidence)
	return d, nil
}

func pickOutput(outputs map[string]onnx.Tensor) (onnx.Tensor, error) {
	if len(outputs) == 0 {
		return onnx.Tensor{}, errors.New("recognizer produced no outputs")
	}
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return outputs[names[0]], nil
}

// Close releases the engine.
func (s *ONNXStrategy) Close() error {
	return s.engine.Close()
}
