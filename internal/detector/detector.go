package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// ErrInference marks a failure of the inference engine itself.
var ErrInference = errors.New("layout inference failed")

// Detector runs the layout model and decodes its output.
type Detector struct {
	config Config
	engine onnx.Engine
	mu     sync.RWMutex
}

// NewDetector loads the layout model from config.ModelPath.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	slog.Debug("creating layout detector", "model_path", config.ModelPath, "input_size", config.InputSize)

	session, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   config.ModelPath,
		NumThreads:  config.NumThreads,
		LibraryPath: config.LibraryPath,
		GPU:         config.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load layout model: %w", err)
	}
	return &Detector{config: withOutputOrder(config, session), engine: session}, nil
}

// NewWithEngine wraps an already loaded engine.
func NewWithEngine(engine onnx.Engine, config Config) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Detector{config: withOutputOrder(config, engine), engine: engine}, nil
}

// outputNamer is implemented by engines that know their model outputs.
type outputNamer interface {
	OutputNames() []string
}

func withOutputOrder(config Config, engine onnx.Engine) Config {
	if len(config.Decode.OutputOrder) > 0 {
		return config
	}
	if n, ok := engine.(outputNamer); ok {
		config.Decode.OutputOrder = n.OutputNames()
	}
	return config
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Detect finds text regions in img. progress, if non-nil, receives the
// fraction of this stage that is done.
//
// A decode failure yields an empty slice and an error wrapping
// ErrMalformedOutput; an engine failure wraps ErrInference.
func (d *Detector) Detect(ctx context.Context, img image.Image, progress func(float64)) ([]TextRegion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.engine == nil {
		return nil, fmt.Errorf("%w: detector is closed", ErrInference)
	}
	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}

	start := time.Now()
	report(0.1)
	pre, err := Preprocess(img, d.config.InputSize)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	defer pre.Release()

	report(0.5)
	outputs, err := d.engine.Run(ctx, map[string]onnx.Tensor{d.config.InputName: pre.Tensor})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	report(0.8)
	regions, err := Decode(outputs, pre.Metadata, d.config.Decode)
	report(1.0)

	slog.Debug("layout detection finished",
		"regions", len(regions),
		"width", pre.Metadata.OriginalWidth,
		"height", pre.Metadata.OriginalHeight,
		"duration_ms", time.Since(start).Milliseconds(),
		"decode_error", err != nil)
	return regions, err
}

// Close releases the engine.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	err := d.engine.Close()
	d.engine = nil
	return err
}
