// Package pipeline sequences layout detection, per-region recognition and
// reading order reconstruction for one image at a time.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/readingorder"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

// Recognition engines.
const (
	EngineONNX      = "onnx"
	EngineTesseract = "tesseract"
)

// RecognitionConfig selects and configures recognition strategies.
type RecognitionConfig struct {
	Engine string // EngineONNX (default) or EngineTesseract
	// Cascade loads the short, medium and long models and picks one per
	// region. Without it only SingleModelPath is used.
	Cascade            bool
	CharsetPath        string
	ShortModelPath     string
	MediumModelPath    string
	LongModelPath      string
	SingleModelPath    string
	Height             int
	NumThreads         int
	LibraryPath        string
	GPU                onnx.GPUConfig
	TesseractLanguages []string
	Clean              recognizer.CleanOptions
	Crop               recognizer.CropOptions
}

// ReadingOrderConfig is the string form of readingorder.Options.
type ReadingOrderConfig struct {
	Direction       string  // auto, vertical, horizontal
	ColumnDirection string  // auto, right-to-left, left-to-right
	GroupThreshold  float64 // 0 for adaptive
	MinConfidence   float64
}

// Options parses the configuration.
func (c ReadingOrderConfig) Options() (readingorder.Options, error) {
	dir, err := readingorder.ParseDirection(c.Direction)
	if err != nil {
		return readingorder.Options{}, err
	}
	col, err := readingorder.ParseColumnDirection(c.ColumnDirection)
	if err != nil {
		return readingorder.Options{}, err
	}
	if c.GroupThreshold < 0 {
		return readingorder.Options{}, fmt.Errorf("group threshold must be non-negative, got %f", c.GroupThreshold)
	}
	opts := readingorder.Options{Direction: dir, ColumnDirection: col}
	if c.GroupThreshold > 0 {
		th := c.GroupThreshold
		opts.Threshold = &th
	}
	minConf := c.MinConfidence
	opts.MinConfidence = &minConf
	return opts, nil
}

// Config holds configuration for the OCR pipeline and its components.
type Config struct {
	ModelsDir    string
	Detector     detector.Config
	Recognition  RecognitionConfig
	ReadingOrder ReadingOrderConfig
	// BatchProgress, if set, observes ProcessBatch.
	BatchProgress ProgressCallback
}

// DefaultConfig returns a cascade ONNX pipeline reading models from the
// default models directory.
func DefaultConfig() Config {
	cfg := Config{
		Detector: detector.DefaultConfig(),
		Recognition: RecognitionConfig{
			Engine:  EngineONNX,
			Cascade: true,
			Height:  16,
			GPU:     onnx.DefaultGPUConfig(),
			Clean:   recognizer.DefaultCleanOptions(),
			Crop:    recognizer.DefaultCropOptions(),
		},
		ReadingOrder: ReadingOrderConfig{
			Direction:       "auto",
			ColumnDirection: "auto",
			MinConfidence:   readingorder.DefaultMinConfidence,
		},
	}
	cfg.UpdateModelPaths(models.GetModelsDir(""))
	return cfg
}

// UpdateModelPaths points every model path at dir.
func (c *Config) UpdateModelPaths(dir string) {
	c.ModelsDir = dir
	c.Detector.UpdateModelPath(dir)
	c.Recognition.CharsetPath = models.CharsetPath(dir)
	c.Recognition.ShortModelPath = models.RecognitionModelPath(dir, models.Recognition30)
	c.Recognition.MediumModelPath = models.RecognitionModelPath(dir, models.Recognition50)
	c.Recognition.LongModelPath = models.RecognitionModelPath(dir, models.Recognition100)
	c.Recognition.SingleModelPath = c.Recognition.LongModelPath
}

// Validate checks the configuration without touching the filesystem.
func (c Config) Validate() error {
	var errs []error
	if err := c.Detector.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	if c.Detector.ModelPath == "" {
		errs = append(errs, errors.New("detector model path is empty"))
	}
	switch strings.ToLower(c.Recognition.Engine) {
	case "", EngineONNX:
		if c.Recognition.Height <= 0 {
			errs = append(errs, errors.New("recognizer image height must be > 0"))
		}
		if c.Recognition.CharsetPath == "" {
			errs = append(errs, errors.New("charset path is empty"))
		}
		if c.Recognition.Cascade {
			if c.Recognition.ShortModelPath == "" || c.Recognition.MediumModelPath == "" || c.Recognition.LongModelPath == "" {
				errs = append(errs, errors.New("cascade needs short, medium and long model paths"))
			}
		} else if c.Recognition.SingleModelPath == "" {
			errs = append(errs, errors.New("recognizer model path is empty"))
		}
	case EngineTesseract:
	default:
		errs = append(errs, fmt.Errorf("unknown recognition engine %q", c.Recognition.Engine))
	}
	if _, err := c.ReadingOrder.Options(); err != nil {
		errs = append(errs, fmt.Errorf("reading order: %w", err))
	}
	return errors.Join(errs...)
}

// Pipeline wires together the detector, the recognition dispatcher and
// the reading order reconstructor. A Pipeline processes one image at a
// time; it is not safe for concurrent use.
type Pipeline struct {
	cfg        Config
	Detector   *detector.Detector
	Dispatcher *recognizer.Dispatcher
	order      readingorder.Options
}

// NewPipeline assembles a pipeline from ready components. It fails with
// an initialization error if any component is missing.
func NewPipeline(det *detector.Detector, disp *recognizer.Dispatcher, cfg Config) (*Pipeline, error) {
	if det == nil {
		return nil, newError(KindInitialization, StageInitialization, "", errors.New("detector is not ready"))
	}
	if disp == nil {
		return nil, newError(KindInitialization, StageInitialization, "", errors.New("recognition dispatcher is not ready"))
	}
	order, err := cfg.ReadingOrder.Options()
	if err != nil {
		return nil, newError(KindInitialization, StageInitialization, "", err)
	}
	return &Pipeline{cfg: cfg, Detector: det, Dispatcher: disp, order: order}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	info := map[string]interface{}{
		"models_dir":         p.cfg.ModelsDir,
		"recognition_engine": p.cfg.Recognition.Engine,
		"cascade":            p.Dispatcher != nil && p.Dispatcher.Cascade(),
		"reading_order": map[string]interface{}{
			"direction":        p.order.Direction.String(),
			"column_direction": p.order.ColumnDirection.String(),
			"group_threshold":  p.cfg.ReadingOrder.GroupThreshold,
			"min_confidence":   p.cfg.ReadingOrder.MinConfidence,
		},
	}
	if p.Detector != nil {
		dc := p.Detector.Config()
		info["detector"] = map[string]interface{}{
			"model_path":      dc.ModelPath,
			"input_size":      dc.InputSize,
			"score_threshold": dc.Decode.ScoreThreshold,
			"nms_threshold":   dc.Decode.NMSThreshold,
		}
	}
	return info
}

// Close releases all engines.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Dispatcher != nil {
		errs = append(errs, p.Dispatcher.Close())
		p.Dispatcher = nil
	}
	if p.Detector != nil {
		errs = append(errs, p.Detector.Close())
		p.Detector = nil
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("pipeline close", "error", err)
		return err
	}
	return nil
}
