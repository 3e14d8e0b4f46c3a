package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// Default decoder parameters.
const (
	DefaultInputSize      = 1024
	DefaultScoreThreshold = 0.3
	DefaultExpandRatio    = 0.02
	DefaultMinSize        = 10
	DefaultNMSThreshold   = 0.5
	DefaultInputName      = "input"
)

// DecodeConfig controls how raw detector output becomes regions.
type DecodeConfig struct {
	ScoreThreshold float64 `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold"`
	// ExpandRatio grows each box up and down by this fraction of its height.
	ExpandRatio  float64 `mapstructure:"expand_ratio" yaml:"expand_ratio" json:"expand_ratio"`
	MinSize      int     `mapstructure:"min_size" yaml:"min_size" json:"min_size"`
	UseNMS       bool    `mapstructure:"use_nms" yaml:"use_nms" json:"use_nms"`
	NMSThreshold float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	// CategoryByClass maps detector class ids to recognizer length
	// categories. Classes not listed get no category.
	CategoryByClass map[int]int `mapstructure:"category_by_class" yaml:"category_by_class,omitempty" json:"category_by_class,omitempty"`
	// OutputOrder lists the model outputs in declaration order. The packed
	// layout reads the first of them. The detector fills it from the engine.
	OutputOrder []string `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultDecodeConfig returns the reference decoder parameters.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		ScoreThreshold: DefaultScoreThreshold,
		ExpandRatio:    DefaultExpandRatio,
		MinSize:        DefaultMinSize,
		UseNMS:         true,
		NMSThreshold:   DefaultNMSThreshold,
	}
}

// Config holds configuration for the layout detector.
type Config struct {
	ModelPath   string         // Path to the ONNX layout model
	InputSize   int            // Square network input side (default: 1024)
	InputName   string         // Model input name (default: "input")
	NumThreads  int            // Intra-op threads, 0 for auto
	LibraryPath string         // Optional onnxruntime shared library path
	GPU         onnx.GPUConfig // GPU acceleration configuration
	Decode      DecodeConfig
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath: models.LayoutModelPath(""),
		InputSize: DefaultInputSize,
		InputName: DefaultInputName,
		GPU:       onnx.DefaultGPUConfig(),
		Decode:    DefaultDecodeConfig(),
	}
}

// UpdateModelPath points ModelPath at modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.LayoutModelPath(modelsDir)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	return c.Decode.Validate()
}

// Validate checks decoder parameters.
func (c DecodeConfig) Validate() error {
	var errs []error
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("score threshold must be in [0,1], got %f", c.ScoreThreshold))
	}
	if c.ExpandRatio < 0 {
		errs = append(errs, fmt.Errorf("expand ratio must be non-negative, got %f", c.ExpandRatio))
	}
	if c.MinSize < 0 {
		errs = append(errs, fmt.Errorf("min size must be non-negative, got %d", c.MinSize))
	}
	if c.UseNMS && (c.NMSThreshold < 0 || c.NMSThreshold > 1) {
		errs = append(errs, fmt.Errorf("NMS threshold must be in [0,1], got %f", c.NMSThreshold))
	}
	return errors.Join(errs...)
}
