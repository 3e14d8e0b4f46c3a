package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/history"
	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/readingorder"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	clean := recognizer.DefaultCleanOptions()
	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				InputSize:      det.InputSize,
				ScoreThreshold: det.Decode.ScoreThreshold,
				ExpandRatio:    det.Decode.ExpandRatio,
				MinSize:        det.Decode.MinSize,
				UseNMS:         det.Decode.UseNMS,
				NMSThreshold:   det.Decode.NMSThreshold,
			},
			Recognizer: RecognizerConfig{
				Engine:             pipeline.EngineONNX,
				Cascade:            true,
				ImageHeight:        16,
				NormalizeForm:      clean.NormalizeForm,
				RotateVertical:     recognizer.DefaultCropOptions().RotateVertical,
				TesseractLanguages: []string{"jpn", "jpn_vert"},
			},
			ReadingOrder: ReadingOrderConfig{
				Direction:       readingorder.DirectionAuto.String(),
				ColumnDirection: readingorder.ColumnAuto.String(),
				MinConfidence:   readingorder.DefaultMinConfidence,
			},
		},
		Output: OutputConfig{Format: "text"},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Batch: BatchConfig{
			ContinueOnError: true,
		},
		History: HistoryConfig{
			Backend:  history.BackendMemory,
			RedisURL: "redis://localhost:6379/0",
			RedisKey: "yomitori:history",
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := validateThreshold(c.Pipeline.Detector.ScoreThreshold, "detector.score_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Detector.NMSThreshold, "detector.nms_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.ReadingOrder.MinConfidence, "reading_order.min_confidence"); err != nil {
		return err
	}

	validEngines := []string{pipeline.EngineONNX, pipeline.EngineTesseract}
	if !slices.Contains(validEngines, strings.ToLower(c.Pipeline.Recognizer.Engine)) {
		return fmt.Errorf("invalid recognizer engine: %s (must be one of: %s)", c.Pipeline.Recognizer.Engine, strings.Join(validEngines, ", "))
	}

	if _, err := c.toReadingOrderConfig().Options(); err != nil {
		return fmt.Errorf("invalid reading order: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	validBackends := []string{history.BackendMemory, history.BackendRedis}
	if !slices.Contains(validBackends, strings.ToLower(c.History.Backend)) {
		return fmt.Errorf("invalid history backend: %s (must be one of: %s)", c.History.Backend, strings.Join(validBackends, ", "))
	}

	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}

	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
// Explicit model paths override the ones derived from the models directory.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.UpdateModelPaths(models.GetModelsDir(c.ModelsDir))

	gpu := c.toGPUConfig()
	det := c.Pipeline.Detector
	cfg.Detector.InputSize = det.InputSize
	cfg.Detector.NumThreads = det.NumThreads
	cfg.Detector.LibraryPath = c.Pipeline.LibraryPath
	cfg.Detector.GPU = gpu
	cfg.Detector.Decode.ScoreThreshold = det.ScoreThreshold
	cfg.Detector.Decode.ExpandRatio = det.ExpandRatio
	cfg.Detector.Decode.MinSize = det.MinSize
	cfg.Detector.Decode.UseNMS = det.UseNMS
	cfg.Detector.Decode.NMSThreshold = det.NMSThreshold
	if det.ModelPath != "" {
		cfg.Detector.ModelPath = det.ModelPath
	}

	rec := c.Pipeline.Recognizer
	r := &cfg.Recognition
	r.Engine = strings.ToLower(rec.Engine)
	r.Cascade = rec.Cascade
	r.Height = rec.ImageHeight
	r.NumThreads = rec.NumThreads
	r.LibraryPath = c.Pipeline.LibraryPath
	r.GPU = gpu
	r.TesseractLanguages = rec.TesseractLanguages
	r.Clean.NormalizeForm = rec.NormalizeForm
	r.Crop.RotateVertical = rec.RotateVertical
	if rec.CharsetPath != "" {
		r.CharsetPath = rec.CharsetPath
	}
	if rec.ShortModelPath != "" {
		r.ShortModelPath = rec.ShortModelPath
	}
	if rec.MediumModelPath != "" {
		r.MediumModelPath = rec.MediumModelPath
	}
	if rec.LongModelPath != "" {
		r.LongModelPath = rec.LongModelPath
		r.SingleModelPath = rec.LongModelPath
	}

	cfg.ReadingOrder = c.toReadingOrderConfig()
	return cfg
}

func (c *Config) toReadingOrderConfig() pipeline.ReadingOrderConfig {
	ro := c.Pipeline.ReadingOrder
	return pipeline.ReadingOrderConfig{
		Direction:       ro.Direction,
		ColumnDirection: ro.ColumnDirection,
		GroupThreshold:  ro.GroupThreshold,
		MinConfidence:   ro.MinConfidence,
	}
}

func (c *Config) toGPUConfig() onnx.GPUConfig {
	gpu := onnx.DefaultGPUConfig()
	gpu.UseGPU = c.GPU.Enabled
	gpu.DeviceID = c.GPU.Device
	// Validate has already rejected malformed limits.
	gpu.GPUMemLimit, _ = parseMemoryLimit(c.GPU.MemoryLimit)
	return gpu
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// parseMemoryLimit converts limits such as "512MB" or "1.5GB" to bytes.
// "" and "auto" mean unlimited.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	// Longest suffixes first so "MB" is not read as "B".
	units := []struct {
		suffix string
		scale  float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
