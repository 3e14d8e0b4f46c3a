package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "yomitori"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "YOMITORI"

	// DotEnvFile is loaded from the working directory before the environment is read.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v. Tests use a fresh instance so
// state does not leak between them.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.prepare()
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) prepare() {
	loadDotEnv()
	l.setupEnvironmentVariables()
	l.setDefaults()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv() {
	if _, err := os.Stat(DotEnvFile); err != nil {
		return
	}
	if err := godotenv.Load(DotEnvFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// pipeline.detector.score_threshold -> YOMITORI_PIPELINE_DETECTOR_SCORE_THRESHOLD
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("pipeline.library_path", d.Pipeline.LibraryPath)

	l.v.SetDefault("pipeline.detector.model_path", d.Pipeline.Detector.ModelPath)
	l.v.SetDefault("pipeline.detector.input_size", d.Pipeline.Detector.InputSize)
	l.v.SetDefault("pipeline.detector.score_threshold", d.Pipeline.Detector.ScoreThreshold)
	l.v.SetDefault("pipeline.detector.expand_ratio", d.Pipeline.Detector.ExpandRatio)
	l.v.SetDefault("pipeline.detector.min_size", d.Pipeline.Detector.MinSize)
	l.v.SetDefault("pipeline.detector.use_nms", d.Pipeline.Detector.UseNMS)
	l.v.SetDefault("pipeline.detector.nms_threshold", d.Pipeline.Detector.NMSThreshold)
	l.v.SetDefault("pipeline.detector.num_threads", d.Pipeline.Detector.NumThreads)

	l.v.SetDefault("pipeline.recognizer.engine", d.Pipeline.Recognizer.Engine)
	l.v.SetDefault("pipeline.recognizer.cascade", d.Pipeline.Recognizer.Cascade)
	l.v.SetDefault("pipeline.recognizer.charset_path", d.Pipeline.Recognizer.CharsetPath)
	l.v.SetDefault("pipeline.recognizer.short_model_path", d.Pipeline.Recognizer.ShortModelPath)
	l.v.SetDefault("pipeline.recognizer.medium_model_path", d.Pipeline.Recognizer.MediumModelPath)
	l.v.SetDefault("pipeline.recognizer.long_model_path", d.Pipeline.Recognizer.LongModelPath)
	l.v.SetDefault("pipeline.recognizer.image_height", d.Pipeline.Recognizer.ImageHeight)
	l.v.SetDefault("pipeline.recognizer.num_threads", d.Pipeline.Recognizer.NumThreads)
	l.v.SetDefault("pipeline.recognizer.normalize_form", d.Pipeline.Recognizer.NormalizeForm)
	l.v.SetDefault("pipeline.recognizer.rotate_vertical", d.Pipeline.Recognizer.RotateVertical)
	l.v.SetDefault("pipeline.recognizer.tesseract_languages", d.Pipeline.Recognizer.TesseractLanguages)

	l.v.SetDefault("pipeline.reading_order.direction", d.Pipeline.ReadingOrder.Direction)
	l.v.SetDefault("pipeline.reading_order.column_direction", d.Pipeline.ReadingOrder.ColumnDirection)
	l.v.SetDefault("pipeline.reading_order.group_threshold", d.Pipeline.ReadingOrder.GroupThreshold)
	l.v.SetDefault("pipeline.reading_order.min_confidence", d.Pipeline.ReadingOrder.MinConfidence)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day_mb", d.Server.RateLimit.MaxDataPerDayMB)

	l.v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)

	l.v.SetDefault("history.backend", d.History.Backend)
	l.v.SetDefault("history.redis_url", d.History.RedisURL)
	l.v.SetDefault("history.redis_key", d.History.RedisKey)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)
}

// GenerateDefaultConfigFile writes the default configuration as YAML. It
// refuses to overwrite an existing file unless force is set.
func GenerateDefaultConfigFile(filename string, force bool) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if !force {
		if _, err := os.Stat(filename); err == nil {
			return fmt.Errorf("config file already exists: %s", filename)
		}
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// DefaultYAML renders DefaultConfig as YAML.
func DefaultYAML() ([]byte, error) {
	return ToYAML(DefaultConfig())
}

// ToYAML renders cfg as YAML.
func ToYAML(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "yomitori"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "yomitori"))
	}

	paths = append(paths, "/etc/yomitori")
	return paths
}
