//nolint:lll
package config

// Config represents the complete configuration for the yomitori OCR application.
// It includes settings for all commands (image, batch, pdf, serve, history) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch" json:"batch"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history" json:"history"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig contains OCR pipeline settings.
type PipelineConfig struct {
	Detector     DetectorConfig     `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer   RecognizerConfig   `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	ReadingOrder ReadingOrderConfig `mapstructure:"reading_order" yaml:"reading_order" json:"reading_order"`

	// Optional onnxruntime shared library path
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
}

// DetectorConfig contains layout detection settings.
type DetectorConfig struct {
	ModelPath      string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	InputSize      int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ScoreThreshold float64 `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold"`
	ExpandRatio    float64 `mapstructure:"expand_ratio" yaml:"expand_ratio" json:"expand_ratio"`
	MinSize        int     `mapstructure:"min_size" yaml:"min_size" json:"min_size"`
	UseNMS         bool    `mapstructure:"use_nms" yaml:"use_nms" json:"use_nms"`
	NMSThreshold   float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads     int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	Engine             string   `mapstructure:"engine" yaml:"engine" json:"engine"`
	Cascade            bool     `mapstructure:"cascade" yaml:"cascade" json:"cascade"`
	CharsetPath        string   `mapstructure:"charset_path" yaml:"charset_path" json:"charset_path"`
	ShortModelPath     string   `mapstructure:"short_model_path" yaml:"short_model_path" json:"short_model_path"`
	MediumModelPath    string   `mapstructure:"medium_model_path" yaml:"medium_model_path" json:"medium_model_path"`
	LongModelPath      string   `mapstructure:"long_model_path" yaml:"long_model_path" json:"long_model_path"`
	ImageHeight        int      `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	NumThreads         int      `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	NormalizeForm      string   `mapstructure:"normalize_form" yaml:"normalize_form" json:"normalize_form"`
	RotateVertical     bool     `mapstructure:"rotate_vertical" yaml:"rotate_vertical" json:"rotate_vertical"`
	TesseractLanguages []string `mapstructure:"tesseract_languages" yaml:"tesseract_languages" json:"tesseract_languages"`
}

// ReadingOrderConfig contains reading order reconstruction settings.
type ReadingOrderConfig struct {
	Direction       string  `mapstructure:"direction" yaml:"direction" json:"direction"`
	ColumnDirection string  `mapstructure:"column_direction" yaml:"column_direction" json:"column_direction"`
	GroupThreshold  float64 `mapstructure:"group_threshold" yaml:"group_threshold" json:"group_threshold"`
	MinConfidence   float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds per-client request rates. A zero limit is off.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	Recursive       bool   `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// HistoryConfig selects where results are remembered.
type HistoryConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend" json:"backend"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	RedisKey string `mapstructure:"redis_key" yaml:"redis_key" json:"redis_key"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
