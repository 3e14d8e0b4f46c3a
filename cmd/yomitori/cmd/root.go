package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/yomitori/internal/config"
	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "yomitori",
	Short: "OCR for scanned historical Japanese documents",
	Long: `yomitori extracts ordered text from scanned document images.

Text regions are found with a DEIM layout detector, each region is read by a
PARSeq recognizer sized to the region, and the recognized blocks are put into
natural reading order (vertical right-to-left columns or horizontal lines).

Examples:
  yomitori image page.jpg
  yomitori batch scans/ --recursive --output-dir out/
  yomitori pdf book.pdf --pages 1-10
  yomitori serve --port 8080`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalConfig == nil {
			if err := initConfig(); err != nil {
				return err
			}
		}
		cfg := GetConfig()
		setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.Verbose)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is yomitori.yaml in ., $XDG_CONFIG_HOME/yomitori, ~/.config/yomitori, /etc/yomitori)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("models-dir", "",
		"directory containing ONNX models (also "+models.EnvModelsDir+")")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models-dir"))
}

// initConfig reads the config file and environment.
func initConfig() error {
	configLoader = config.NewLoader()
	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if used := configLoader.GetConfigFileUsed(); used != "" {
		slog.Debug("configuration loaded", "file", used)
	}
	return nil
}

// GetConfig returns the configuration with command flags applied. Flags
// are bound after the first load, so the viper state is unmarshaled again.
func GetConfig() *config.Config {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		slog.Warn("failed to apply command line flags", "error", err)
		return globalConfig
	}
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

func parseLogLevel(level string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a JSON logger on w. Logs go to stderr so command
// output on stdout stays clean.
func setupLogging(w io.Writer, level string, verbose bool) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level, verbose),
	}))
	slog.SetDefault(logger)
}
