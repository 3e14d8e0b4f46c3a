package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/yomitori/internal/config"
	"github.com/MeKo-Tech/yomitori/internal/history"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
)

// addPipelineFlags registers the detector, recognizer and reading order
// flags shared by the processing commands.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("det-model", "", "override layout detector model path")
	f.Float64("score-threshold", 0.3, "minimum detector confidence (0.0-1.0)")
	f.Bool("nms", false, "apply non-maximum suppression to detected regions")
	f.Float64("nms-threshold", 0.5, "IoU threshold for NMS")
	f.Int("threads", 0, "inference threads per engine (0 = runtime default)")

	f.String("engine", pipeline.EngineONNX, "recognition engine (onnx, tesseract)")
	f.Bool("cascade", true, "pick a recognizer by predicted line length")
	f.String("charset", "", "override recognizer charset path")
	f.String("rec-model", "", "override the long-line recognizer model path")

	f.String("direction", "auto", "reading direction (auto, vertical, horizontal)")
	f.String("column-direction", "auto", "column order for vertical text (auto, right-to-left, left-to-right)")
	f.Float64("group-threshold", 0, "line/column grouping distance in pixels (0 = adaptive)")

	f.Bool("gpu", false, "run inference on CUDA")
	f.Int("gpu-device", 0, "CUDA device ID")
}

// bindPipelineFlags binds the shared flags for the command that is about
// to run. Binding in PreRun keeps sibling commands from overwriting each
// other's bindings on the global viper.
func bindPipelineFlags(cmd *cobra.Command) {
	bind := map[string]string{
		"pipeline.detector.model_path":            "det-model",
		"pipeline.detector.score_threshold":       "score-threshold",
		"pipeline.detector.use_nms":               "nms",
		"pipeline.detector.nms_threshold":         "nms-threshold",
		"pipeline.detector.num_threads":           "threads",
		"pipeline.recognizer.num_threads":         "threads",
		"pipeline.recognizer.engine":              "engine",
		"pipeline.recognizer.cascade":             "cascade",
		"pipeline.recognizer.charset_path":        "charset",
		"pipeline.recognizer.long_model_path":     "rec-model",
		"pipeline.reading_order.direction":        "direction",
		"pipeline.reading_order.column_direction": "column-direction",
		"pipeline.reading_order.group_threshold":  "group-threshold",
		"gpu.enabled":                             "gpu",
		"gpu.device":                              "gpu-device",
	}
	for key, flag := range bind {
		bindFlag(cmd, key, flag)
	}
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = viper.BindPFlag(key, f)
	}
}

// newBuilder returns a pipeline builder for cfg.
func newBuilder(cfg *config.Config, cb pipeline.ProgressCallback) *pipeline.Builder {
	b := pipeline.NewBuilderFromConfig(cfg.ToPipelineConfig())
	if cb != nil {
		b = b.WithProgressCallback(cb)
	}
	return b
}

// buildPipeline validates the models and loads every engine.
func buildPipeline(cfg *config.Config, cb pipeline.ProgressCallback) (*pipeline.Pipeline, error) {
	b := newBuilder(cfg, cb)
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline configuration: %w", err)
	}
	p, err := b.BuildWithProgress(pipeline.LogSink(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR pipeline: %w", err)
	}
	return p, nil
}

// openHistory opens the configured history backend.
func openHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	return history.Open(ctx, cfg.History.Backend, cfg.History.RedisURL, cfg.History.RedisKey)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
