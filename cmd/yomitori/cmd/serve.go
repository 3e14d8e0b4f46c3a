package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/models"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/server"
	"github.com/MeKo-Tech/yomitori/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP OCR server",
	Long: `Start an HTTP server for OCR processing.

Endpoints:
  GET    /health        health check
  GET    /models        model availability
  POST   /ocr/image     recognize an uploaded image (multipart field "image")
  GET    /history       list recent results
  GET    /history/{id}  fetch one result
  DELETE /history/{id}  delete one result
  DELETE /history       delete all results
  GET    /ws/ocr        WebSocket with progress streaming
  GET    /metrics       Prometheus metrics

Examples:
  yomitori serve
  yomitori serve --host 0.0.0.0 --port 3000
  yomitori serve --history-backend redis --redis-url redis://cache:6379/1`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindPipelineFlags(cmd)
		bindFlag(cmd, "server.host", "host")
		bindFlag(cmd, "server.port", "port")
		bindFlag(cmd, "server.cors_origin", "cors-origin")
		bindFlag(cmd, "server.max_upload_mb", "max-upload-mb")
		bindFlag(cmd, "server.timeout_sec", "timeout")
		bindFlag(cmd, "server.shutdown_timeout", "shutdown-timeout")
		bindFlag(cmd, "server.rate_limit.enabled", "rate-limit")
		bindFlag(cmd, "server.rate_limit.requests_per_minute", "requests-per-minute")
		bindFlag(cmd, "server.rate_limit.requests_per_hour", "requests-per-hour")
		bindFlag(cmd, "history.backend", "history-backend")
		bindFlag(cmd, "history.redis_url", "redis-url")
	},
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	builder := newBuilder(cfg, nil)
	if err := builder.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration: %w", err)
	}
	// The worker loads the models on its own goroutine; the server starts
	// accepting requests immediately and they queue behind initialization.
	worker := pipeline.NewWorker(func(sink pipeline.ProgressSink) (*pipeline.Pipeline, error) {
		return builder.BuildWithProgress(pipeline.MultiSink(sink, pipeline.LogSink(slog.Default())))
	})
	if err := worker.Submit(cmd.Context(), pipeline.InitializeRequest{}); err != nil {
		_ = worker.Close()
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := openHistory(openCtx, cfg)
	openCancel()
	if err != nil {
		_ = worker.Close()
		return fmt.Errorf("history: %w", err)
	}

	sc := cfg.Server
	srvCfg := server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		CORSOrigin:      sc.CORSOrigin,
		MaxUploadMB:     int64(sc.MaxUploadMB),
		TimeoutSec:      sc.TimeoutSec,
		ShutdownTimeout: time.Duration(sc.ShutdownTimeout) * time.Second,
		ModelsDir:       models.GetModelsDir(cfg.ModelsDir),
		Version:         version.Version,
	}
	if sc.RateLimit.Enabled {
		srvCfg.RateLimit = server.RateLimitConfig{
			RequestsPerMinute: sc.RateLimit.RequestsPerMinute,
			RequestsPerHour:   sc.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: sc.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     sc.RateLimit.MaxDataPerDayMB * 1024 * 1024,
		}
	}

	srv, err := server.New(srvCfg, worker, store)
	if err != nil {
		_ = worker.Close()
		_ = store.Close()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("server close", "error", err)
		}
	}()

	slog.Info("starting OCR server",
		"host", sc.Host,
		"port", sc.Port,
		"history", cfg.History.Backend,
		"rate_limit", sc.RateLimit.Enabled,
		"version", version.Version)
	return srv.ListenAndServe(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addPipelineFlags(serveCmd)

	f := serveCmd.Flags()
	f.String("host", "localhost", "address to bind")
	f.IntP("port", "p", 8080, "port to listen on")
	f.String("cors-origin", "*", "Access-Control-Allow-Origin value")
	f.Int("max-upload-mb", 50, "maximum upload size in MB")
	f.Int("timeout", 60, "per-request OCR timeout in seconds")
	f.Int("shutdown-timeout", 10, "graceful shutdown timeout in seconds")
	f.Bool("rate-limit", false, "enable per-client rate limiting")
	f.Int("requests-per-minute", 60, "rate limit per client per minute")
	f.Int("requests-per-hour", 1000, "rate limit per client per hour")
	f.String("history-backend", "memory", "history store (memory, redis)")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL for the redis history backend")
}
