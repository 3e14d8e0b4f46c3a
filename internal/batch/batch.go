// Package batch runs the OCR pipeline over files on disk and exports the
// recognized text next to them.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/utils"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// Config holds all configuration for batch processing.
type Config struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// WriteText saves <name>_ocr.txt for every processed file, in
	// OutputDir when set.
	WriteText  bool
	OutputDir  string
	OverlayDir string

	// ContinueOnError keeps the exit status clean when some files fail.
	ContinueOnError bool
}

// Result holds the result of batch processing.
type Result struct {
	Files    []string
	Batch    *pipeline.BatchResult
	Exported []string
	Duration time.Duration
}

// Run discovers the images named by args and processes them one at a time.
// Failing files are reported in the result; with ContinueOnError unset an
// error is also returned when any file failed.
func Run(ctx context.Context, p *pipeline.Pipeline, args []string, cfg Config, sink pipeline.ProgressSink) (*Result, error) {
	files, err := DiscoverImageFiles(args, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	return RunFiles(ctx, p, files, cfg, sink)
}

// RunFiles processes files in order without discovery.
func RunFiles(ctx context.Context, p *pipeline.Pipeline, files []string, cfg Config, sink pipeline.ProgressSink) (*Result, error) {
	start := time.Now()
	res := &Result{Files: files}

	items := make([]pipeline.BatchItem, len(files))
	for i, path := range files {
		items[i] = pipeline.BatchItem{
			ID:   fmt.Sprintf("%d", i+1),
			Name: path,
			Load: func() (image.Image, error) {
				img, _, err := utils.LoadImage(path)
				if err != nil {
					return nil, err
				}
				if err := utils.ValidateImage(img); err != nil {
					return nil, err
				}
				return img, nil
			},
			// Outputs are written before the next file is decoded.
			Done: func(img image.Image, ir *pipeline.ImageResult) {
				if out, ok := exportItem(path, img, ir, cfg); ok {
					res.Exported = append(res.Exported, out)
				}
			},
		}
	}

	res.Batch = p.ProcessBatch(ctx, items, sink)
	res.Duration = time.Since(start)

	if res.Batch.Cancelled {
		return res, ctx.Err()
	}
	if failed := res.Batch.Failed(); failed > 0 && !cfg.ContinueOnError {
		return res, fmt.Errorf("%d of %d files failed", failed, len(res.Batch.Items))
	}
	return res, nil
}

// exportItem writes the text and overlay outputs for one file. It reports
// the text path when one was written.
func exportItem(path string, img image.Image, res *pipeline.ImageResult, cfg Config) (string, bool) {
	if cfg.OverlayDir != "" {
		if err := WriteOverlay(OverlayOutputPath(path, cfg.OverlayDir), img, res); err != nil {
			slog.Error("Failed to write overlay", "file", path, "error", err)
		}
	}
	if !cfg.WriteText {
		return "", false
	}
	out := TextOutputPath(path, cfg.OutputDir)
	if err := WriteText(out, res); err != nil {
		slog.Error("Failed to export text", "file", path, "error", err)
		return "", false
	}
	return out, true
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(quiet bool) {
	if quiet {
		return
	}
	n := len(r.Batch.Items)
	_, _ = fmt.Fprintf(os.Stdout, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(os.Stdout, "  Total images: %d\n", len(r.Files))
	_, _ = fmt.Fprintf(os.Stdout, "  Processed: %d\n", r.Batch.Succeeded())
	_, _ = fmt.Fprintf(os.Stdout, "  Failed: %d\n", r.Batch.Failed())
	if r.Batch.Skipped > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "  Skipped: %d\n", r.Batch.Skipped)
	}
	_, _ = fmt.Fprintf(os.Stdout, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if n > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "  Avg per image: %v\n", (r.Duration / time.Duration(n)).Round(time.Millisecond))
	}
}
