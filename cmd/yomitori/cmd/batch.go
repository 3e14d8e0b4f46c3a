package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/batch"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch <file|dir>...",
	Short: "Recognize every image under files and directories",
	Long: `Discover images in the given files and directories and recognize them one
at a time in sorted order. The text of each image is written to
<name>_ocr.txt next to it, or in --output-dir.

Examples:
  yomitori batch scans/
  yomitori batch scans/ --recursive --include "*.jpg" --exclude "*_thumb*"
  yomitori batch a.png b.png --output-dir out/ --format csv --output all.csv`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindPipelineFlags(cmd)
		bindOutputFlags(cmd)
		bindFlag(cmd, "batch.output_dir", "output-dir")
		bindFlag(cmd, "batch.recursive", "recursive")
		bindFlag(cmd, "batch.continue_on_error", "continue-on-error")
	},
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoInput
	}
	cfg := GetConfig()
	if err := checkOutputFormat(cfg.Output.Format); err != nil {
		return err
	}
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	overlayDir, _ := cmd.Flags().GetString("overlay-dir")
	noExport, _ := cmd.Flags().GetBool("no-export")
	quiet, _ := cmd.Flags().GetBool("quiet")
	stats, _ := cmd.Flags().GetBool("stats")

	files, err := batch.DiscoverImageFiles(args, cfg.Batch.Recursive, include, exclude)
	if err != nil {
		return fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return batch.ErrNoImages
	}
	slog.Info("batch discovered images", "count", len(files))

	p, err := buildPipeline(cfg, newProgressPrinter(cmd.ErrOrStderr(), quiet))
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	res, runErr := batch.RunFiles(ctx, p, files, batch.Config{
		WriteText:       !noExport,
		OutputDir:       cfg.Batch.OutputDir,
		OverlayDir:      overlayDir,
		ContinueOnError: cfg.Batch.ContinueOnError,
	}, nil)
	if res == nil {
		return runErr
	}
	// Exported text files are the primary output; only print results when
	// they were asked for.
	if cfg.Output.File != "" || cmd.Flags().Changed("format") {
		if err := writeResults(cmd, cfg, res); err != nil {
			return err
		}
	}
	if stats {
		res.PrintStats(quiet)
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addPipelineFlags(batchCmd)
	addOutputFlags(batchCmd)

	f := batchCmd.Flags()
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "only process files matching these glob patterns")
	f.StringSlice("exclude", nil, "skip files matching these glob patterns")
	f.String("output-dir", "", "directory for exported <name>_ocr.txt files")
	f.String("overlay-dir", "", "write region overlay PNGs to this directory")
	f.Bool("no-export", false, "do not write <name>_ocr.txt files")
	f.Bool("continue-on-error", true, "exit successfully when some files fail")
	f.Bool("stats", true, "print processing statistics")
}
