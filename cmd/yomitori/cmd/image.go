package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/batch"
	"github.com/MeKo-Tech/yomitori/internal/config"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
)

var validOutputFormats = []string{outputFormatText, outputFormatJSON, outputFormatCSV}

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image <file>...",
	Short: "Recognize text in one or more images",
	Long: `Recognize the text of the given image files in reading order.

Supported formats: JPEG, PNG, BMP, GIF, TIFF, WebP

Examples:
  yomitori image page.jpg
  yomitori image page.png --format json --output page.json
  yomitori image p1.png p2.png --direction vertical --export`,
	Args: cobra.MinimumNArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindPipelineFlags(cmd)
		bindOutputFlags(cmd)
	},
	RunE: runImage,
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := checkOutputFormat(cfg.Output.Format); err != nil {
		return err
	}
	overlayDir, _ := cmd.Flags().GetString("overlay-dir")
	export, _ := cmd.Flags().GetBool("export")
	quiet, _ := cmd.Flags().GetBool("quiet")

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
	}

	progress := newProgressPrinter(cmd.ErrOrStderr(), quiet || len(args) == 1)
	p, err := buildPipeline(cfg, progress)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	res, runErr := batch.RunFiles(ctx, p, args, batch.Config{
		WriteText:       export,
		OutputDir:       cfg.Batch.OutputDir,
		OverlayDir:      overlayDir,
		ContinueOnError: len(args) > 1 && cfg.Batch.ContinueOnError,
	}, nil)
	if res == nil {
		return runErr
	}
	if err := writeResults(cmd, cfg, res); err != nil {
		return err
	}
	return runErr
}

// writeResults prints or saves the formatted results.
func writeResults(cmd *cobra.Command, cfg *config.Config, res *batch.Result) error {
	out, err := res.FormatResults(cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func checkOutputFormat(format string) error {
	if !slices.Contains(validOutputFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: text, json, csv)", format)
	}
	return nil
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, csv)")
	cmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
}

func bindOutputFlags(cmd *cobra.Command) {
	bindFlag(cmd, "output.format", "format")
	bindFlag(cmd, "output.file", "output")
}

// errNoInput is returned when a command gets nothing to process.
var errNoInput = errors.New("no input files provided")

func init() {
	rootCmd.AddCommand(imageCmd)
	addPipelineFlags(imageCmd)
	addOutputFlags(imageCmd)
	imageCmd.Flags().String("overlay-dir", "", "write region overlay PNGs to this directory")
	imageCmd.Flags().Bool("export", false, "write <name>_ocr.txt next to each image (or in batch.output_dir)")
}
