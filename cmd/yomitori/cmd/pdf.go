package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/pdf"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
)

// pdfCmd represents the pdf command.
var pdfCmd = &cobra.Command{
	Use:   "pdf <file.pdf>",
	Short: "Recognize the page images of a scanned PDF",
	Long: `Extract the embedded page images of a scanned PDF and recognize them in
page order. Pages are separated by a form feed in text output.

Examples:
  yomitori pdf book.pdf
  yomitori pdf book.pdf --pages 1-5,8 --format json
  yomitori pdf locked.pdf --password secret --output book.txt`,
	Args: cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindPipelineFlags(cmd)
		bindFlag(cmd, "output.file", "output")
	},
	RunE: runPDF,
}

func runPDF(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	pages, _ := cmd.Flags().GetString("pages")
	password, _ := cmd.Flags().GetString("password")
	format, _ := cmd.Flags().GetString("format")
	if format != outputFormatText && format != outputFormatJSON {
		return fmt.Errorf("invalid output format: %s (must be one of: text, json)", format)
	}

	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	n, err := pdf.PageCount(args[0], password)
	if err != nil {
		if pdf.IsPasswordError(err) {
			return fmt.Errorf("%s is encrypted, pass --password: %w", args[0], err)
		}
		return err
	}

	p, err := buildPipeline(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	quiet, _ := cmd.Flags().GetBool("quiet")
	var sink pipeline.ProgressSink
	if !quiet {
		sink = pageProgress(cmd, n)
	}
	doc, runErr := pdf.NewProcessor(p).ProcessFile(ctx, args[0], pdf.Options{PageRange: pages, Password: password}, sink)
	if doc == nil {
		return runErr
	}

	var out string
	if format == outputFormatJSON {
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		out = string(b) + "\n"
	} else {
		out = doc.Text
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	} else if _, err := fmt.Fprint(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	return runErr
}

// pageProgress prints one line per page image as its text is assembled.
func pageProgress(cmd *cobra.Command, pages int) pipeline.ProgressSink {
	printer := newProgressPrinter(cmd.ErrOrStderr(), false)
	return pipeline.ProgressFunc(func(p pipeline.Progress) {
		if p.Stage == pipeline.StageGeneratingOutput {
			_, _ = printer.dim.Fprintf(printer.w, "%s done (%d page(s) in document)\n", p.ImageID, pages)
		}
	})
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	addPipelineFlags(pdfCmd)

	f := pdfCmd.Flags()
	f.String("pages", "", "page range, e.g. 1-3,7 (default all pages)")
	f.String("password", "", "PDF user or owner password")
	f.StringP("format", "f", outputFormatText, "output format (text, json)")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.BoolP("quiet", "q", false, "suppress progress output")
}
