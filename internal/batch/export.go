package batch

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/utils"
)

// TextOutputPath names the text export for input: name.ext becomes
// name_ocr.txt, next to the input or in outDir when set.
func TextOutputPath(input, outDir string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + "_ocr.txt"
	if outDir == "" {
		return filepath.Join(filepath.Dir(input), name)
	}
	return filepath.Join(outDir, name)
}

// OverlayOutputPath names the overlay image for input inside dir.
func OverlayOutputPath(input, dir string) string {
	base := filepath.Base(input)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
}

// WriteText writes the full text of res to path.
func WriteText(path string, res *pipeline.ImageResult) error {
	if res == nil {
		return fmt.Errorf("no result for %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(res.FullText), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteOverlay renders the blocks of res over img, numbered in reading
// order, and saves the PNG to path.
func WriteOverlay(path string, img image.Image, res *pipeline.ImageResult) error {
	boxes := make([]utils.OverlayBox, len(res.Blocks))
	for i, b := range res.Blocks {
		boxes[i] = utils.OverlayBox{Box: b.Box, Label: b.ReadingOrder}
	}
	ov := utils.RenderOverlay(img, boxes, utils.DefaultOverlayColor)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // G304: path derives from the overlay-dir flag
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	if err := png.Encode(f, ov); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode overlay: %w", err)
	}
	return f.Close()
}
