package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ToJSONImage serializes a single ImageResult to pretty JSON.
func ToJSONImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONImages serializes multiple results to pretty JSON.
func ToJSONImages(results []*ImageResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainTextImage returns the full text in reading order.
func ToPlainTextImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	return res.FullText, nil
}

// ToCSVImage exports one row per block in reading order.
func ToCSVImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"reading_order", "x", "y", "width", "height", "confidence", "class_id", "text"})
	for _, b := range res.Blocks {
		_ = w.Write([]string{
			strconv.Itoa(b.ReadingOrder),
			strconv.Itoa(b.X),
			strconv.Itoa(b.Y),
			strconv.Itoa(b.Width),
			strconv.Itoa(b.Height),
			fmt.Sprintf("%.3f", b.Confidence),
			strconv.Itoa(b.ClassID),
			b.Text,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Format renders res as "json", "text" or "csv".
func Format(res *ImageResult, format string) (string, error) {
	switch format {
	case "", "json":
		return ToJSONImage(res)
	case "text", "txt":
		return ToPlainTextImage(res)
	case "csv":
		return ToCSVImage(res)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// ValidateImageResult checks that blocks lie inside the image and that
// reading orders run 1..N.
func ValidateImageResult(res *ImageResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for i, b := range res.Blocks {
		if b.X < 0 || b.Y < 0 || b.MaxX() > res.Width || b.MaxY() > res.Height {
			return fmt.Errorf("block %d lies outside the image", i)
		}
		if b.Confidence < 0 || b.Confidence > 1 {
			return fmt.Errorf("block %d confidence out of range", i)
		}
		if b.ReadingOrder != i+1 {
			return fmt.Errorf("block %d has reading order %d", i, b.ReadingOrder)
		}
	}
	return nil
}
