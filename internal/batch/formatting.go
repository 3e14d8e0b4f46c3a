package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FormatResults renders every attempted file as "text", "json" or "csv".
func (r *Result) FormatResults(format string) (string, error) {
	switch format {
	case "json":
		return r.formatJSON()
	case "csv":
		return r.formatCSV()
	case "", "text", "txt":
		return r.formatText(), nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

func (r *Result) formatJSON() (string, error) {
	type image struct {
		File  string      `json:"file"`
		OCR   interface{} `json:"ocr,omitempty"`
		Error string      `json:"error,omitempty"`
	}
	out := struct {
		Images    []image `json:"images"`
		Skipped   int     `json:"skipped,omitempty"`
		Cancelled bool    `json:"cancelled,omitempty"`
	}{Images: make([]image, 0, len(r.Batch.Items)), Skipped: r.Batch.Skipped, Cancelled: r.Batch.Cancelled}

	for _, it := range r.Batch.Items {
		img := image{File: it.Name}
		if it.Err != nil {
			img.Error = it.Err.Error()
		} else {
			img.OCR = it.Result
		}
		out.Images = append(out.Images, img)
	}
	b, err := json.MarshalIndent(out, "", "  ")
	return string(b), err
}

func (r *Result) formatCSV() (string, error) {
	var output strings.Builder
	w := csv.NewWriter(&output)
	_ = w.Write([]string{"file", "reading_order", "x", "y", "width", "height", "confidence", "text"})
	for _, it := range r.Batch.Items {
		if it.Result == nil {
			continue
		}
		for _, b := range it.Result.Blocks {
			_ = w.Write([]string{
				it.Name,
				strconv.Itoa(b.ReadingOrder),
				strconv.Itoa(b.X),
				strconv.Itoa(b.Y),
				strconv.Itoa(b.Width),
				strconv.Itoa(b.Height),
				fmt.Sprintf("%.3f", b.Confidence),
				b.Text,
			})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return output.String(), nil
}

func (r *Result) formatText() string {
	var output strings.Builder
	for i, it := range r.Batch.Items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", it.Name)
		if it.Err != nil {
			fmt.Fprintf(&output, "error: %v\n", it.Err)
			continue
		}
		if it.Result.FullText != "" {
			output.WriteString(it.Result.FullText)
			output.WriteString("\n")
		}
	}
	return output.String()
}
