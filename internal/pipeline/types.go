package pipeline

import (
	"time"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// TextBlock is a detected region with its recognized text. ReadingOrder is
// zero until reading order reconstruction has run.
type TextBlock struct {
	detector.TextRegion
	Text         string `json:"text"`
	ReadingOrder int    `json:"reading_order,omitempty"`
}

func (b TextBlock) Geometry() geometry.Box { return b.Box }
func (b TextBlock) Score() float64         { return b.Confidence }
func (b TextBlock) Content() string        { return b.Text }

// WithReadingOrder returns a copy of b stamped with position n.
func (b TextBlock) WithReadingOrder(n int) TextBlock {
	b.ReadingOrder = n
	return b
}

// ImageResult is the per-image OCR output.
type ImageResult struct {
	ID     string      `json:"id,omitempty"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Blocks []TextBlock `json:"text_blocks"`
	// FullText joins the non-empty block texts with newlines in reading order.
	FullText string `json:"txt"`

	// RegionCount is the number of regions the detector produced.
	RegionCount         int `json:"region_count"`
	RecognitionFailures int `json:"recognition_failures"`
	// DecodeError is set when the detector output could not be parsed and
	// the image degraded to zero regions.
	DecodeError string `json:"decode_error,omitempty"`
	Direction   string `json:"direction,omitempty"`

	ProcessingTime   time.Duration `json:"-"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Processing       struct {
		DetectionNs   int64 `json:"detection_ns"`
		RecognitionNs int64 `json:"recognition_ns"`
		OrderingNs    int64 `json:"ordering_ns"`
		TotalNs       int64 `json:"total_ns"`
	} `json:"processing"`
}

// Degraded reports whether the image lost output to a decode or
// recognition failure.
func (r *ImageResult) Degraded() bool {
	return r.DecodeError != "" || r.RecognitionFailures > 0
}
