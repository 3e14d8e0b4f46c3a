// Package detector turns raw layout-detector output into deduplicated text
// regions in original image coordinates.
package detector

import (
	"fmt"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// TextRegion is a detected but not yet recognized text box.
type TextRegion struct {
	geometry.Box
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	// CharCountCategory is the predicted length bucket used to select a
	// recognizer. Nil when the detector gives no hint.
	CharCountCategory *int `json:"char_count_category,omitempty"`
}

func (r TextRegion) String() string {
	return fmt.Sprintf("region(%d,%d %dx%d conf=%.3f class=%d)",
		r.X, r.Y, r.Width, r.Height, r.Confidence, r.ClassID)
}

// PreprocessMetadata records the letterbox applied to an image so the
// decoder can undo it.
type PreprocessMetadata struct {
	geometry.Letterbox
}

// NewPreprocessMetadata returns metadata for an image of the given size.
func NewPreprocessMetadata(width, height, inputSize int) PreprocessMetadata {
	return PreprocessMetadata{Letterbox: geometry.NewLetterbox(width, height, inputSize)}
}
