// Package recognizer turns cropped text regions into strings. It selects
// one of several fixed-capacity recognition strategies per region.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Strategy recognizes the text in a cropped region image.
type Strategy interface {
	Recognize(ctx context.Context, crop image.Image) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, crop image.Image) (string, error)

// Recognize calls f.
func (f StrategyFunc) Recognize(ctx context.Context, crop image.Image) (string, error) {
	return f(ctx, crop)
}

// Kind names a recognition strategy slot.
type Kind int

const (
	KindLong Kind = iota
	KindMedium
	KindShort
	KindSingle
)

func (k Kind) String() string {
	switch k {
	case KindShort:
		return "short"
	case KindMedium:
		return "medium"
	case KindLong:
		return "long"
	case KindSingle:
		return "single"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Character count categories predicted by the layout detector.
const (
	CategoryShort  = 3 // up to 30 characters
	CategoryMedium = 2 // up to 50 characters
)

// ErrNoStrategy is returned when the selected slot has no strategy.
var ErrNoStrategy = errors.New("no recognition strategy configured")

// ErrTesseractUnavailable is returned when the binary was built without
// the tesseract build tag.
var ErrTesseractUnavailable = errors.New("tesseract support not compiled in (build with -tags tesseract)")

// Select maps a predicted category to a strategy slot. Without a cascade
// the single strategy is always used. Unknown or missing categories fall
// back to the long strategy.
func Select(category *int, cascade bool) Kind {
	if !cascade {
		return KindSingle
	}
	if category == nil {
		return KindLong
	}
	switch *category {
	case CategoryShort:
		return KindShort
	case CategoryMedium:
		return KindMedium
	default:
		return KindLong
	}
}
