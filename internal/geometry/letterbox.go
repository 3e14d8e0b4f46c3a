package geometry

// Letterbox describes the top-left square padding and resize applied to an
// image before it was fed to a fixed-size square network input.
type Letterbox struct {
	OriginalWidth  int
	OriginalHeight int
	// MaxWH is the side of the padded square canvas.
	MaxWH int
	// InputSize is the side of the square network input.
	InputSize int
}

// NewLetterbox returns the letterbox for an image of the given size.
func NewLetterbox(width, height, inputSize int) Letterbox {
	return Letterbox{
		OriginalWidth:  width,
		OriginalHeight: height,
		MaxWH:          max(width, height),
		InputSize:      inputSize,
	}
}

// Scale returns the factor from network input space to original space.
func (l Letterbox) Scale() float64 {
	if l.InputSize <= 0 {
		return 0
	}
	return float64(l.MaxWH) / float64(l.InputSize)
}

// ToOriginal maps a coordinate from network input space back to the
// original image. Padding only extends right and bottom, so the padded
// square and the original image share the same origin.
func (l Letterbox) ToOriginal(v float64) float64 {
	if l.InputSize <= 0 {
		return 0
	}
	return v / float64(l.InputSize) * float64(l.MaxWH)
}
