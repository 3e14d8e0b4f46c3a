//go:build !tesseract

package recognizer

// NewTesseractStrategy reports that Tesseract support is not compiled in.
func NewTesseractStrategy(...string) (Strategy, error) {
	return nil, ErrTesseractUnavailable
}
