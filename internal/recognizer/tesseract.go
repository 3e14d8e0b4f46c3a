//go:build tesseract

package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractStrategy recognizes crops with a local Tesseract installation.
// It is a universal strategy with no fixed capacity, used with NewSingle.
type TesseractStrategy struct {
	mu        sync.Mutex
	client    *gosseract.Client
	languages []string
	clean     CleanOptions
}

// NewTesseractStrategy creates a client for the given languages, e.g.
// "jpn", "jpn_vert".
func NewTesseractStrategy(languages ...string) (*TesseractStrategy, error) {
	c := gosseract.NewClient()
	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return &TesseractStrategy{client: c, languages: languages, clean: DefaultCleanOptions()}, nil
}

// Recognize implements Strategy.
func (s *TesseractStrategy) Recognize(ctx context.Context, crop image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return PostProcessText(text, s.clean), nil
}

// Close releases the Tesseract client.
func (s *TesseractStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}
