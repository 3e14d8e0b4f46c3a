package recognizer

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// CropOptions controls region extraction.
type CropOptions struct {
	// RotateVertical turns crops that are taller than wide by 90 degrees
	// counter-clockwise so vertical lines reach the recognizer horizontally.
	RotateVertical bool
}

// DefaultCropOptions rotates vertical crops.
func DefaultCropOptions() CropOptions {
	return CropOptions{RotateVertical: true}
}

// CropRegion cuts box out of img.
func CropRegion(img image.Image, box geometry.Box, opts CropOptions) (image.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	rect := box.Rect().Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, errors.New("region lies outside the image")
	}
	patch := imaging.Crop(img, rect)
	if opts.RotateVertical && rect.Dy() > rect.Dx() {
		return imaging.Rotate90(patch), nil
	}
	return patch, nil
}
