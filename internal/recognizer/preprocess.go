package recognizer

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/yomitori/internal/mempool"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// ResizeForRecognition fits img into a width x height canvas. With
// keepAspect the image is scaled to full height, capped at width, and
// padded on the right with black. Otherwise it is stretched.
func ResizeForRecognition(img image.Image, width, height int, keepAspect bool) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("input image is empty")
	}
	if !keepAspect {
		return imaging.Resize(img, width, height, imaging.Lanczos), nil
	}

	newW := int(float64(b.Dx())*float64(height)/float64(b.Dy()) + 0.5)
	newW = min(max(newW, 1), width)
	resized := imaging.Resize(img, newW, height, imaging.Lanczos)
	if newW == width {
		return resized, nil
	}
	canvas := imaging.New(width, height, color.NRGBA{A: 255})
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), nil
}

// NormalizeForRecognition converts img into a [1,3,H,W] tensor scaled to
// [-1,1]. The data buffer comes from mempool; release it with
// mempool.PutFloat32.
func NormalizeForRecognition(img *image.NRGBA) (onnx.Tensor, error) {
	if img == nil {
		return onnx.Tensor{}, errors.New("input image is nil")
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			idx := y*w + x
			for c := range 3 {
				data[c*plane+idx] = float32(row[x*4+c])/127.5 - 1
			}
		}
	}
	t, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return onnx.Tensor{}, err
	}
	return t, nil
}
