package detector

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/yomitori/internal/mempool"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
)

// Per-channel normalization on 0-255 values, RGB order.
var (
	channelMean = [3]float32{123.675, 116.28, 103.53}
	channelStd  = [3]float32{58.395, 57.12, 57.375}
)

// Preprocessed is a network-ready input and the metadata needed to map
// detections back. Release returns the tensor buffer to the pool.
type Preprocessed struct {
	Tensor   onnx.Tensor
	Metadata PreprocessMetadata
}

// Release returns the tensor buffer to the pool.
func (p *Preprocessed) Release() {
	mempool.PutFloat32(p.Tensor.Data)
	p.Tensor.Data = nil
}

// Letterbox pads img at the top-left onto a black square of side
// max(width, height) and resizes it to size x size.
func Letterbox(img image.Image, size int) (*image.NRGBA, PreprocessMetadata, error) {
	if img == nil {
		return nil, PreprocessMetadata{}, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, PreprocessMetadata{}, errors.New("input image is empty")
	}
	if size <= 0 {
		return nil, PreprocessMetadata{}, errors.New("input size must be positive")
	}

	meta := NewPreprocessMetadata(b.Dx(), b.Dy(), size)
	canvas := imaging.New(meta.MaxWH, meta.MaxWH, color.NRGBA{A: 255})
	canvas = imaging.Paste(canvas, img, image.Pt(0, 0))
	resized := imaging.Resize(canvas, size, size, imaging.Linear)
	return resized, meta, nil
}

// Preprocess letterboxes img and normalizes it into a [1,3,size,size]
// tensor backed by a pooled buffer.
func Preprocess(img image.Image, size int) (*Preprocessed, error) {
	resized, meta, err := Letterbox(img, size)
	if err != nil {
		return nil, err
	}

	plane := size * size
	data := mempool.GetFloat32(3 * plane)
	pix := resized.Pix
	stride := resized.Stride
	for y := range size {
		row := pix[y*stride : y*stride+size*4]
		for x := range size {
			px := row[x*4 : x*4+3]
			idx := y*size + x
			for c := range 3 {
				data[c*plane+idx] = (float32(px[c]) - channelMean[c]) / channelStd[c]
			}
		}
	}

	tensor, err := onnx.NewImageTensor(data, 3, size, size)
	if err != nil {
		mempool.PutFloat32(data)
		return nil, err
	}
	return &Preprocessed{Tensor: tensor, Metadata: meta}, nil
}
