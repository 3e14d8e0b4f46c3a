package detector

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLetterboxPadsBottomRight(t *testing.T) {
	img := solidImage(64, 32, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	out, meta, err := Letterbox(img, 32)
	require.NoError(t, err)

	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 32, out.Bounds().Dy())
	assert.Equal(t, 64, meta.MaxWH)
	assert.Equal(t, 64, meta.OriginalWidth)
	assert.Equal(t, 32, meta.OriginalHeight)

	top := out.NRGBAAt(16, 2)
	bottom := out.NRGBAAt(16, 29)
	assert.Greater(t, top.R, uint8(200), "image content stays at the top")
	assert.Less(t, bottom.R, uint8(50), "padding is black")
}

func TestPreprocessTensor(t *testing.T) {
	img := solidImage(20, 10, color.NRGBA{R: 124, G: 116, B: 104, A: 255})
	pre, err := Preprocess(img, 16)
	require.NoError(t, err)
	defer pre.Release()

	assert.Equal(t, []int64{1, 3, 16, 16}, pre.Tensor.Shape)
	require.Len(t, pre.Tensor.Data, 3*16*16)

	// Top-left pixel is image content, roughly zero after normalization.
	assert.InDelta(t, 0, pre.Tensor.Data[0], 0.05)
	// Bottom-left pixel is padding: (0 - mean) / std.
	last := 15*16 + 0
	assert.InDelta(t, -123.675/58.395, pre.Tensor.Data[last], 0.05)
	assert.InDelta(t, -103.53/57.375, pre.Tensor.Data[2*256+last], 0.05)
}

func TestPreprocessErrors(t *testing.T) {
	_, err := Preprocess(nil, 16)
	assert.Error(t, err)

	_, err = Preprocess(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 16)
	assert.Error(t, err)

	_, err = Preprocess(solidImage(4, 4, color.White), 0)
	assert.Error(t, err)
}
