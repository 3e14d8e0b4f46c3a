package recognizer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/mempool"
)

func whiteImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestResizeForRecognitionKeepAspect(t *testing.T) {
	out, err := ResizeForRecognition(whiteImage(100, 20), 256, 16, true)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(256, 16), out.Bounds().Size())

	// 100x20 scales to 80x16, the rest is black padding.
	assert.Equal(t, uint8(255), out.NRGBAAt(40, 8).R)
	assert.Equal(t, uint8(0), out.NRGBAAt(200, 8).R)
}

func TestResizeForRecognitionCapsWidth(t *testing.T) {
	out, err := ResizeForRecognition(whiteImage(2000, 20), 256, 16, true)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(256, 16), out.Bounds().Size())
	assert.Equal(t, uint8(255), out.NRGBAAt(250, 8).R)
}

func TestResizeForRecognitionStretch(t *testing.T) {
	out, err := ResizeForRecognition(whiteImage(10, 40), 384, 16, false)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(384, 16), out.Bounds().Size())
}

func TestResizeForRecognitionErrors(t *testing.T) {
	_, err := ResizeForRecognition(nil, 256, 16, true)
	assert.Error(t, err)
	_, err = ResizeForRecognition(whiteImage(10, 10), 0, 16, true)
	assert.Error(t, err)
	_, err = ResizeForRecognition(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 256, 16, true)
	assert.Error(t, err)
}

func TestNormalizeForRecognition(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	img.Set(1, 0, color.NRGBA{A: 255})

	ten, err := NormalizeForRecognition(img)
	require.NoError(t, err)
	defer mempool.PutFloat32(ten.Data)

	assert.Equal(t, []int64{1, 3, 1, 2}, ten.Shape)
	assert.InDelta(t, 1.0, ten.Data[0], 1e-6)  // R at (0,0)
	assert.InDelta(t, -1.0, ten.Data[1], 1e-6) // R at (1,0)
	assert.InDelta(t, -1.0, ten.Data[2], 1e-6) // G at (0,0)
	assert.InDelta(t, 1.0, ten.Data[4], 1e-6)  // B at (0,0)

	_, err = NormalizeForRecognition(nil)
	assert.Error(t, err)
}
