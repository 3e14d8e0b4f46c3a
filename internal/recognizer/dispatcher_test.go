package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

type recordingStrategy struct {
	name   string
	sizes  []image.Point
	err    error
	closed int
}

func (r *recordingStrategy) Recognize(_ context.Context, crop image.Image) (string, error) {
	r.sizes = append(r.sizes, crop.Bounds().Size())
	if r.err != nil {
		return "", r.err
	}
	return r.name, nil
}

func (r *recordingStrategy) Close() error {
	r.closed++
	return nil
}

func page() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(5, 5, color.Black)
	return img
}

func regionWithCategory(box geometry.Box, cat *int) detector.TextRegion {
	return detector.TextRegion{Box: box, Confidence: 0.9, CharCountCategory: cat}
}

func TestCascadeRouting(t *testing.T) {
	short := &recordingStrategy{name: "s"}
	medium := &recordingStrategy{name: "m"}
	long := &recordingStrategy{name: "l"}
	d, err := NewCascade(short, medium, long)
	require.NoError(t, err)
	assert.True(t, d.Cascade())

	box := geometry.Box{X: 10, Y: 10, Width: 50, Height: 20}
	tests := []struct {
		cat      *int
		wantText string
		wantKind Kind
	}{
		{intPtr(3), "s", KindShort},
		{intPtr(2), "m", KindMedium},
		{intPtr(1), "l", KindLong},
		{nil, "l", KindLong},
	}
	for _, tt := range tests {
		text, kind, err := d.Recognize(context.Background(), page(), regionWithCategory(box, tt.cat))
		require.NoError(t, err)
		assert.Equal(t, tt.wantText, text)
		assert.Equal(t, tt.wantKind, kind)
	}
	assert.Len(t, long.sizes, 2)
	assert.Equal(t, image.Pt(50, 20), short.sizes[0])
}

func TestSingleAlwaysUsed(t *testing.T) {
	only := &recordingStrategy{name: "u"}
	d, err := NewSingle(only)
	require.NoError(t, err)

	for _, cat := range []*int{intPtr(3), intPtr(2), nil} {
		text, kind, err := d.Recognize(context.Background(), page(),
			regionWithCategory(geometry.Box{X: 0, Y: 0, Width: 40, Height: 10}, cat))
		require.NoError(t, err)
		assert.Equal(t, "u", text)
		assert.Equal(t, KindSingle, kind)
	}
	assert.Len(t, only.sizes, 3)
}

func TestDispatcherStrategyError(t *testing.T) {
	boom := errors.New("boom")
	d, err := NewSingle(&recordingStrategy{err: boom})
	require.NoError(t, err)

	text, kind, err := d.Recognize(context.Background(), page(),
		regionWithCategory(geometry.Box{X: 0, Y: 0, Width: 40, Height: 10}, nil))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, text)
	assert.Equal(t, KindSingle, kind)
}

func TestDispatcherRegionOutsideImage(t *testing.T) {
	d, err := NewSingle(&recordingStrategy{})
	require.NoError(t, err)
	_, _, err = d.Recognize(context.Background(), page(),
		regionWithCategory(geometry.Box{X: 500, Y: 500, Width: 40, Height: 10}, nil))
	assert.Error(t, err)
}

func TestVerticalCropIsRotated(t *testing.T) {
	s := &recordingStrategy{}
	d, err := NewSingle(s)
	require.NoError(t, err)

	box := geometry.Box{X: 10, Y: 10, Width: 12, Height: 80}
	_, _, err = d.Recognize(context.Background(), page(), regionWithCategory(box, nil))
	require.NoError(t, err)

	_, _, err = d.WithCropOptions(CropOptions{}).Recognize(context.Background(), page(), regionWithCategory(box, nil))
	require.NoError(t, err)

	require.Len(t, s.sizes, 2)
	assert.Equal(t, image.Pt(80, 12), s.sizes[0])
	assert.Equal(t, image.Pt(12, 80), s.sizes[1])
}

func TestConstructorsRejectMissingStrategies(t *testing.T) {
	_, err := NewSingle(nil)
	assert.ErrorIs(t, err, ErrNoStrategy)

	_, err = NewCascade(&recordingStrategy{}, nil, &recordingStrategy{})
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestDispatcherCloseDeduplicates(t *testing.T) {
	shared := &recordingStrategy{}
	other := &recordingStrategy{}
	d, err := NewCascade(shared, shared, other)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.Equal(t, 1, shared.closed)
	assert.Equal(t, 1, other.closed)

	fn, err := NewSingle(StrategyFunc(func(context.Context, image.Image) (string, error) { return "x", nil }))
	require.NoError(t, err)
	assert.NoError(t, fn.Close())
}
