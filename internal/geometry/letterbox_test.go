package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLetterboxToOriginal(t *testing.T) {
	lb := NewLetterbox(2048, 1024, 1024)
	assert.Equal(t, 2048, lb.MaxWH)
	assert.InDelta(t, 2.0, lb.Scale(), 1e-9)
	assert.InDelta(t, 1000.0, lb.ToOriginal(500), 1e-9)
	assert.InDelta(t, 2048.0, lb.ToOriginal(1024), 1e-9)
}

func TestLetterboxPortrait(t *testing.T) {
	lb := NewLetterbox(600, 1200, 1024)
	assert.Equal(t, 1200, lb.MaxWH)
	// A point on the right edge of the original maps inside the padded square.
	assert.InDelta(t, 600.0, lb.ToOriginal(512), 1e-9)
}

func TestLetterboxZeroInput(t *testing.T) {
	var lb Letterbox
	assert.Zero(t, lb.Scale())
	assert.Zero(t, lb.ToOriginal(10))
}
