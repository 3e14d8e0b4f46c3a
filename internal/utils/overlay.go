package utils

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// OverlayBox is one region to outline. Label is drawn at the top-left
// corner when non-zero.
type OverlayBox struct {
	Box   geometry.Box
	Label int
}

// DefaultOverlayColor is used for outlines and labels.
var DefaultOverlayColor = color.RGBA{R: 255, A: 255}

// RenderOverlay copies img and outlines every box on the copy.
func RenderOverlay(img image.Image, boxes []OverlayBox, col color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for _, ob := range boxes {
		rect := image.Rect(ob.Box.X, ob.Box.Y, ob.Box.MaxX(), ob.Box.MaxY())
		DrawRect(dst, rect, col, 2)
		if ob.Label > 0 {
			drawLabel(dst, rect.Min, strconv.Itoa(ob.Label), col)
		}
	}
	return dst
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

func drawLabel(dst *image.RGBA, at image.Point, text string, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(at.X+3, at.Y+face.Ascent+2),
	}
	d.DrawString(text)
}
