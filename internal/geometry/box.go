// Package geometry provides the box math shared by the region decoder and
// the reading order reconstructor.
package geometry

import (
	"image"
	"math"
)

// Box is an axis-aligned bounding box in integer pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBox builds a Box from corner coordinates, ordering them if needed.
func NewBox(x1, y1, x2, y2 int) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// MaxX returns the exclusive right edge.
func (b Box) MaxX() int { return b.X + b.Width }

// MaxY returns the exclusive bottom edge.
func (b Box) MaxY() int { return b.Y + b.Height }

// Area returns width*height, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return float64(b.Width) * float64(b.Height)
}

// CenterX returns x + width/2.
func (b Box) CenterX() float64 { return float64(b.X) + float64(b.Width)/2 }

// CenterY returns y + height/2.
func (b Box) CenterY() float64 { return float64(b.Y) + float64(b.Height)/2 }

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.MaxX(), b.MaxY())
}

// Intersection returns the overlapping area of two boxes.
func Intersection(a, b Box) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.MaxX(), b.MaxX())
	y2 := min(a.MaxY(), b.MaxY())
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return float64(x2-x1) * float64(y2-y1)
}

// IoU computes intersection over union. It is 0 for disjoint boxes.
func IoU(a, b Box) float64 {
	inter := Intersection(a, b)
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ClipBox rounds float corner coordinates and clamps them to [0,w]x[0,h].
// The result may have zero or negative size when the input lies outside
// the image; callers filter by size afterwards.
func ClipBox(x1, y1, x2, y2 float64, w, h int) Box {
	cx1 := max(0, int(math.Round(x1)))
	cy1 := max(0, int(math.Round(y1)))
	cx2 := min(w, int(math.Round(x2)))
	cy2 := min(h, int(math.Round(y2)))
	return Box{X: cx1, Y: cy1, Width: cx2 - cx1, Height: cy2 - cy1}
}
