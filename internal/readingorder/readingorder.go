// Package readingorder reconstructs natural reading order from unordered
// text block geometry.
//
// Blocks are first filtered by confidence and text, then the writing
// direction is inferred (vertical when at least half the blocks are taller
// than wide). Vertical pages are grouped into columns by center x and read
// column by column, top to bottom; horizontal pages are grouped into lines
// by center y and read line by line. Grouping is greedy first-fit against
// each group's running mean, so results depend on input order.
package readingorder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// DefaultMinConfidence drops blocks the detector was unsure about.
const DefaultMinConfidence = 0.1

// Block is the geometry and content the reconstructor needs.
type Block interface {
	Geometry() geometry.Box
	Score() float64
	Content() string
}

// Orderable is a Block that can be stamped with its 1-based position.
type Orderable[T any] interface {
	Block
	WithReadingOrder(n int) T
}

// Direction is the writing direction of a page.
type Direction int

const (
	DirectionAuto Direction = iota
	Vertical
	Horizontal
)

func (d Direction) String() string {
	switch d {
	case Vertical:
		return "vertical"
	case Horizontal:
		return "horizontal"
	default:
		return "auto"
	}
}

// ParseDirection accepts "auto", "vertical" and "horizontal".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DirectionAuto, nil
	case "vertical":
		return Vertical, nil
	case "horizontal":
		return Horizontal, nil
	}
	return DirectionAuto, fmt.Errorf("unknown reading direction %q", s)
}

// ColumnDirection is the order in which columns (vertical text) or blocks
// within a line (horizontal text) are read.
type ColumnDirection int

const (
	ColumnAuto ColumnDirection = iota
	RightToLeft
	LeftToRight
)

func (c ColumnDirection) String() string {
	switch c {
	case RightToLeft:
		return "right-to-left"
	case LeftToRight:
		return "left-to-right"
	default:
		return "auto"
	}
}

// ParseColumnDirection accepts "auto", "right-to-left"/"rtl" and
// "left-to-right"/"ltr".
func ParseColumnDirection(s string) (ColumnDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ColumnAuto, nil
	case "right-to-left", "rtl":
		return RightToLeft, nil
	case "left-to-right", "ltr":
		return LeftToRight, nil
	}
	return ColumnAuto, fmt.Errorf("unknown column direction %q", s)
}

// Options override the inferred parameters. Zero values mean "infer".
type Options struct {
	Direction       Direction
	ColumnDirection ColumnDirection
	// Threshold is the grouping distance in pixels. Nil means adaptive.
	Threshold *float64
	// MinConfidence defaults to DefaultMinConfidence when nil.
	MinConfidence *float64
}

// DetectIsVertical reports whether at least half the boxes are taller
// than wide.
func DetectIsVertical(boxes []geometry.Box) bool {
	vertical := 0
	for _, b := range boxes {
		if b.Width < b.Height {
			vertical++
		}
	}
	return vertical*2 >= len(boxes)
}

// CalcThreshold returns max(median*0.3, 1) of block widths when vertical
// or heights when horizontal. The median is the upper middle element.
func CalcThreshold(boxes []geometry.Box, vertical bool) float64 {
	if len(boxes) == 0 {
		return 1
	}
	sizes := make([]int, len(boxes))
	for i, b := range boxes {
		if vertical {
			sizes[i] = b.Width
		} else {
			sizes[i] = b.Height
		}
	}
	sort.Ints(sizes)
	return max(float64(sizes[len(sizes)/2])*0.3, 1)
}

// Plan records the parameters a reconstruction used.
type Plan struct {
	Vertical        bool
	Threshold       float64
	ColumnDirection ColumnDirection
	Groups          int
}

// Reconstruct filters blocks and returns them in reading order, each
// stamped with readingOrder = position + 1.
func Reconstruct[T Orderable[T]](blocks []T, opts Options) []T {
	out, _ := ReconstructWithPlan(blocks, opts)
	return out
}

// ReconstructWithPlan is Reconstruct that also reports the inferred
// parameters.
func ReconstructWithPlan[T Orderable[T]](blocks []T, opts Options) ([]T, Plan) {
	minConf := DefaultMinConfidence
	if opts.MinConfidence != nil {
		minConf = *opts.MinConfidence
	}

	valid := make([]T, 0, len(blocks))
	for _, b := range blocks {
		if b.Score() >= minConf && strings.TrimSpace(b.Content()) != "" {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return []T{}, Plan{}
	}

	boxes := make([]geometry.Box, len(valid))
	for i, b := range valid {
		boxes[i] = b.Geometry()
	}

	var plan Plan
	switch opts.Direction {
	case Vertical:
		plan.Vertical = true
	case Horizontal:
		plan.Vertical = false
	default:
		plan.Vertical = DetectIsVertical(boxes)
	}

	if opts.Threshold != nil {
		plan.Threshold = *opts.Threshold
	} else {
		plan.Threshold = CalcThreshold(boxes, plan.Vertical)
	}

	plan.ColumnDirection = opts.ColumnDirection
	if plan.ColumnDirection == ColumnAuto {
		if plan.Vertical {
			plan.ColumnDirection = RightToLeft
		} else {
			plan.ColumnDirection = LeftToRight
		}
	}

	var order []int
	if plan.Vertical {
		order, plan.Groups = orderVertical(boxes, plan.Threshold, plan.ColumnDirection)
	} else {
		order, plan.Groups = orderHorizontal(boxes, plan.Threshold, plan.ColumnDirection)
	}

	out := make([]T, len(order))
	for pos, idx := range order {
		out[pos] = valid[idx].WithReadingOrder(pos + 1)
	}
	return out, plan
}
