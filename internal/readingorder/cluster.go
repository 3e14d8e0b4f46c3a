package readingorder

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// group is a column or line under construction. Sums are accumulated in
// member order so the means match a fresh left-to-right summation.
type group struct {
	members []int
	sumC    float64 // sum of member centers on the grouping axis
	sumY    float64 // sum of member top coordinates
}

func (g *group) add(idx int, center, y float64) {
	g.members = append(g.members, idx)
	g.sumC += center
	g.sumY += y
}

func (g *group) meanCenter() float64 { return g.sumC / float64(len(g.members)) }

func (g *group) meanY() float64 { return g.sumY / float64(len(g.members)) }

// firstFit assigns each box, in input order, to the first group whose
// running mean center is within threshold, or opens a new group.
func firstFit(boxes []geometry.Box, threshold float64, center func(geometry.Box) float64) []*group {
	var groups []*group
	for i, b := range boxes {
		c := center(b)
		var target *group
		for _, g := range groups {
			if math.Abs(c-g.meanCenter()) <= threshold {
				target = g
				break
			}
		}
		if target == nil {
			target = &group{}
			groups = append(groups, target)
		}
		target.add(i, c, float64(b.Y))
	}
	return groups
}

// orderVertical groups boxes into columns, orders columns by mean center x
// and reads each column top to bottom.
func orderVertical(boxes []geometry.Box, threshold float64, dir ColumnDirection) ([]int, int) {
	columns := firstFit(boxes, threshold, geometry.Box.CenterX)
	sort.SliceStable(columns, func(i, j int) bool {
		if dir == RightToLeft {
			return columns[i].meanCenter() > columns[j].meanCenter()
		}
		return columns[i].meanCenter() < columns[j].meanCenter()
	})

	order := make([]int, 0, len(boxes))
	for _, col := range columns {
		m := col.members
		sort.SliceStable(m, func(i, j int) bool { return boxes[m[i]].Y < boxes[m[j]].Y })
		order = append(order, m...)
	}
	return order, len(columns)
}

// orderHorizontal groups boxes into lines, orders lines by the mean of
// their members' top y and reads each line along dir.
func orderHorizontal(boxes []geometry.Box, threshold float64, dir ColumnDirection) ([]int, int) {
	lines := firstFit(boxes, threshold, geometry.Box.CenterY)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].meanY() < lines[j].meanY() })

	order := make([]int, 0, len(boxes))
	for _, line := range lines {
		m := line.members
		sort.SliceStable(m, func(i, j int) bool {
			if dir == RightToLeft {
				return boxes[m[i]].X > boxes[m[j]].X
			}
			return boxes[m[i]].X < boxes[m[j]].X
		})
		order = append(order, m...)
	}
	return order, len(lines)
}
