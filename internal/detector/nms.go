package detector

import (
	"sort"

	"github.com/MeKo-Tech/yomitori/internal/geometry"
)

// NonMaxSuppression greedily keeps the most confident region of every
// overlapping group. A region is dropped when its IoU with an already kept
// region exceeds iouThreshold. Ties in confidence keep input order.
func NonMaxSuppression(regions []TextRegion, iouThreshold float64) []TextRegion {
	if len(regions) == 0 {
		return []TextRegion{}
	}

	sorted := make([]TextRegion, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	kept := make([]TextRegion, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if geometry.IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
