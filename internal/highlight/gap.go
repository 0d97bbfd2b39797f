package highlight

import "slices"

// gapTracker holds captured positions in ascending order so a candidate is
// checked against its two neighbours only.
type gapTracker struct {
	minGap    int
	positions []int
}

func newGapTracker(minGap int) *gapTracker {
	return &gapTracker{minGap: minGap}
}

// clear reports whether pos is at least minGap from every captured position.
func (g *gapTracker) clear(pos int) bool {
	i, found := slices.BinarySearch(g.positions, pos)
	if found {
		return false
	}
	if i > 0 && pos-g.positions[i-1] < g.minGap {
		return false
	}
	if i < len(g.positions) && g.positions[i]-pos < g.minGap {
		return false
	}
	return true
}

func (g *gapTracker) add(pos int) {
	i, found := slices.BinarySearch(g.positions, pos)
	if !found {
		g.positions = slices.Insert(g.positions, i, pos)
	}
}
