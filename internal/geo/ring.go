package geo

import "fmt"

// InvalidPolygonError reports a boundary ring that is degenerate (fewer than
// three distinct vertices) or self-intersecting beyond repair.
type InvalidPolygonError struct {
	Reason   string
	Vertices int
}

func (e *InvalidPolygonError) Error() string {
	return fmt.Sprintf("invalid boundary polygon (%d vertices): %s", e.Vertices, e.Reason)
}

// planarPoint is a projected coordinate in meters.
type planarPoint struct {
	x, y float64
}

// planarRing is a closed sequence of projected vertices; the last vertex
// equals the first after closeRing.
type planarRing []planarPoint

// closeRing appends a copy of the first vertex when the ring is open.
func closeRing(r planarRing) planarRing {
	if len(r) == 0 {
		return r
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// dedupeRing removes consecutive duplicate vertices from a closed ring,
// keeping the closure intact.
func dedupeRing(r planarRing) planarRing {
	if len(r) < 2 {
		return r
	}
	out := planarRing{r[0]}
	for _, p := range r[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// distinctVertices counts the unique vertices of a closed ring.
func distinctVertices(r planarRing) int {
	seen := make(map[planarPoint]bool, len(r))
	for _, p := range r {
		seen[p] = true
	}
	return len(seen)
}

// isSimple reports whether no two non-adjacent edges of the closed ring
// properly cross each other.
func isSimple(r planarRing) bool {
	_, _, crossing := firstCrossing(r)
	return !crossing
}

// firstCrossing finds the lowest-index pair of non-adjacent edges that
// properly cross. Edge i runs from r[i] to r[i+1].
func firstCrossing(r planarRing) (int, int, bool) {
	n := len(r) - 1 // edge count of a closed ring
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last edge share the closure vertex
			}
			if segmentsCross(r[i], r[i+1], r[j], r[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// segmentsCross reports a proper crossing of segments ab and cd: the segments
// intersect at a single interior point of both. Touching at an endpoint does
// not count, so rings that merely revisit a vertex stay simple.
func segmentsCross(a, b, c, d planarPoint) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// cross is the z-component of (b-a) x (p-a).
func cross(a, b, p planarPoint) float64 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}

// untwist attempts to repair a self-intersecting ring by reversing the vertex
// run between each pair of crossing edges (the standard 2-opt untangling that
// fixes bowtie rings produced by mis-ordered survey points). It gives up
// after one pass per vertex, returning the ring and whether it ended simple.
func untwist(r planarRing) (planarRing, bool) {
	for attempt := 0; attempt < len(r); attempt++ {
		i, j, crossing := firstCrossing(r)
		if !crossing {
			return r, true
		}
		for lo, hi := i+1, j; lo < hi; lo, hi = lo+1, hi-1 {
			r[lo], r[hi] = r[hi], r[lo]
		}
		r[len(r)-1] = r[0] // reversal may have moved the closure vertex
	}
	return r, isSimple(r)
}

// ringContains reports whether the point is inside the closed ring, by ray
// casting toward +x. Points exactly on an edge or vertex count as inside;
// that convention is fixed here and relied on by the membership tests.
func ringContains(r planarRing, p planarPoint) bool {
	inside := false
	for i := 0; i < len(r)-1; i++ {
		a, b := r[i], r[i+1]
		if onSegment(a, b, p) {
			return true
		}
		if (a.y > p.y) != (b.y > p.y) {
			xCross := a.x + (p.y-a.y)/(b.y-a.y)*(b.x-a.x)
			if p.x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether p lies on segment ab, within a small collinearity
// tolerance (planar units are meters, so 1e-9 is sub-nanometer).
func onSegment(a, b, p planarPoint) bool {
	if cross(a, b, p) > 1e-9 || cross(a, b, p) < -1e-9 {
		return false
	}
	return p.x >= min(a.x, b.x) && p.x <= max(a.x, b.x) &&
		p.y >= min(a.y, b.y) && p.y <= max(a.y, b.y)
}

// nearestOnSegment returns the point on segment ab closest to p and the
// squared distance to it. The foot of the perpendicular is clamped to the
// segment endpoints when it falls outside.
func nearestOnSegment(a, b, p planarPoint) (planarPoint, float64) {
	dx, dy := b.x-a.x, b.y-a.y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return a, distSq(a, p)
	}

	t := ((p.x-a.x)*dx + (p.y-a.y)*dy) / lengthSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	q := planarPoint{x: a.x + t*dx, y: a.y + t*dy}
	return q, distSq(q, p)
}

func distSq(a, b planarPoint) float64 {
	dx, dy := a.x-b.x, a.y-b.y
	return dx*dx + dy*dy
}
