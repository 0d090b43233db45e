package geo

import (
	"fmt"
	"math"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

// MetersToFeet converts the projection's meter unit into the feet the
// regulatory figures are expressed in.
const MetersToFeet = 3.28084

// BoundaryResult is the outcome of measuring one tank against the boundary.
type BoundaryResult struct {
	// DistanceFt is the ground distance to the nearest boundary point, in
	// feet. Always non-negative, whether the tank is inside or outside.
	DistanceFt float64

	// ClosestPoint is the nearest point on the boundary, back in WGS-84.
	ClosestPoint domain.Coordinate

	// Inside reports ring membership; a point on the boundary itself counts
	// as inside (see ringContains).
	Inside bool
}

// Calculator measures a tank coordinate against a boundary ring. The cache
// decorator and the plain calculator both satisfy it.
type Calculator interface {
	Distance(point domain.Coordinate, boundary []domain.Coordinate) (BoundaryResult, error)
}

// BoundaryCalculator projects the point and ring into the planar system,
// finds the nearest point over all ring segments, and tests membership on
// the projected ring. It holds no mutable state; concurrent calls are safe
// and independent per tank.
type BoundaryCalculator struct {
	proj Projector
}

// NewBoundaryCalculator builds a calculator on the given projection.
func NewBoundaryCalculator(proj Projector) *BoundaryCalculator {
	return &BoundaryCalculator{proj: proj}
}

// Distance implements Calculator. The boundary may arrive open or closed;
// fewer than three distinct vertices is an *InvalidPolygonError, and a
// self-intersecting ring is repaired by untwisting before being rejected.
func (c *BoundaryCalculator) Distance(point domain.Coordinate, boundary []domain.Coordinate) (BoundaryResult, error) {
	if len(boundary) < 3 {
		return BoundaryResult{}, &InvalidPolygonError{
			Reason:   "boundary needs at least 3 vertices",
			Vertices: len(boundary),
		}
	}

	px, py, err := c.proj.ToPlanar(point.Lon, point.Lat)
	if err != nil {
		return BoundaryResult{}, fmt.Errorf("project tank coordinate: %w", err)
	}
	p := planarPoint{x: px, y: py}

	ring := make(planarRing, 0, len(boundary)+1)
	for _, v := range boundary {
		x, y, err := c.proj.ToPlanar(v.Lon, v.Lat)
		if err != nil {
			return BoundaryResult{}, fmt.Errorf("project boundary vertex: %w", err)
		}
		ring = append(ring, planarPoint{x: x, y: y})
	}

	ring = dedupeRing(closeRing(ring))
	if n := distinctVertices(ring); n < 3 {
		return BoundaryResult{}, &InvalidPolygonError{
			Reason:   "fewer than 3 distinct vertices after closing",
			Vertices: n,
		}
	}

	if !isSimple(ring) {
		repaired, ok := untwist(ring)
		if !ok {
			return BoundaryResult{}, &InvalidPolygonError{
				Reason:   "self-intersecting ring could not be repaired",
				Vertices: distinctVertices(ring),
			}
		}
		ring = repaired
	}

	closest, bestSq := nearestOnSegment(ring[0], ring[1], p)
	for i := 1; i < len(ring)-1; i++ {
		q, dSq := nearestOnSegment(ring[i], ring[i+1], p)
		if dSq < bestSq {
			closest, bestSq = q, dSq
		}
	}

	lon, lat, err := c.proj.ToWGS84(closest.x, closest.y)
	if err != nil {
		return BoundaryResult{}, fmt.Errorf("unproject closest boundary point: %w", err)
	}

	return BoundaryResult{
		DistanceFt:   math.Sqrt(bestSq) * MetersToFeet,
		ClosestPoint: domain.Coordinate{Lat: lat, Lon: lon},
		Inside:       ringContains(ring, p),
	}, nil
}
