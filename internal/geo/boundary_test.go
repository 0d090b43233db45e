package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

// flatProjector maps degrees straight to meters, so planar geometry can be
// exercised with hand-checkable numbers.
type flatProjector struct{}

func (flatProjector) ToPlanar(lon, lat float64) (float64, float64, error) { return lon, lat, nil }
func (flatProjector) ToWGS84(x, y float64) (float64, float64, error)      { return x, y, nil }

// square is a closed 10x10 ring from (0,0) to (10,10) in flat-projector units.
func square() []domain.Coordinate {
	return []domain.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 10, Lat: 0},
		{Lon: 10, Lat: 10},
		{Lon: 0, Lat: 10},
		{Lon: 0, Lat: 0},
	}
}

func TestBoundaryCalculatorDistance(t *testing.T) {
	calc := NewBoundaryCalculator(flatProjector{})

	t.Run("center of square", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 5, Lat: 5}, square())

		require.NoError(t, err)
		assert.InDelta(t, 5*MetersToFeet, result.DistanceFt, 1e-9)
		assert.True(t, result.Inside)
	})

	t.Run("outside nearest to an edge interior", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 5, Lat: -3}, square())

		require.NoError(t, err)
		assert.InDelta(t, 3*MetersToFeet, result.DistanceFt, 1e-9)
		assert.False(t, result.Inside)
		assert.InDelta(t, 5, result.ClosestPoint.Lon, 1e-9)
		assert.InDelta(t, 0, result.ClosestPoint.Lat, 1e-9)
	})

	t.Run("outside nearest to a corner", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 13, Lat: 14}, square())

		require.NoError(t, err)
		assert.InDelta(t, 5*MetersToFeet, result.DistanceFt, 1e-9)
		assert.False(t, result.Inside)
		assert.InDelta(t, 10, result.ClosestPoint.Lon, 1e-9)
		assert.InDelta(t, 10, result.ClosestPoint.Lat, 1e-9)
	})

	t.Run("point on the boundary is inside at distance zero", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 10, Lat: 4}, square())

		require.NoError(t, err)
		assert.Equal(t, 0.0, result.DistanceFt)
		assert.True(t, result.Inside)
	})

	t.Run("point on a vertex is inside at distance zero", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 0, Lat: 0}, square())

		require.NoError(t, err)
		assert.Equal(t, 0.0, result.DistanceFt)
		assert.True(t, result.Inside)
	})

	t.Run("open ring equals closed ring", func(t *testing.T) {
		open := square()[:4]
		point := domain.Coordinate{Lon: -2, Lat: 5}

		closedResult, err := calc.Distance(point, square())
		require.NoError(t, err)
		openResult, err := calc.Distance(point, open)
		require.NoError(t, err)

		assert.Equal(t, closedResult, openResult)
	})

	t.Run("duplicate consecutive vertices tolerated", func(t *testing.T) {
		ring := []domain.Coordinate{
			{Lon: 0, Lat: 0}, {Lon: 0, Lat: 0},
			{Lon: 10, Lat: 0},
			{Lon: 10, Lat: 10}, {Lon: 10, Lat: 10},
			{Lon: 0, Lat: 10},
		}

		result, err := calc.Distance(domain.Coordinate{Lon: 5, Lat: 5}, ring)

		require.NoError(t, err)
		assert.InDelta(t, 5*MetersToFeet, result.DistanceFt, 1e-9)
	})
}

func TestBoundaryCalculatorInvalidRings(t *testing.T) {
	calc := NewBoundaryCalculator(flatProjector{})
	point := domain.Coordinate{Lon: 1, Lat: 1}

	t.Run("too few vertices", func(t *testing.T) {
		_, err := calc.Distance(point, []domain.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}})

		var pe *InvalidPolygonError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 2, pe.Vertices)
	})

	t.Run("collapses to fewer than 3 distinct vertices", func(t *testing.T) {
		ring := []domain.Coordinate{
			{Lon: 0, Lat: 0}, {Lon: 5, Lat: 5}, {Lon: 0, Lat: 0}, {Lon: 5, Lat: 5},
		}

		_, err := calc.Distance(point, ring)

		var pe *InvalidPolygonError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("unprojectable vertex", func(t *testing.T) {
		p, err := NewUTMProjector(19, true)
		require.NoError(t, err)
		realCalc := NewBoundaryCalculator(p)

		ring := []domain.Coordinate{
			{Lon: -66.0, Lat: 18.2},
			{Lon: -66.0, Lat: math.NaN()},
			{Lon: -66.1, Lat: 18.3},
		}

		_, err = realCalc.Distance(domain.Coordinate{Lon: -66.05, Lat: 18.25}, ring)

		require.Error(t, err)
		var ce *CoordinateError
		assert.ErrorAs(t, err, &ce)
	})
}

func TestBoundaryCalculatorUntwist(t *testing.T) {
	calc := NewBoundaryCalculator(flatProjector{})

	// Bowtie: the square's last two vertices swapped, producing one proper
	// crossing. Untwisting restores the square, so results match it exactly.
	bowtie := []domain.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 10, Lat: 0},
		{Lon: 0, Lat: 10},
		{Lon: 10, Lat: 10},
	}

	t.Run("repaired ring measures like the square", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 5, Lat: 5}, bowtie)

		require.NoError(t, err)
		assert.InDelta(t, 5*MetersToFeet, result.DistanceFt, 1e-9)
		assert.True(t, result.Inside)
	})

	t.Run("outside point against repaired ring", func(t *testing.T) {
		result, err := calc.Distance(domain.Coordinate{Lon: 5, Lat: 12}, bowtie)

		require.NoError(t, err)
		assert.InDelta(t, 2*MetersToFeet, result.DistanceFt, 1e-9)
		assert.False(t, result.Inside)
	})
}

func TestBoundaryCalculatorEndToEnd(t *testing.T) {
	// A tank 50 feet south of a square parcel near Ponce, measured through the
	// real projection. The square is built by projecting the tank, offsetting
	// in meters, and unprojecting, so the expected distance is exact up to
	// round-trip error.
	p, err := NewUTMProjector(19, true)
	require.NoError(t, err)
	calc := NewBoundaryCalculator(p)

	tank := domain.Coordinate{Lat: 18.2, Lon: -66.0}
	tx, ty, err := p.ToPlanar(tank.Lon, tank.Lat)
	require.NoError(t, err)

	centerY := ty + 150/MetersToFeet // parcel center 150 ft north of the tank
	half := 100 / MetersToFeet       // 200 ft square

	var ring []domain.Coordinate
	for _, c := range [][2]float64{
		{tx - half, centerY - half},
		{tx + half, centerY - half},
		{tx + half, centerY + half},
		{tx - half, centerY + half},
	} {
		lon, lat, err := p.ToWGS84(c[0], c[1])
		require.NoError(t, err)
		ring = append(ring, domain.Coordinate{Lon: lon, Lat: lat})
	}

	result, err := calc.Distance(tank, ring)
	require.NoError(t, err)

	assert.InDelta(t, 50, result.DistanceFt, 0.1)
	assert.False(t, result.Inside)

	// The nearest boundary point sits due north on the parcel's south edge.
	assert.InDelta(t, tank.Lon, result.ClosestPoint.Lon, 1e-5)
	assert.Greater(t, result.ClosestPoint.Lat, tank.Lat)

	verdict := domain.Classify(&result.DistanceFt, domain.RequiredDistances{
		ASDPPU: func() *float64 { v := 100.0; return &v }(),
	}, false, domain.LocationOutside)

	assert.Equal(t, domain.StatusNonCompliant, verdict.Status)
	require.NotNil(t, verdict.MarginFt)
	assert.InDelta(t, -50, *verdict.MarginFt, 0.1)
}

func TestCachedCalculator(t *testing.T) {
	t.Run("repeat query served from cache", func(t *testing.T) {
		counter := &countingCalculator{inner: NewBoundaryCalculator(flatProjector{})}
		cached := NewCachedCalculator(counter, 10)
		point := domain.Coordinate{Lon: 5, Lat: -3}

		first, err := cached.Distance(point, square())
		require.NoError(t, err)
		second, err := cached.Distance(point, square())
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, counter.calls)
	})

	t.Run("different point misses", func(t *testing.T) {
		counter := &countingCalculator{inner: NewBoundaryCalculator(flatProjector{})}
		cached := NewCachedCalculator(counter, 10)

		_, err := cached.Distance(domain.Coordinate{Lon: 5, Lat: -3}, square())
		require.NoError(t, err)
		_, err = cached.Distance(domain.Coordinate{Lon: 5, Lat: -4}, square())
		require.NoError(t, err)

		assert.Equal(t, 2, counter.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		counter := &countingCalculator{inner: NewBoundaryCalculator(flatProjector{})}
		cached := NewCachedCalculator(counter, 10)
		degenerate := []domain.Coordinate{{Lon: 0, Lat: 0}}

		_, err := cached.Distance(domain.Coordinate{Lon: 1, Lat: 1}, degenerate)
		require.Error(t, err)
		_, err = cached.Distance(domain.Coordinate{Lon: 1, Lat: 1}, degenerate)
		require.Error(t, err)

		assert.Equal(t, 2, counter.calls)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		counter := &countingCalculator{inner: NewBoundaryCalculator(flatProjector{})}
		cached := NewCachedCalculator(counter, 2)
		a := domain.Coordinate{Lon: 1, Lat: 1}
		b := domain.Coordinate{Lon: 2, Lat: 2}
		c := domain.Coordinate{Lon: 3, Lat: 3}

		_, _ = cached.Distance(a, square())
		_, _ = cached.Distance(b, square())
		_, _ = cached.Distance(c, square()) // evicts a
		_, _ = cached.Distance(a, square()) // recomputes

		assert.Equal(t, 4, counter.calls)
	})
}

type countingCalculator struct {
	inner Calculator
	calls int
}

func (c *countingCalculator) Distance(point domain.Coordinate, boundary []domain.Coordinate) (BoundaryResult, error) {
	c.calls++
	return c.inner.Distance(point, boundary)
}
