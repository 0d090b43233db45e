package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tank-siting/internal/domain"
	"github.com/couchcryptid/tank-siting/internal/geo"
	"github.com/couchcryptid/tank-siting/internal/observability"
	"github.com/couchcryptid/tank-siting/internal/store"
)

// stubCalculator returns a fixed result, or an error for named failure cases,
// and records how often it ran.
type stubCalculator struct {
	result geo.BoundaryResult
	err    error
	calls  int
}

func (c *stubCalculator) Distance(domain.Coordinate, []domain.Coordinate) (geo.BoundaryResult, error) {
	c.calls++
	if c.err != nil {
		return geo.BoundaryResult{}, c.err
	}
	return c.result, nil
}

func newTestAggregator(t *testing.T, calc geo.Calculator) (*Aggregator, store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{
		Backend: store.BackendDocument,
		Session: "session-1",
		Path:    filepath.Join(t.TempDir(), "session-1.json"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewAggregator(st, calc, slog.Default(), observability.NewMetricsForTesting()), st
}

func apply(t *testing.T, agg *Aggregator, payload string) {
	t.Helper()
	env, err := DecodeEnvelope([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, agg.Apply(context.Background(), env, []byte(payload)))
}

const boundaryPayload = `{"session":"session-1","stage":"boundary","boundary":[[-66.0,18.2],[-66.01,18.2],[-66.01,18.21],[-66.0,18.21]]}`

func TestDecodeEnvelope(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"session":"s1","stage":"placements","tanks":[]}`))

		require.NoError(t, err)
		assert.Equal(t, "s1", env.Session)
		assert.Equal(t, "placements", env.Stage)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"stage":"placements"}`))
		assert.ErrorContains(t, err, "missing session")
	})

	t.Run("missing stage", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"session":"s1"}`))
		assert.ErrorContains(t, err, "missing stage")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{broken`))
		assert.ErrorContains(t, err, "decode stage envelope")
	})
}

func TestAggregatorApplyConfigImport(t *testing.T) {
	agg, st := newTestAggregator(t, &stubCalculator{})

	apply(t, agg, `{"session":"session-1","stage":"config_import","tanks":[
		{"name":"Tank A","volume_gallons":5000,"tank_type":"diesel","has_dike":true,"dike_dims":[30,20]},
		{"name":"Tank B","measurements":"d=10ft"}
	]}`)

	snap, err := st.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tanks, 2)

	a := snap.Tanks[0]
	assert.Equal(t, "Tank A", a.Name)
	assert.Equal(t, 5000.0, *a.VolumeGallons)
	assert.Equal(t, "diesel", *a.TankType)
	assert.True(t, *a.HasDike)
	assert.Equal(t, domain.DikeDims{LengthFt: 30, WidthFt: 20}, *a.DikeDims)

	b := snap.Tanks[1]
	assert.Equal(t, "d=10ft", *b.Measurements)
	assert.Nil(t, b.HasDike)
}

func TestAggregatorApplyRequiredDistances(t *testing.T) {
	agg, st := newTestAggregator(t, &stubCalculator{})

	apply(t, agg, `{"session":"session-1","stage":"required_distances","entries":[
		{"name":"Tank A","asdppu":"100 ft","asdbpu":"n/a","asdpnpd":"see note","asdbnpd":"1,250'"}
	]}`)

	snap, err := st.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tanks, 1)
	rd := snap.Tanks[0].RequiredDistances
	require.NotNil(t, rd)

	assert.Equal(t, 100.0, *rd.ASDPPU)
	assert.Nil(t, rd.ASDBPU)
	assert.Nil(t, rd.ASDPNPD, "unparseable text stays null")
	assert.Equal(t, 1250.0, *rd.ASDBNPD)
	assert.Equal(t, 1250.0, *rd.MaxRequired)

	// No distance measured yet, so the verdict is REVIEW.
	require.NotNil(t, snap.Tanks[0].Compliance)
	assert.Equal(t, domain.StatusReview, snap.Tanks[0].Compliance.Status)
}

func TestAggregatorApplyFieldStudy(t *testing.T) {
	agg, st := newTestAggregator(t, &stubCalculator{})

	apply(t, agg, `{"session":"session-1","stage":"field_study","entries":[
		{"name":"Tank A","inspector":"I. Rivera","contact":"rivera@example.com","surveyed_at":"2026-02-10T14:30:00Z"}
	]}`)

	snap, err := st.Snapshot()
	require.NoError(t, err)
	fs := snap.Tanks[0].FieldStudy
	require.NotNil(t, fs)
	assert.Equal(t, "I. Rivera", fs.Inspector)
	assert.Equal(t, "rivera@example.com", fs.Contact)
	require.NotNil(t, fs.SurveyedAt)
}

func TestAggregatorBoundaryChain(t *testing.T) {
	t.Run("boundary after placements measures every located tank", func(t *testing.T) {
		calc := &stubCalculator{result: geo.BoundaryResult{
			DistanceFt:   120,
			ClosestPoint: domain.Coordinate{Lat: 18.205, Lon: -66.005},
		}}
		agg, st := newTestAggregator(t, calc)

		apply(t, agg, `{"session":"session-1","stage":"required_distances","entries":[{"name":"Tank A","asdppu":"100"}]}`)
		apply(t, agg, `{"session":"session-1","stage":"placements","tanks":[{"name":"Tank A","lat":18.2,"lon":-66.0}]}`)
		apply(t, agg, boundaryPayload)

		snap, err := st.Snapshot()
		require.NoError(t, err)
		rec := snap.Tanks[0]

		assert.Equal(t, 120.0, *rec.DistanceToBoundaryFt)
		assert.Equal(t, domain.Coordinate{Lat: 18.205, Lon: -66.005}, *rec.ClosestBoundaryPoint)
		assert.Equal(t, domain.LocationOutside, rec.PointLocation)
		require.NotNil(t, rec.Compliance)
		assert.Equal(t, domain.StatusCompliant, rec.Compliance.Status)
		assert.Equal(t, 20.0, *rec.Compliance.MarginFt)
		assert.Equal(t, "[[-66,18.2],[-66.01,18.2],[-66.01,18.21],[-66,18.21]]", snap.Meta["boundary_ring"])
	})

	t.Run("placements after boundary re-trigger the chain", func(t *testing.T) {
		calc := &stubCalculator{result: geo.BoundaryResult{DistanceFt: 80, Inside: true}}
		agg, st := newTestAggregator(t, calc)

		apply(t, agg, boundaryPayload)
		apply(t, agg, `{"session":"session-1","stage":"required_distances","entries":[{"name":"Tank A","asdppu":"100"}]}`)
		apply(t, agg, `{"session":"session-1","stage":"placements","tanks":[{"name":"Tank A","lat":18.2,"lon":-66.0}]}`)

		snap, err := st.Snapshot()
		require.NoError(t, err)
		rec := snap.Tanks[0]

		assert.Equal(t, 80.0, *rec.DistanceToBoundaryFt)
		assert.Equal(t, domain.LocationInside, rec.PointLocation)
		require.NotNil(t, rec.Compliance)
		assert.Equal(t, domain.StatusNonCompliant, rec.Compliance.Status)
		assert.Contains(t, rec.Compliance.Notes, "tank location is inside the boundary polygon")
	})

	t.Run("tank without coordinates is classified but not measured", func(t *testing.T) {
		calc := &stubCalculator{result: geo.BoundaryResult{DistanceFt: 80}}
		agg, st := newTestAggregator(t, calc)

		apply(t, agg, `{"session":"session-1","stage":"required_distances","entries":[{"name":"Tank A","asdppu":"100"}]}`)
		apply(t, agg, boundaryPayload)

		snap, err := st.Snapshot()
		require.NoError(t, err)
		rec := snap.Tanks[0]

		assert.Equal(t, 0, calc.calls)
		assert.Nil(t, rec.DistanceToBoundaryFt)
		require.NotNil(t, rec.Compliance)
		assert.Equal(t, domain.StatusReview, rec.Compliance.Status)
		assert.Contains(t, rec.Compliance.Notes, "no actual distance available")
	})

	t.Run("per-tank geometry failure becomes a recorded review", func(t *testing.T) {
		calc := &stubCalculator{err: errors.New("self-intersecting ring could not be repaired")}
		agg, st := newTestAggregator(t, calc)

		apply(t, agg, `{"session":"session-1","stage":"placements","tanks":[{"name":"Tank A","lat":18.2,"lon":-66.0}]}`)
		apply(t, agg, boundaryPayload)

		snap, err := st.Snapshot()
		require.NoError(t, err)
		rec := snap.Tanks[0]

		require.NotNil(t, rec.Compliance)
		assert.Equal(t, domain.StatusReview, rec.Compliance.Status)
		require.Len(t, rec.Compliance.Notes, 1)
		assert.Contains(t, rec.Compliance.Notes[0], "boundary distance unavailable")
	})

	t.Run("boundary with too few vertices is rejected", func(t *testing.T) {
		agg, _ := newTestAggregator(t, &stubCalculator{})
		payload := `{"session":"session-1","stage":"boundary","boundary":[[-66.0,18.2],[-66.01,18.2]]}`
		env, err := DecodeEnvelope([]byte(payload))
		require.NoError(t, err)

		err = agg.Apply(context.Background(), env, []byte(payload))

		assert.ErrorContains(t, err, "at least 3 vertices")
	})
}

func TestAggregatorUnknownStage(t *testing.T) {
	agg, _ := newTestAggregator(t, &stubCalculator{})

	err := agg.Apply(context.Background(), Envelope{Session: "session-1", Stage: "geocode"}, []byte(`{}`))

	assert.ErrorContains(t, err, `unknown stage "geocode"`)
}
