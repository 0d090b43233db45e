package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

func newSQLiteStore(t *testing.T, session string) Store {
	t.Helper()
	s, err := Open(Config{
		Backend: BackendSQLite,
		Session: session,
		Path:    filepath.Join(t.TempDir(), "tanks.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreUpsertByName(t *testing.T) {
	s := newSQLiteStore(t, "session-1")

	first, err := s.UpsertByName("Tank-1")
	require.NoError(t, err)
	second, err := s.UpsertByName("Tank-2")
	require.NoError(t, err)
	again, err := s.UpsertByName("  tank-1 ")
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 1, again.ID)
	assert.Equal(t, "Tank-1", again.Name)
}

func TestSQLiteStoreRoundTripsFullRecord(t *testing.T) {
	s := newSQLiteStore(t, "session-1")
	surveyed := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

	require.NoError(t, s.MergeConfig([]ConfigEntry{{
		Name:          "Tank North",
		VolumeGallons: fptr(12000),
		TankType:      sptr("diesel"),
		HasDike:       bptr(true),
		DikeDims:      &domain.DikeDims{LengthFt: 40, WidthFt: 25},
		Measurements:  sptr("d=12ft h=20ft"),
	}}))
	require.NoError(t, s.MergeCoordinates([]CoordinateEntry{{
		Name:   "tank north",
		Coords: domain.Coordinate{Lat: 18.21, Lon: -66.03},
	}}))
	require.NoError(t, s.MergeRequiredDistances([]RequiredDistanceEntry{{
		Name:      "tank north",
		Distances: domain.RequiredDistances{ASDPPU: fptr(100), ASDPNPD: fptr(60)},
	}}))
	require.NoError(t, s.MergeFieldStudy([]FieldStudyEntry{{
		Name:       "tank north",
		Inspector:  sptr("I. Rivera"),
		Contact:    sptr("rivera@example.com"),
		SurveyedAt: &surveyed,
	}}))
	margin := 25.0
	require.NoError(t, s.MergeBoundaryResults([]BoundaryResultEntry{{
		Name:          "tank north",
		DistanceFt:    fptr(85),
		ClosestPoint:  &domain.Coordinate{Lat: 18.2105, Lon: -66.03},
		PointLocation: domain.LocationOutside,
		Compliance: &domain.Compliance{
			Status:   domain.StatusCompliant,
			Notes:    []string{"reviewed on site"},
			MarginFt: &margin,
		},
	}}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tanks, 1)
	rec := snap.Tanks[0]

	assert.Equal(t, 1, rec.ID)
	assert.Equal(t, "Tank North", rec.Name)
	assert.Equal(t, 12000.0, *rec.VolumeGallons)
	assert.Equal(t, "diesel", *rec.TankType)
	assert.True(t, *rec.HasDike)
	assert.Equal(t, domain.DikeDims{LengthFt: 40, WidthFt: 25}, *rec.DikeDims)
	assert.Equal(t, "d=12ft h=20ft", *rec.Measurements)
	assert.Equal(t, domain.Coordinate{Lat: 18.21, Lon: -66.03}, *rec.Coords)
	require.NotNil(t, rec.RequiredDistances)
	assert.Equal(t, 100.0, *rec.RequiredDistances.ASDPPU)
	assert.Equal(t, 60.0, *rec.RequiredDistances.ASDPNPD)
	assert.Nil(t, rec.RequiredDistances.ASDBPU)
	assert.Equal(t, 100.0, *rec.RequiredDistances.MaxRequired)
	assert.Equal(t, 85.0, *rec.DistanceToBoundaryFt)
	assert.Equal(t, domain.Coordinate{Lat: 18.2105, Lon: -66.03}, *rec.ClosestBoundaryPoint)
	assert.Equal(t, domain.LocationOutside, rec.PointLocation)
	require.NotNil(t, rec.Compliance)
	assert.Equal(t, domain.StatusCompliant, rec.Compliance.Status)
	assert.Equal(t, []string{"reviewed on site"}, rec.Compliance.Notes)
	assert.Equal(t, 25.0, *rec.Compliance.MarginFt)
	require.NotNil(t, rec.FieldStudy)
	assert.Equal(t, "I. Rivera", rec.FieldStudy.Inspector)
	require.NotNil(t, rec.FieldStudy.SurveyedAt)
	assert.True(t, rec.FieldStudy.SurveyedAt.Equal(surveyed))
}

func TestSQLiteStoreSessionScoping(t *testing.T) {
	// Two sessions sharing one database file must not see each other's tanks
	// and must number their IDs independently.
	path := filepath.Join(t.TempDir(), "tanks.db")

	s1, err := Open(Config{Backend: BackendSQLite, Session: "session-1", Path: path})
	require.NoError(t, err)
	defer s1.Close()
	s2, err := Open(Config{Backend: BackendSQLite, Session: "session-2", Path: path})
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s1.MergeConfig([]ConfigEntry{{Name: "alpha"}, {Name: "beta"}}))
	require.NoError(t, s2.MergeConfig([]ConfigEntry{{Name: "gamma"}}))

	snap1, err := s1.Snapshot()
	require.NoError(t, err)
	snap2, err := s2.Snapshot()
	require.NoError(t, err)

	require.Len(t, snap1.Tanks, 2)
	require.Len(t, snap2.Tanks, 1)
	assert.Equal(t, "gamma", snap2.Tanks[0].Name)
	assert.Equal(t, 1, snap2.Tanks[0].ID)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tanks.db")

	s, err := Open(Config{Backend: BackendSQLite, Session: "session-1", Path: path})
	require.NoError(t, err)
	require.NoError(t, s.MergeConfig([]ConfigEntry{{Name: "tank-a", VolumeGallons: fptr(5000)}}))
	require.NoError(t, s.SetMeta("boundary_ring", "[[1,2]]"))
	require.NoError(t, s.Persist()) // no-op, must not error
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Backend: BackendSQLite, Session: "session-1", Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tanks, 1)
	assert.Equal(t, 5000.0, *snap.Tanks[0].VolumeGallons)
	assert.Equal(t, "[[1,2]]", snap.Meta["boundary_ring"])

	// New names continue the ID sequence.
	rec, err := reopened.UpsertByName("tank-b")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ID)
}

func TestSQLiteStoreEmptySnapshot(t *testing.T) {
	s := newSQLiteStore(t, "session-1")

	snap, err := s.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, "session-1", snap.Session)
	assert.NotNil(t, snap.Tanks)
	assert.Empty(t, snap.Tanks)
	assert.Nil(t, snap.Meta)
	assert.True(t, snap.UpdatedAt.IsZero())
}
