package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/tank-siting/internal/domain"
	"github.com/couchcryptid/tank-siting/internal/geo"
	"github.com/couchcryptid/tank-siting/internal/observability"
	"github.com/couchcryptid/tank-siting/internal/store"
)

// metaBoundaryKey is the session-meta slot holding the boundary ring, so a
// stage arriving after the boundary (late placements, late calculator output)
// re-triggers the distance and compliance chain.
const metaBoundaryKey = "boundary_ring"

// Aggregator translates stage payloads into the store's typed merge calls.
// It is the only component that chains the boundary distance calculator and
// the compliance classifier, and it performs no I/O of its own beyond the
// store. One aggregator serves one session; the manager serializes callers.
type Aggregator struct {
	store   store.Store
	calc    geo.Calculator
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator wires an aggregator over a session's store.
func NewAggregator(st store.Store, calc geo.Calculator, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{store: st, calc: calc, logger: logger, metrics: metrics}
}

// Apply routes one decoded stage payload. Unknown stages are an error; row-
// level problems inside a known stage are recorded and never abort the batch.
func (a *Aggregator) Apply(ctx context.Context, env Envelope, payload []byte) error {
	switch env.Stage {
	case StageConfigImport:
		return a.applyConfigImport(payload)
	case StagePlacements:
		return a.applyPlacements(ctx, payload)
	case StageRequiredDistances:
		return a.applyRequiredDistances(ctx, payload)
	case StageFieldStudy:
		return a.applyFieldStudy(payload)
	case StageBoundary:
		return a.applyBoundary(ctx, payload)
	default:
		return fmt.Errorf("unknown stage %q", env.Stage)
	}
}

// Snapshot returns the session's current state from the store.
func (a *Aggregator) Snapshot() (domain.SessionSnapshot, error) {
	return a.store.Snapshot()
}

func (a *Aggregator) applyConfigImport(payload []byte) error {
	var p ConfigImportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode config_import payload: %w", err)
	}

	entries := make([]store.ConfigEntry, 0, len(p.Tanks))
	for _, t := range p.Tanks {
		e := store.ConfigEntry{
			Name:          t.Name,
			VolumeGallons: t.VolumeGallons,
			TankType:      t.TankType,
			HasDike:       t.HasDike,
			Measurements:  t.Measurements,
		}
		if t.DikeDims != nil {
			e.DikeDims = &domain.DikeDims{LengthFt: t.DikeDims[0], WidthFt: t.DikeDims[1]}
		}
		entries = append(entries, e)
	}
	if err := a.store.MergeConfig(entries); err != nil {
		return err
	}
	return a.store.Persist()
}

func (a *Aggregator) applyPlacements(ctx context.Context, payload []byte) error {
	var p PlacementsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode placements payload: %w", err)
	}

	entries := make([]store.CoordinateEntry, 0, len(p.Tanks))
	for _, t := range p.Tanks {
		entries = append(entries, store.CoordinateEntry{
			Name:   t.Name,
			Coords: domain.Coordinate{Lat: t.Lat, Lon: t.Lon},
		})
	}
	if err := a.store.MergeCoordinates(entries); err != nil {
		return err
	}
	if err := a.recomputeCompliance(ctx); err != nil {
		return err
	}
	return a.store.Persist()
}

func (a *Aggregator) applyRequiredDistances(ctx context.Context, payload []byte) error {
	var p RequiredDistancesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode required_distances payload: %w", err)
	}

	entries := make([]store.RequiredDistanceEntry, 0, len(p.Entries))
	for _, row := range p.Entries {
		entries = append(entries, store.RequiredDistanceEntry{
			Name:      row.Name,
			Distances: a.parseDistances(row),
		})
	}
	if err := a.store.MergeRequiredDistances(entries); err != nil {
		return err
	}
	if err := a.recomputeCompliance(ctx); err != nil {
		return err
	}
	return a.store.Persist()
}

// parseDistances parses the four free-text variants, leaving unparseable
// fields null and recording each failure instead of failing the row.
func (a *Aggregator) parseDistances(row RequiredDistanceRow) domain.RequiredDistances {
	var out domain.RequiredDistances
	for _, f := range []struct {
		field string
		text  string
		dst   **float64
	}{
		{"asdppu", row.ASDPPU, &out.ASDPPU},
		{"asdbpu", row.ASDBPU, &out.ASDBPU},
		{"asdpnpd", row.ASDPNPD, &out.ASDPNPD},
		{"asdbnpd", row.ASDBNPD, &out.ASDBNPD},
	} {
		v, err := domain.ParseDistanceFeet(f.field, f.text)
		if err != nil {
			a.logger.Warn("unparseable required distance, leaving null",
				"tank", row.Name, "field", f.field, "value", f.text)
			a.metrics.RowErrors.WithLabelValues(StageRequiredDistances).Inc()
			continue
		}
		*f.dst = v
	}
	return out
}

func (a *Aggregator) applyFieldStudy(payload []byte) error {
	var p FieldStudyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode field_study payload: %w", err)
	}

	entries := make([]store.FieldStudyEntry, 0, len(p.Entries))
	for _, row := range p.Entries {
		entries = append(entries, store.FieldStudyEntry{
			Name:       row.Name,
			Inspector:  row.Inspector,
			Contact:    row.Contact,
			SurveyedAt: row.SurveyedAt,
		})
	}
	if err := a.store.MergeFieldStudy(entries); err != nil {
		return err
	}
	return a.store.Persist()
}

func (a *Aggregator) applyBoundary(ctx context.Context, payload []byte) error {
	var p BoundaryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode boundary payload: %w", err)
	}
	if len(p.Boundary) < 3 {
		return fmt.Errorf("boundary payload needs at least 3 vertices, got %d", len(p.Boundary))
	}

	ring, err := json.Marshal(p.Boundary)
	if err != nil {
		return fmt.Errorf("encode boundary ring: %w", err)
	}
	if err := a.store.SetMeta(metaBoundaryKey, string(ring)); err != nil {
		return err
	}
	if err := a.recomputeCompliance(ctx); err != nil {
		return err
	}
	return a.store.Persist()
}

// recomputeCompliance runs the boundary-distance / classification chain for
// every tank in the session, using the ring stored in session meta. Without a
// ring it still classifies (PENDING or REVIEW verdicts) so partially-fed
// sessions show an honest status. Per-tank failures are recorded on the
// record itself and never abort the remaining tanks.
func (a *Aggregator) recomputeCompliance(ctx context.Context) error {
	snap, err := a.store.Snapshot()
	if err != nil {
		return err
	}

	boundary, err := a.boundaryRing(snap)
	if err != nil {
		return err
	}

	entries := make([]store.BoundaryResultEntry, 0, len(snap.Tanks))
	for _, tank := range snap.Tanks {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries = append(entries, a.measureTank(tank, boundary))
	}
	if len(entries) == 0 {
		return nil
	}
	return a.store.MergeBoundaryResults(entries)
}

// boundaryRing decodes the session's stored ring, or returns nil when no
// boundary stage has arrived yet.
func (a *Aggregator) boundaryRing(snap domain.SessionSnapshot) ([]domain.Coordinate, error) {
	raw, ok := snap.Meta[metaBoundaryKey]
	if !ok {
		return nil, nil
	}
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("decode stored boundary ring: %w", err)
	}
	ring := make([]domain.Coordinate, len(pairs))
	for i, p := range pairs {
		ring[i] = domain.Coordinate{Lon: p[0], Lat: p[1]}
	}
	return ring, nil
}

// measureTank produces one tank's boundary-result entry: measured distance
// and verdict when possible, a recorded REVIEW verdict when the geometry
// fails for that tank.
func (a *Aggregator) measureTank(tank domain.TankRecord, boundary []domain.Coordinate) store.BoundaryResultEntry {
	entry := store.BoundaryResultEntry{Name: tank.Name}

	required := domain.RequiredDistances{}
	if tank.RequiredDistances != nil {
		required = *tank.RequiredDistances
	}
	hasDike := tank.HasDike != nil && *tank.HasDike

	if tank.Coords != nil && boundary != nil {
		start := time.Now()
		result, err := a.calc.Distance(*tank.Coords, boundary)
		a.metrics.BoundaryCalcDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			a.logger.Warn("boundary distance failed for tank",
				"tank", tank.Name, "error", err)
			a.metrics.RowErrors.WithLabelValues(StageBoundary).Inc()
			entry.Compliance = &domain.Compliance{
				Status: domain.StatusReview,
				Notes:  []string{fmt.Sprintf("boundary distance unavailable: %v", err)},
			}
			a.metrics.ComplianceResults.WithLabelValues(string(domain.StatusReview)).Inc()
			return entry
		}

		entry.DistanceFt = &result.DistanceFt
		closest := result.ClosestPoint
		entry.ClosestPoint = &closest
		entry.PointLocation = domain.LocationOutside
		if result.Inside {
			entry.PointLocation = domain.LocationInside
		}
	}

	verdict := domain.Classify(entry.DistanceFt, required, hasDike, entry.PointLocation)
	entry.Compliance = &verdict
	a.metrics.ComplianceResults.WithLabelValues(string(verdict.Status)).Inc()
	return entry
}
