package store

import "github.com/couchcryptid/tank-siting/internal/domain"

// The apply* helpers hold the field-level merge semantics shared by both
// backends: set-if-provided-and-non-null, never replacing a populated value
// with null. Each backend loads the record, applies, and writes back, so the
// two cannot drift apart.

func applyConfig(rec *domain.TankRecord, e ConfigEntry) {
	if e.VolumeGallons != nil {
		v := *e.VolumeGallons
		rec.VolumeGallons = &v
	}
	if e.TankType != nil {
		v := *e.TankType
		rec.TankType = &v
	}
	if e.Measurements != nil {
		v := *e.Measurements
		rec.Measurements = &v
	}
	if e.HasDike != nil {
		v := *e.HasDike
		rec.HasDike = &v
	}
	// Dike dimensions only mean something on a diked tank.
	if e.DikeDims != nil && rec.HasDike != nil && *rec.HasDike {
		v := *e.DikeDims
		rec.DikeDims = &v
	}
}

func applyRequiredDistances(rec *domain.TankRecord, e RequiredDistanceEntry) {
	if e.Distances.Empty() {
		return // nothing parseable arrived for this tank
	}
	merged := domain.RequiredDistances{}
	if rec.RequiredDistances != nil {
		merged = *rec.RequiredDistances
	}
	if v := e.Distances.ASDPPU; v != nil {
		value := *v
		merged.ASDPPU = &value
	}
	if v := e.Distances.ASDBPU; v != nil {
		value := *v
		merged.ASDBPU = &value
	}
	if v := e.Distances.ASDPNPD; v != nil {
		value := *v
		merged.ASDPNPD = &value
	}
	if v := e.Distances.ASDBNPD; v != nil {
		value := *v
		merged.ASDBNPD = &value
	}
	merged = domain.DeriveMaxRequired(merged)
	rec.RequiredDistances = &merged
}

func applyCoordinates(rec *domain.TankRecord, e CoordinateEntry) {
	v := e.Coords
	rec.Coords = &v
}

func applyFieldStudy(rec *domain.TankRecord, e FieldStudyEntry) {
	merged := domain.FieldStudy{}
	if rec.FieldStudy != nil {
		merged = *rec.FieldStudy
	}
	if e.Inspector != nil {
		merged.Inspector = *e.Inspector
	}
	if e.Contact != nil {
		merged.Contact = *e.Contact
	}
	if e.SurveyedAt != nil {
		v := *e.SurveyedAt
		merged.SurveyedAt = &v
	}
	rec.FieldStudy = &merged
}

func applyBoundaryResult(rec *domain.TankRecord, e BoundaryResultEntry) {
	if e.Coords != nil {
		v := *e.Coords
		rec.Coords = &v
	}
	if e.DistanceFt != nil {
		v := *e.DistanceFt
		rec.DistanceToBoundaryFt = &v
	}
	if e.ClosestPoint != nil {
		v := *e.ClosestPoint
		rec.ClosestBoundaryPoint = &v
	}
	if e.PointLocation != "" {
		rec.PointLocation = e.PointLocation
	}
	if e.Compliance != nil {
		v := *e.Compliance
		v.Notes = append([]string(nil), e.Compliance.Notes...)
		rec.Compliance = &v
	}
}

// copyRecord deep-copies a record so snapshots stay stable while later merges
// replace fields.
func copyRecord(rec domain.TankRecord) domain.TankRecord {
	out := rec
	out.VolumeGallons = copyFloat(rec.VolumeGallons)
	out.Measurements = copyString(rec.Measurements)
	out.TankType = copyString(rec.TankType)
	if rec.HasDike != nil {
		v := *rec.HasDike
		out.HasDike = &v
	}
	if rec.DikeDims != nil {
		v := *rec.DikeDims
		out.DikeDims = &v
	}
	if rec.Coords != nil {
		v := *rec.Coords
		out.Coords = &v
	}
	if rec.RequiredDistances != nil {
		v := *rec.RequiredDistances
		v.ASDPPU = copyFloat(rec.RequiredDistances.ASDPPU)
		v.ASDBPU = copyFloat(rec.RequiredDistances.ASDBPU)
		v.ASDPNPD = copyFloat(rec.RequiredDistances.ASDPNPD)
		v.ASDBNPD = copyFloat(rec.RequiredDistances.ASDBNPD)
		v.MaxRequired = copyFloat(rec.RequiredDistances.MaxRequired)
		out.RequiredDistances = &v
	}
	out.DistanceToBoundaryFt = copyFloat(rec.DistanceToBoundaryFt)
	if rec.ClosestBoundaryPoint != nil {
		v := *rec.ClosestBoundaryPoint
		out.ClosestBoundaryPoint = &v
	}
	if rec.Compliance != nil {
		v := *rec.Compliance
		v.MarginFt = copyFloat(rec.Compliance.MarginFt)
		v.Notes = append([]string(nil), rec.Compliance.Notes...)
		out.Compliance = &v
	}
	if rec.FieldStudy != nil {
		v := *rec.FieldStudy
		if rec.FieldStudy.SurveyedAt != nil {
			t := *rec.FieldStudy.SurveyedAt
			v.SurveyedAt = &t
		}
		out.FieldStudy = &v
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}
