package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage names accepted in the payload envelope.
const (
	StageConfigImport      = "config_import"
	StagePlacements        = "placements"
	StageRequiredDistances = "required_distances"
	StageFieldStudy        = "field_study"
	StageBoundary          = "boundary"
)

// Envelope is the part every stage payload shares.
type Envelope struct {
	Session string `json:"session"`
	Stage   string `json:"stage"`
}

// ConfigTank is one row of spreadsheet-ingestion output. Nil means the
// spreadsheet cell was empty; the merge leaves the stored value alone.
type ConfigTank struct {
	Name          string      `json:"name"`
	VolumeGallons *float64    `json:"volume_gallons,omitempty"`
	TankType      *string     `json:"tank_type,omitempty"`
	HasDike       *bool       `json:"has_dike,omitempty"`
	DikeDims      *[2]float64 `json:"dike_dims,omitempty"` // [length, width] in feet
	Measurements  *string     `json:"measurements,omitempty"`
}

// ConfigImportPayload carries the config_import stage's rows.
type ConfigImportPayload struct {
	Envelope
	Tanks []ConfigTank `json:"tanks"`
}

// Placement is a tank coordinate extracted from the KMZ stage.
type Placement struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// PlacementsPayload carries the placements stage's coordinates.
type PlacementsPayload struct {
	Envelope
	Tanks []Placement `json:"tanks"`
}

// RequiredDistanceRow carries the four ASD variants for one tank as the
// calculator reported them: free text with an optional unit.
type RequiredDistanceRow struct {
	Name    string `json:"name"`
	ASDPPU  string `json:"asdppu"`
	ASDBPU  string `json:"asdbpu"`
	ASDPNPD string `json:"asdpnpd"`
	ASDBNPD string `json:"asdbnpd"`
}

// RequiredDistancesPayload carries the required_distances stage's rows.
type RequiredDistancesPayload struct {
	Envelope
	Entries []RequiredDistanceRow `json:"entries"`
}

// FieldStudyRow is inspector metadata for one tank.
type FieldStudyRow struct {
	Name       string     `json:"name"`
	Inspector  *string    `json:"inspector,omitempty"`
	Contact    *string    `json:"contact,omitempty"`
	SurveyedAt *time.Time `json:"surveyed_at,omitempty"`
}

// FieldStudyPayload carries the field_study stage's rows.
type FieldStudyPayload struct {
	Envelope
	Entries []FieldStudyRow `json:"entries"`
}

// BoundaryPayload hands the aggregator the property-line ring as ordered
// (longitude, latitude) pairs, open or closed.
type BoundaryPayload struct {
	Envelope
	Boundary [][2]float64 `json:"boundary"`
}

// DecodeEnvelope extracts the session and stage from a raw payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode stage envelope: %w", err)
	}
	if env.Session == "" {
		return Envelope{}, fmt.Errorf("stage payload missing session")
	}
	if env.Stage == "" {
		return Envelope{}, fmt.Errorf("stage payload missing stage")
	}
	return env, nil
}
