package domain

import (
	"strings"
	"time"
)

// PointLocation classifies a tank coordinate relative to the boundary polygon.
type PointLocation string

const (
	LocationInside  PointLocation = "Inside"
	LocationOutside PointLocation = "Outside"
)

// ComplianceStatus is the outcome of comparing measured distance against the
// governing required separation distance.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "COMPLIANT"
	StatusNonCompliant ComplianceStatus = "NON_COMPLIANT"
	StatusReview       ComplianceStatus = "REVIEW"  // required distance known, actual distance missing
	StatusPending      ComplianceStatus = "PENDING" // no required distances available yet
)

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" db:"lat"`
	Lon float64 `json:"lon" db:"lon"`
}

// DikeDims is the [length, width] footprint of a containment dike, in feet.
type DikeDims struct {
	LengthFt float64 `json:"length_ft"`
	WidthFt  float64 `json:"width_ft"`
}

// RequiredDistances holds the four ASD variants in feet, each independently
// nullable because the external calculator reports them one scenario at a
// time. MaxRequired is derived from whichever values are populated.
type RequiredDistances struct {
	ASDPPU      *float64 `json:"asdppu,omitempty"`
	ASDBPU      *float64 `json:"asdbpu,omitempty"`
	ASDPNPD     *float64 `json:"asdpnpd,omitempty"`
	ASDBNPD     *float64 `json:"asdbnpd,omitempty"`
	MaxRequired *float64 `json:"max_required,omitempty"`
}

// Empty reports whether none of the four variants is populated.
func (r RequiredDistances) Empty() bool {
	return r.ASDPPU == nil && r.ASDBPU == nil && r.ASDPNPD == nil && r.ASDBNPD == nil
}

// Compliance records the verdict for one tank.
type Compliance struct {
	Status ComplianceStatus `json:"status"`
	Notes  []string         `json:"notes,omitempty"`
	// MarginFt is distance minus required: positive slack when compliant,
	// the deficit when not. Nil when either side of the comparison is missing.
	MarginFt *float64 `json:"margin_ft,omitempty"`
}

// FieldStudy is inspector-supplied metadata, orthogonal to the computed fields.
type FieldStudy struct {
	Inspector  string     `json:"inspector,omitempty"`
	Contact    string     `json:"contact,omitempty"`
	SurveyedAt *time.Time `json:"surveyed_at,omitempty"`
}

// TankRecord is the canonical per-tank entity, built up incrementally as the
// independent pipeline stages deliver their partial results. Every field
// except Name and ID is nullable until the stage that owns it has merged.
type TankRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	VolumeGallons *float64  `json:"volume_gallons,omitempty"`
	Measurements  *string   `json:"measurements,omitempty"`
	TankType      *string   `json:"tank_type,omitempty"`
	HasDike       *bool     `json:"has_dike,omitempty"`
	DikeDims      *DikeDims `json:"dike_dims,omitempty"`

	Coords *Coordinate `json:"coords,omitempty"`

	RequiredDistances *RequiredDistances `json:"required_distances,omitempty"`

	DistanceToBoundaryFt *float64      `json:"distance_to_boundary_ft,omitempty"`
	ClosestBoundaryPoint *Coordinate   `json:"closest_boundary_point,omitempty"`
	PointLocation        PointLocation `json:"point_location,omitempty"`
	Compliance           *Compliance   `json:"compliance,omitempty"`

	FieldStudy *FieldStudy `json:"field_study,omitempty"`
}

// SessionSnapshot is the stable persisted shape consumed by downstream report
// generation. Tanks are ordered by ID, which equals first-reference order.
type SessionSnapshot struct {
	Session   string            `json:"session"`
	Tanks     []TankRecord      `json:"tanks"`
	Meta      map[string]string `json:"meta,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NormalizeName canonicalizes a tank name into the store's lookup key:
// trimmed and case-insensitive. The display name keeps its original form.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
