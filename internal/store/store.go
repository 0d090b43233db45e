// Package store provides the session-scoped tank record collection behind a
// single interface with two interchangeable backends: a document store that
// serializes the whole session as one JSON blob, and a relational store
// normalized into sqlite tables. Given an identical ordered sequence of merge
// calls, both backends produce structurally equal snapshots; the equivalence
// replay test pins that contract.
//
// The store does not serialize writers. Merge calls for one session must be
// serialized by the caller (the session manager holds the per-session lock);
// Snapshot readers may run concurrently with that single writer.
package store

import (
	"fmt"
	"time"

	"github.com/couchcryptid/tank-siting/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendDocument = "document"
	BackendSQLite   = "sqlite"
)

// ConfigEntry is one tank's worth of spreadsheet-ingestion output. Nil fields
// are absent from the source and leave the stored value untouched.
type ConfigEntry struct {
	Name          string
	VolumeGallons *float64
	TankType      *string
	HasDike       *bool
	DikeDims      *domain.DikeDims
	Measurements  *string
}

// RequiredDistanceEntry carries the parsed ASD variants for one tank.
// MaxRequired is derived at merge time from the merged set.
type RequiredDistanceEntry struct {
	Name      string
	Distances domain.RequiredDistances
}

// CoordinateEntry is the coordinate-bearing (KMZ) stage's output.
type CoordinateEntry struct {
	Name   string
	Coords domain.Coordinate
}

// FieldStudyEntry is inspector metadata from the field study stage.
type FieldStudyEntry struct {
	Name       string
	Inspector  *string
	Contact    *string
	SurveyedAt *time.Time
}

// BoundaryResultEntry is the aggregator's computed distance and verdict.
type BoundaryResultEntry struct {
	Name          string
	Coords        *domain.Coordinate
	DistanceFt    *float64
	ClosestPoint  *domain.Coordinate
	PointLocation domain.PointLocation
	Compliance    *domain.Compliance
}

// Store is the session-scoped tank collection. All operations are idempotent
// with respect to the name key; merges referencing unknown names create the
// record rather than failing.
type Store interface {
	// UpsertByName returns the record for the name, creating it with the
	// next sequential ID if it does not exist.
	UpsertByName(name string) (domain.TankRecord, error)

	MergeConfig(entries []ConfigEntry) error
	MergeRequiredDistances(entries []RequiredDistanceEntry) error
	MergeCoordinates(entries []CoordinateEntry) error
	MergeFieldStudy(entries []FieldStudyEntry) error
	MergeBoundaryResults(entries []BoundaryResultEntry) error

	// SetMeta writes one key of the session's free-form metadata bag.
	SetMeta(key, value string) error

	// Snapshot returns the session's current state, tanks ordered by ID.
	Snapshot() (domain.SessionSnapshot, error)

	// Persist flushes to the backing medium. The document backend rewrites
	// its blob atomically; the relational backend already committed each
	// merge in its own transaction, so Persist is a no-op there.
	Persist() error

	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // BackendDocument or BackendSQLite
	Session string

	// Path is the document backend's blob location, or the sqlite file for
	// the relational backend.
	Path string
}

// Open is the backend factory. Unknown backends are a configuration error.
func Open(cfg Config) (Store, error) {
	if cfg.Session == "" {
		return nil, fmt.Errorf("store: session name is required")
	}
	switch cfg.Backend {
	case BackendDocument:
		return openDocumentStore(cfg.Session, cfg.Path)
	case BackendSQLite:
		return openSQLiteStore(cfg.Session, cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
