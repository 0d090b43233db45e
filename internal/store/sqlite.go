package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite database/sql driver

	"github.com/couchcryptid/tank-siting/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tanks (
	session                 TEXT    NOT NULL,
	name_key                TEXT    NOT NULL,
	id                      INTEGER NOT NULL,
	name                    TEXT    NOT NULL,
	volume_gallons          REAL,
	measurements            TEXT,
	tank_type               TEXT,
	has_dike                INTEGER,
	dike_length_ft          REAL,
	dike_width_ft           REAL,
	lat                     REAL,
	lon                     REAL,
	asdppu                  REAL,
	asdbpu                  REAL,
	asdpnpd                 REAL,
	asdbnpd                 REAL,
	max_required            REAL,
	distance_to_boundary_ft REAL,
	closest_lat             REAL,
	closest_lon             REAL,
	point_location          TEXT,
	compliance_status       TEXT,
	compliance_notes        TEXT,
	compliance_margin_ft    REAL,
	inspector               TEXT,
	contact                 TEXT,
	surveyed_at             TEXT,
	PRIMARY KEY (session, name_key)
);

CREATE TABLE IF NOT EXISTS session_meta (
	session TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (session, key)
);

CREATE TABLE IF NOT EXISTS sessions (
	session    TEXT PRIMARY KEY,
	updated_at TEXT NOT NULL
);
`

// sqliteStore normalizes the session into one row per tank plus a meta table.
// Every merge call runs in a single local transaction, which is also why
// Persist is a no-op for this backend.
type sqliteStore struct {
	db      *sqlx.DB
	session string
}

func openSQLiteStore(session, path string) (*sqliteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: apply schema: %w", err)
	}
	return &sqliteStore{db: db, session: session}, nil
}

// tankRow is the normalized row shape; nullable columns mirror the record's
// nullable fields.
type tankRow struct {
	Session          string          `db:"session"`
	NameKey          string          `db:"name_key"`
	ID               int             `db:"id"`
	Name             string          `db:"name"`
	VolumeGallons    sql.NullFloat64 `db:"volume_gallons"`
	Measurements     sql.NullString  `db:"measurements"`
	TankType         sql.NullString  `db:"tank_type"`
	HasDike          sql.NullBool    `db:"has_dike"`
	DikeLengthFt     sql.NullFloat64 `db:"dike_length_ft"`
	DikeWidthFt      sql.NullFloat64 `db:"dike_width_ft"`
	Lat              sql.NullFloat64 `db:"lat"`
	Lon              sql.NullFloat64 `db:"lon"`
	ASDPPU           sql.NullFloat64 `db:"asdppu"`
	ASDBPU           sql.NullFloat64 `db:"asdbpu"`
	ASDPNPD          sql.NullFloat64 `db:"asdpnpd"`
	ASDBNPD          sql.NullFloat64 `db:"asdbnpd"`
	MaxRequired      sql.NullFloat64 `db:"max_required"`
	DistanceFt       sql.NullFloat64 `db:"distance_to_boundary_ft"`
	ClosestLat       sql.NullFloat64 `db:"closest_lat"`
	ClosestLon       sql.NullFloat64 `db:"closest_lon"`
	PointLocation    sql.NullString  `db:"point_location"`
	ComplianceStatus sql.NullString  `db:"compliance_status"`
	ComplianceNotes  sql.NullString  `db:"compliance_notes"`
	ComplianceMargin sql.NullFloat64 `db:"compliance_margin_ft"`
	Inspector        sql.NullString  `db:"inspector"`
	Contact          sql.NullString  `db:"contact"`
	SurveyedAt       sql.NullString  `db:"surveyed_at"`
}

func recordToRow(session string, rec domain.TankRecord) (tankRow, error) {
	row := tankRow{
		Session: session,
		NameKey: domain.NormalizeName(rec.Name),
		ID:      rec.ID,
		Name:    rec.Name,

		VolumeGallons: nullFloat(rec.VolumeGallons),
		Measurements:  nullString(rec.Measurements),
		TankType:      nullString(rec.TankType),
		DistanceFt:    nullFloat(rec.DistanceToBoundaryFt),
	}
	if rec.HasDike != nil {
		row.HasDike = sql.NullBool{Bool: *rec.HasDike, Valid: true}
	}
	if rec.DikeDims != nil {
		row.DikeLengthFt = sql.NullFloat64{Float64: rec.DikeDims.LengthFt, Valid: true}
		row.DikeWidthFt = sql.NullFloat64{Float64: rec.DikeDims.WidthFt, Valid: true}
	}
	if rec.Coords != nil {
		row.Lat = sql.NullFloat64{Float64: rec.Coords.Lat, Valid: true}
		row.Lon = sql.NullFloat64{Float64: rec.Coords.Lon, Valid: true}
	}
	if rec.RequiredDistances != nil {
		row.ASDPPU = nullFloat(rec.RequiredDistances.ASDPPU)
		row.ASDBPU = nullFloat(rec.RequiredDistances.ASDBPU)
		row.ASDPNPD = nullFloat(rec.RequiredDistances.ASDPNPD)
		row.ASDBNPD = nullFloat(rec.RequiredDistances.ASDBNPD)
		row.MaxRequired = nullFloat(rec.RequiredDistances.MaxRequired)
	}
	if rec.ClosestBoundaryPoint != nil {
		row.ClosestLat = sql.NullFloat64{Float64: rec.ClosestBoundaryPoint.Lat, Valid: true}
		row.ClosestLon = sql.NullFloat64{Float64: rec.ClosestBoundaryPoint.Lon, Valid: true}
	}
	if rec.PointLocation != "" {
		row.PointLocation = sql.NullString{String: string(rec.PointLocation), Valid: true}
	}
	if rec.Compliance != nil {
		row.ComplianceStatus = sql.NullString{String: string(rec.Compliance.Status), Valid: true}
		row.ComplianceMargin = nullFloat(rec.Compliance.MarginFt)
		if len(rec.Compliance.Notes) > 0 {
			notes, err := json.Marshal(rec.Compliance.Notes)
			if err != nil {
				return tankRow{}, fmt.Errorf("encode compliance notes: %w", err)
			}
			row.ComplianceNotes = sql.NullString{String: string(notes), Valid: true}
		}
	}
	if rec.FieldStudy != nil {
		row.Inspector = sql.NullString{String: rec.FieldStudy.Inspector, Valid: true}
		row.Contact = sql.NullString{String: rec.FieldStudy.Contact, Valid: true}
		if rec.FieldStudy.SurveyedAt != nil {
			row.SurveyedAt = sql.NullString{
				String: rec.FieldStudy.SurveyedAt.UTC().Format(time.RFC3339Nano),
				Valid:  true,
			}
		}
	}
	return row, nil
}

func rowToRecord(row tankRow) (domain.TankRecord, error) {
	rec := domain.TankRecord{
		ID:   row.ID,
		Name: row.Name,

		VolumeGallons:        floatPtr(row.VolumeGallons),
		Measurements:         stringPtr(row.Measurements),
		TankType:             stringPtr(row.TankType),
		DistanceToBoundaryFt: floatPtr(row.DistanceFt),
	}
	if row.HasDike.Valid {
		v := row.HasDike.Bool
		rec.HasDike = &v
	}
	if row.DikeLengthFt.Valid && row.DikeWidthFt.Valid {
		rec.DikeDims = &domain.DikeDims{LengthFt: row.DikeLengthFt.Float64, WidthFt: row.DikeWidthFt.Float64}
	}
	if row.Lat.Valid && row.Lon.Valid {
		rec.Coords = &domain.Coordinate{Lat: row.Lat.Float64, Lon: row.Lon.Float64}
	}
	if row.ASDPPU.Valid || row.ASDBPU.Valid || row.ASDPNPD.Valid || row.ASDBNPD.Valid {
		rec.RequiredDistances = &domain.RequiredDistances{
			ASDPPU:      floatPtr(row.ASDPPU),
			ASDBPU:      floatPtr(row.ASDBPU),
			ASDPNPD:     floatPtr(row.ASDPNPD),
			ASDBNPD:     floatPtr(row.ASDBNPD),
			MaxRequired: floatPtr(row.MaxRequired),
		}
	}
	if row.ClosestLat.Valid && row.ClosestLon.Valid {
		rec.ClosestBoundaryPoint = &domain.Coordinate{Lat: row.ClosestLat.Float64, Lon: row.ClosestLon.Float64}
	}
	if row.PointLocation.Valid {
		rec.PointLocation = domain.PointLocation(row.PointLocation.String)
	}
	if row.ComplianceStatus.Valid {
		c := &domain.Compliance{
			Status:   domain.ComplianceStatus(row.ComplianceStatus.String),
			MarginFt: floatPtr(row.ComplianceMargin),
		}
		if row.ComplianceNotes.Valid {
			if err := json.Unmarshal([]byte(row.ComplianceNotes.String), &c.Notes); err != nil {
				return domain.TankRecord{}, fmt.Errorf("decode compliance notes: %w", err)
			}
		}
		rec.Compliance = c
	}
	if row.Inspector.Valid || row.Contact.Valid || row.SurveyedAt.Valid {
		fs := &domain.FieldStudy{
			Inspector: row.Inspector.String,
			Contact:   row.Contact.String,
		}
		if row.SurveyedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, row.SurveyedAt.String)
			if err != nil {
				return domain.TankRecord{}, fmt.Errorf("decode surveyed_at: %w", err)
			}
			fs.SurveyedAt = &t
		}
		rec.FieldStudy = fs
	}
	return rec, nil
}

const upsertTankSQL = `
INSERT OR REPLACE INTO tanks (
	session, name_key, id, name,
	volume_gallons, measurements, tank_type, has_dike, dike_length_ft, dike_width_ft,
	lat, lon,
	asdppu, asdbpu, asdpnpd, asdbnpd, max_required,
	distance_to_boundary_ft, closest_lat, closest_lon, point_location,
	compliance_status, compliance_notes, compliance_margin_ft,
	inspector, contact, surveyed_at
) VALUES (
	:session, :name_key, :id, :name,
	:volume_gallons, :measurements, :tank_type, :has_dike, :dike_length_ft, :dike_width_ft,
	:lat, :lon,
	:asdppu, :asdbpu, :asdpnpd, :asdbnpd, :max_required,
	:distance_to_boundary_ft, :closest_lat, :closest_lon, :point_location,
	:compliance_status, :compliance_notes, :compliance_margin_ft,
	:inspector, :contact, :surveyed_at
)`

// loadOrCreate fetches the record for a name inside the transaction, creating
// it with the next sequential ID on first reference.
func (s *sqliteStore) loadOrCreate(tx *sqlx.Tx, name string) (domain.TankRecord, error) {
	key := domain.NormalizeName(name)

	var row tankRow
	err := tx.Get(&row, `SELECT * FROM tanks WHERE session = ? AND name_key = ?`, s.session, key)
	switch {
	case err == nil:
		return rowToRecord(row)
	case !errors.Is(err, sql.ErrNoRows):
		return domain.TankRecord{}, fmt.Errorf("sqlite store: load tank %q: %w", name, err)
	}

	var nextID int
	if err := tx.Get(&nextID, `SELECT COALESCE(MAX(id), 0) + 1 FROM tanks WHERE session = ?`, s.session); err != nil {
		return domain.TankRecord{}, fmt.Errorf("sqlite store: next id: %w", err)
	}
	return domain.TankRecord{ID: nextID, Name: name}, nil
}

func (s *sqliteStore) save(tx *sqlx.Tx, rec domain.TankRecord) error {
	row, err := recordToRow(s.session, rec)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExec(upsertTankSQL, row); err != nil {
		return fmt.Errorf("sqlite store: upsert tank %q: %w", rec.Name, err)
	}
	return nil
}

func (s *sqliteStore) touch(tx *sqlx.Tx) error {
	stamp := domain.Now().UTC().Format(time.RFC3339Nano)
	_, err := tx.Exec(
		`INSERT INTO sessions (session, updated_at) VALUES (?, ?)
		 ON CONFLICT (session) DO UPDATE SET updated_at = excluded.updated_at`,
		s.session, stamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite store: touch session: %w", err)
	}
	return nil
}

// inTx runs fn inside one local transaction, the relational backend's unit of
// persistence per merge call.
func (s *sqliteStore) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpsertByName(name string) (domain.TankRecord, error) {
	var rec domain.TankRecord
	err := s.inTx(func(tx *sqlx.Tx) error {
		var err error
		if rec, err = s.loadOrCreate(tx, name); err != nil {
			return err
		}
		if err := s.save(tx, rec); err != nil {
			return err
		}
		return s.touch(tx)
	})
	return rec, err
}

// mergeEach loads, applies, and saves one record per name inside a single
// transaction shared by the whole merge call.
func (s *sqliteStore) mergeEach(names []string, apply func(i int, rec *domain.TankRecord)) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		for i, name := range names {
			rec, err := s.loadOrCreate(tx, name)
			if err != nil {
				return err
			}
			apply(i, &rec)
			if err := s.save(tx, rec); err != nil {
				return err
			}
		}
		return s.touch(tx)
	})
}

func (s *sqliteStore) MergeConfig(entries []ConfigEntry) error {
	return s.mergeEach(entryNames(entries, func(e ConfigEntry) string { return e.Name }),
		func(i int, rec *domain.TankRecord) { applyConfig(rec, entries[i]) })
}

func (s *sqliteStore) MergeRequiredDistances(entries []RequiredDistanceEntry) error {
	return s.mergeEach(entryNames(entries, func(e RequiredDistanceEntry) string { return e.Name }),
		func(i int, rec *domain.TankRecord) { applyRequiredDistances(rec, entries[i]) })
}

func (s *sqliteStore) MergeCoordinates(entries []CoordinateEntry) error {
	return s.mergeEach(entryNames(entries, func(e CoordinateEntry) string { return e.Name }),
		func(i int, rec *domain.TankRecord) { applyCoordinates(rec, entries[i]) })
}

func (s *sqliteStore) MergeFieldStudy(entries []FieldStudyEntry) error {
	return s.mergeEach(entryNames(entries, func(e FieldStudyEntry) string { return e.Name }),
		func(i int, rec *domain.TankRecord) { applyFieldStudy(rec, entries[i]) })
}

func (s *sqliteStore) MergeBoundaryResults(entries []BoundaryResultEntry) error {
	return s.mergeEach(entryNames(entries, func(e BoundaryResultEntry) string { return e.Name }),
		func(i int, rec *domain.TankRecord) { applyBoundaryResult(rec, entries[i]) })
}

func (s *sqliteStore) SetMeta(key, value string) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO session_meta (session, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (session, key) DO UPDATE SET value = excluded.value`,
			s.session, key, value,
		)
		if err != nil {
			return fmt.Errorf("sqlite store: set meta %q: %w", key, err)
		}
		return s.touch(tx)
	})
}

func (s *sqliteStore) Snapshot() (domain.SessionSnapshot, error) {
	snap := domain.SessionSnapshot{Session: s.session, Tanks: []domain.TankRecord{}}

	var rows []tankRow
	if err := s.db.Select(&rows, `SELECT * FROM tanks WHERE session = ? ORDER BY id`, s.session); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("sqlite store: snapshot tanks: %w", err)
	}
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return domain.SessionSnapshot{}, err
		}
		snap.Tanks = append(snap.Tanks, rec)
	}

	type metaRow struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	var meta []metaRow
	if err := s.db.Select(&meta, `SELECT key, value FROM session_meta WHERE session = ?`, s.session); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("sqlite store: snapshot meta: %w", err)
	}
	if len(meta) > 0 {
		snap.Meta = make(map[string]string, len(meta))
		for _, m := range meta {
			snap.Meta[m.Key] = m.Value
		}
	}

	var stamp string
	err := s.db.Get(&stamp, `SELECT updated_at FROM sessions WHERE session = ?`, s.session)
	switch {
	case err == nil:
		t, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return domain.SessionSnapshot{}, fmt.Errorf("sqlite store: decode updated_at: %w", err)
		}
		snap.UpdatedAt = t
	case !errors.Is(err, sql.ErrNoRows):
		return domain.SessionSnapshot{}, fmt.Errorf("sqlite store: snapshot session: %w", err)
	}

	return snap, nil
}

// Persist is a no-op: every merge call already committed its own transaction.
func (s *sqliteStore) Persist() error { return nil }

func (s *sqliteStore) Close() error { return s.db.Close() }

func entryNames[E any](entries []E, name func(E) string) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = name(e)
	}
	return names
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}
