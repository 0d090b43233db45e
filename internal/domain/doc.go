// Package domain models the tank-siting compliance workflow: canonical tank
// records, regulator-mandated separation distances, and the compliance verdict
// derived from comparing the two.
//
// # Data Sources
//
// Tank records are assembled from several independent pipeline stages, each
// delivering a partial view:
//
//	config_import       spreadsheet ingestion: volume, type, dike, measurements
//	placements          KMZ ingestion: WGS-84 coordinates per tank
//	required_distances  the external ASD calculator (browser automation upstream)
//	field_study         inspector metadata collected on site
//	boundary            the property-line polygon, which triggers the distance
//	                    and compliance computation for every located tank
//
// Stages arrive asynchronously and in any order. A record is created the first
// time any stage references its name; later stages fill in their own fields and
// never blank out a field another stage already populated.
//
// # ASD Conventions
//
// The Acceptable Separation Distance calculator reports up to four variants of
// the required distance, named by scenario:
//
//	asdppu   people, unprotected tank (no dike)
//	asdbpu   buildings, unprotected tank
//	asdpnpd  people, diked tank
//	asdbnpd  buildings, diked tank
//
// Values arrive as free text with an optional unit ("120 ft", "120 feet",
// "1,250"). "N/A", "--", and blank mean the calculator produced no figure for
// that scenario; those parse to null without error. Anything else that fails
// to parse is a [ParseError], recorded per row and left null rather than
// aborting the batch.
//
// # Required-Distance Selection
//
// When a tank has a dike and a diked-scenario value is present, the diked
// value governs; otherwise the unprotected value does. The selection lives in
// [requiredDistance] so the rule can be revisited in one place. See the
// decision table on [Classify] for how the verdict is derived.
//
// # Normalization
//
// Tank names are the only external key. Lookup is by trimmed, case-insensitive
// name ([NormalizeName]); "Tank A ", "tank a", and "TANK A" are one record.
package domain
