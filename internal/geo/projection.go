package geo

import (
	"fmt"
	"math"
)

// CoordinateError reports a latitude/longitude (or planar) input the
// projector cannot handle: NaN, infinite, or outside the projection domain.
type CoordinateError struct {
	Reason string
	Lon    float64
	Lat    float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("coordinate (%v, %v): %s", e.Lon, e.Lat, e.Reason)
}

// Projector converts between WGS-84 degrees and a locally-accurate planar
// coordinate system in which one unit is one meter and Euclidean distance
// approximates ground distance.
type Projector interface {
	// ToPlanar converts WGS-84 longitude/latitude (degrees) to planar x/y (meters).
	ToPlanar(lon, lat float64) (x, y float64, err error)

	// ToWGS84 converts planar x/y (meters) back to longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64, err error)
}

// WGS-84 ellipsoid and transverse-mercator constants.
const (
	semiMajorAxis = 6378137.0          // meters
	flattening    = 1 / 298.257223563
	scaleFactor   = 0.9996             // UTM central-meridian scale
	falseEasting  = 500000.0           // meters
	falseNorthing = 10000000.0         // southern hemisphere only

	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// UTMProjector is a transverse-mercator projection on the WGS-84 ellipsoid
// for a fixed UTM zone. It is stateless and deterministic; the zone is chosen
// once per deployment region (zone 19 or 20 north for Puerto Rico). Accuracy
// of the round trip is far inside the 1e-6 degree tolerance anywhere within
// the zone's longitude band.
type UTMProjector struct {
	zone     int
	northern bool
	lon0     float64 // central meridian, radians
}

// NewUTMProjector builds a projector for the given UTM zone (1-60).
func NewUTMProjector(zone int, northern bool) (*UTMProjector, error) {
	if zone < 1 || zone > 60 {
		return nil, fmt.Errorf("utm zone %d out of range 1-60", zone)
	}
	centralMeridianDeg := float64(zone-1)*6 - 180 + 3
	return &UTMProjector{
		zone:     zone,
		northern: northern,
		lon0:     centralMeridianDeg * degToRad,
	}, nil
}

// Zone returns the configured UTM zone number.
func (p *UTMProjector) Zone() int { return p.zone }

// ToPlanar implements Projector using the Snyder series expansion for the
// transverse mercator (USGS Professional Paper 1395, eq. 8-9 through 8-15).
func (p *UTMProjector) ToPlanar(lon, lat float64) (float64, float64, error) {
	if !finite(lon) || !finite(lat) {
		return 0, 0, &CoordinateError{Reason: "not a finite number", Lon: lon, Lat: lat}
	}
	if lat < -84 || lat > 84 {
		return 0, 0, &CoordinateError{Reason: "latitude outside transverse-mercator domain", Lon: lon, Lat: lat}
	}
	if lon < -180 || lon > 180 {
		return 0, 0, &CoordinateError{Reason: "longitude outside [-180, 180]", Lon: lon, Lat: lat}
	}

	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)

	phi := lat * degToRad
	lam := lon * degToRad

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := sinPhi / cosPhi

	n := semiMajorAxis / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := (lam - p.lon0) * cosPhi

	m := meridionalArc(phi, e2)

	a2, a3 := a*a, a*a*a
	a4, a5, a6 := a2*a2, a2*a3, a3*a3

	x := falseEasting + scaleFactor*n*(a+
		(1-t+c)*a3/6+
		(5-18*t+t*t+72*c-58*ep2)*a5/120)

	y := scaleFactor * (m + n*tanPhi*(a2/2+
		(5-t+9*c+4*c*c)*a4/24+
		(61-58*t+t*t+600*c-330*ep2)*a6/720))
	if !p.northern {
		y += falseNorthing
	}

	return x, y, nil
}

// ToWGS84 implements Projector (Snyder eq. 8-17 through 8-25).
func (p *UTMProjector) ToWGS84(x, y float64) (float64, float64, error) {
	if !finite(x) || !finite(y) {
		return 0, 0, &CoordinateError{Reason: "not a finite number", Lon: x, Lat: y}
	}

	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)
	sqrtOneMinusE2 := math.Sqrt(1 - e2)
	e1 := (1 - sqrtOneMinusE2) / (1 + sqrtOneMinusE2)

	northing := y
	if !p.northern {
		northing -= falseNorthing
	}

	m := northing / scaleFactor
	mu := m / (semiMajorAxis * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1p2, e1p3, e1p4 := e1*e1, e1*e1*e1, e1*e1*e1*e1
	phi1 := mu +
		(3*e1/2-27*e1p3/32)*math.Sin(2*mu) +
		(21*e1p2/16-55*e1p4/32)*math.Sin(4*mu) +
		(151*e1p3/96)*math.Sin(6*mu) +
		(1097*e1p4/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1 := math.Sin(phi1), math.Cos(phi1)
	tanPhi1 := sinPhi1 / cosPhi1

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	oneMinusE2Sin2 := 1 - e2*sinPhi1*sinPhi1
	n1 := semiMajorAxis / math.Sqrt(oneMinusE2Sin2)
	r1 := semiMajorAxis * (1 - e2) / (oneMinusE2Sin2 * math.Sqrt(oneMinusE2Sin2))

	d := (x - falseEasting) / (n1 * scaleFactor)
	d2, d3 := d*d, d*d*d
	d4, d5, d6 := d2*d2, d2*d3, d3*d3

	phi := phi1 - (n1*tanPhi1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d6/720)

	lam := p.lon0 + (d-
		(1+2*t1+c1)*d3/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d5/120)/cosPhi1

	return lam * radToDeg, phi * radToDeg, nil
}

// meridionalArc is the distance along the meridian from the equator to
// latitude phi (Snyder eq. 3-21).
func meridionalArc(phi, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return semiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
