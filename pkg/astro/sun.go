// Package astro computes the apparent sun position for a time and place and
// converts it into the array-local light direction the simulator consumes.
package astro

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/spatial/r3"
)

// Observer is a geographic location. Longitude is east-positive degrees.
type Observer struct {
	Latitude  float64
	Longitude float64
}

// SunAltAz returns the sun's apparent altitude and azimuth in degrees for the
// given UTC time. Azimuth is measured clockwise from true north.
func SunAltAz(t time.Time, obs Observer) (altitude, azimuth float64) {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)
	st := sidereal.Apparent(jd)

	// Meeus measures geographic longitude positive west and azimuth westward
	// from south.
	phi := unit.AngleFromDeg(obs.Latitude)
	psi := unit.AngleFromDeg(-obs.Longitude)
	az, alt := coord.EqToHz(ra, dec, phi, psi, st)

	azimuth = math.Mod(az.Deg()+180, 360)
	if azimuth < 0 {
		azimuth += 360
	}
	return alt.Deg(), azimuth
}

// SunDirection returns a unit vector pointing from the array toward the sun
// in the array-local frame: +X right, +Y up, +Z rear, with the vehicle facing
// headingDeg clockwise from north and pitched nose-up by tiltDeg. It returns
// the zero vector when the sun is at or below the horizon.
func SunDirection(t time.Time, obs Observer, headingDeg, tiltDeg float64) r3.Vec {
	alt, az := SunAltAz(t, obs)
	if alt <= 0 {
		return r3.Vec{}
	}

	altRad := alt * math.Pi / 180
	// Sun azimuth relative to the vehicle's forward direction.
	relRad := (az - headingDeg) * math.Pi / 180

	v := r3.Vec{
		X: math.Sin(relRad) * math.Cos(altRad),
		Y: math.Sin(altRad),
		Z: -math.Cos(relRad) * math.Cos(altRad),
	}

	// Pitch the frame about the local X axis.
	tilt := tiltDeg * math.Pi / 180
	return r3.Vec{
		X: v.X,
		Y: v.Y*math.Cos(tilt) + v.Z*math.Sin(tilt),
		Z: -v.Y*math.Sin(tilt) + v.Z*math.Cos(tilt),
	}
}
