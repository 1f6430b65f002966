package model

import "time"

// Constellation identifies which operator a satellite belongs to.
type Constellation int

const (
	ConstellationOther Constellation = iota
	ConstellationStarlink
	ConstellationOneWeb
)

// String returns the lowercase tag used in configs, exports and metrics labels.
func (c Constellation) String() string {
	switch c {
	case ConstellationStarlink:
		return "starlink"
	case ConstellationOneWeb:
		return "oneweb"
	default:
		return "other"
	}
}

// ParseConstellation maps a config/export tag back to a Constellation.
// Unknown tags map to ConstellationOther.
func ParseConstellation(tag string) Constellation {
	switch tag {
	case "starlink":
		return ConstellationStarlink
	case "oneweb":
		return ConstellationOneWeb
	default:
		return ConstellationOther
	}
}

// Satellite is one catalog entry. It is immutable for the duration of a
// planning cycle; pipeline stages reference it but never own or mutate it.
type Satellite struct {
	ID            string
	Name          string
	Constellation Constellation

	// Orbital elements used by the geographic relevance stage.
	InclinationDeg float64
	RAANDeg        float64
	ApogeeKm       float64

	// TLE lines, when the catalog entry came from a TLE feed. Consumed by
	// the orbit source, never by the analysis core.
	TLELine1 string
	TLELine2 string
}

// PositionSample is one time-stamped topocentric observation of a satellite
// as seen from the ground location. All position data entering the planner
// is normalized to this single shape at ingestion.
type PositionSample struct {
	Timestamp    time.Time
	LatDeg       float64
	LonDeg       float64
	AltKm        float64
	ElevationDeg float64
	AzimuthDeg   float64
	RangeKm      float64
}
