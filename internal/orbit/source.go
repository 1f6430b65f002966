package orbit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/leo-serving-planner/core"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// SamplePeriod is the fixed cadence of the position feed.
const SamplePeriod = 30 * time.Second

// TimeRange bounds a position series request. End is inclusive.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Prediction is a single forecast point for one satellite.
type Prediction struct {
	Time         time.Time
	ElevationDeg float64
	AzimuthDeg   float64
	RangeKm      float64
}

// Source supplies position time series and optional short-horizon
// predictions. Positions are mandatory: a satellite without data is a hard
// rejection. Predict is best-effort: callers degrade to a conservative
// fallback when it errors.
type Source interface {
	Positions(ctx context.Context, satelliteID string, tr TimeRange) ([]model.PositionSample, error)
	Predict(ctx context.Context, satelliteID string, at time.Time) (Prediction, error)
}

// SGP4Source propagates TLE-backed catalog entries with go-satellite and
// converts each point to the canonical topocentric PositionSample for the
// configured observer.
type SGP4Source struct {
	observerLat  float64
	observerLon  float64
	observerECEF core.Vec3

	mu   sync.RWMutex
	sats map[string]satellite.Satellite
}

// NewSGP4Source builds a source for the given observer and catalog.
// Entries without TLE lines are skipped; they will surface later as
// missing-data rejections, which is the correct signal.
func NewSGP4Source(observerLat, observerLon float64, catalog []model.Satellite) *SGP4Source {
	s := &SGP4Source{
		observerLat:  observerLat,
		observerLon:  observerLon,
		observerECEF: core.GeodeticToECEF(observerLat, observerLon, 0),
		sats:         make(map[string]satellite.Satellite, len(catalog)),
	}
	for _, sat := range catalog {
		if sat.TLELine1 == "" || sat.TLELine2 == "" {
			continue
		}
		s.sats[sat.ID] = satellite.TLEToSat(sat.TLELine1, sat.TLELine2, satellite.GravityWGS72)
	}
	return s
}

// Upsert installs or replaces the propagator entry for sat, keeping the
// source in step with catalog changes. An entry without TLE lines is
// evicted: a stale element set is worse than a missing one.
func (s *SGP4Source) Upsert(sat model.Satellite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sat.TLELine1 == "" || sat.TLELine2 == "" {
		delete(s.sats, sat.ID)
		return
	}
	s.sats[sat.ID] = satellite.TLEToSat(sat.TLELine1, sat.TLELine2, satellite.GravityWGS72)
}

// Remove drops the propagator entry for id. Unknown IDs are a no-op.
func (s *SGP4Source) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sats, id)
}

// Positions propagates the satellite across the range at the fixed cadence.
func (s *SGP4Source) Positions(ctx context.Context, satelliteID string, tr TimeRange) ([]model.PositionSample, error) {
	s.mu.RLock()
	sat, ok := s.sats[satelliteID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("satellite %s: %w", satelliteID, model.ErrMissingData)
	}
	if tr.End.Before(tr.Start) {
		return nil, fmt.Errorf("satellite %s: inverted time range: %w", satelliteID, model.ErrMissingData)
	}

	n := int(tr.End.Sub(tr.Start)/SamplePeriod) + 1
	samples := make([]model.PositionSample, 0, n)
	for t := tr.Start; !t.After(tr.End); t = t.Add(SamplePeriod) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples = append(samples, s.sampleAt(sat, t))
	}
	return samples, nil
}

// Predict propagates a single future point.
func (s *SGP4Source) Predict(ctx context.Context, satelliteID string, at time.Time) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	s.mu.RLock()
	sat, ok := s.sats[satelliteID]
	s.mu.RUnlock()
	if !ok {
		return Prediction{}, fmt.Errorf("satellite %s: %w", satelliteID, model.ErrForecastUnavailable)
	}
	p := s.sampleAt(sat, at)
	return Prediction{
		Time:         at,
		ElevationDeg: p.ElevationDeg,
		AzimuthDeg:   p.AzimuthDeg,
		RangeKm:      p.RangeKm,
	}, nil
}

func (s *SGP4Source) sampleAt(sat satellite.Satellite, t time.Time) model.PositionSample {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	ecef := core.Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	r := ecef.Norm()
	latDeg := math.Asin(ecef.Z/r) * 180 / math.Pi
	lonDeg := math.Atan2(ecef.Y, ecef.X) * 180 / math.Pi
	altKm := r - core.EarthRadiusKm

	return model.PositionSample{
		Timestamp:    t,
		LatDeg:       latDeg,
		LonDeg:       lonDeg,
		AltKm:        altKm,
		ElevationDeg: core.ElevationDegrees(s.observerECEF, ecef),
		AzimuthDeg:   s.azimuthTo(latDeg, lonDeg),
		RangeKm:      s.observerECEF.Sub(ecef).Norm(),
	}
}

// azimuthTo returns the compass bearing from the observer to the
// sub-satellite point, degrees clockwise from north.
func (s *SGP4Source) azimuthTo(latDeg, lonDeg float64) float64 {
	lat1 := s.observerLat * math.Pi / 180
	lat2 := latDeg * math.Pi / 180
	dLon := (lonDeg - s.observerLon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	az := math.Atan2(y, x) * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	return az
}
