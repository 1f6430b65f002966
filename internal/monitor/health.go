package monitor

import (
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Health grading thresholds below the configured degraded/offline floors.
const (
	degradedSignalDBm    = -90.0
	degradedElevationDeg = 10.0

	// Health score weighting: signal dominates elevation.
	healthSignalWeight    = 0.7
	healthElevationWeight = 0.3
)

// HealthAssessment grades one monitored satellite from its latest reading.
type HealthAssessment struct {
	SatelliteID   string                `json:"satellite_id"`
	Constellation model.Constellation   `json:"-"`
	Status        model.SatelliteHealth `json:"health_status"`
	SignalDBm     float64               `json:"signal_strength"`
	ElevationDeg  float64               `json:"elevation_angle"`
	Score         float64               `json:"health_score"`
}

// ConstellationHealth aggregates health grades per constellation.
type ConstellationHealth struct {
	Total    int     `json:"total_satellites"`
	Healthy  int     `json:"healthy_count"`
	Degraded int     `json:"degraded_count"`
	Critical int     `json:"critical_count"`
	Offline  int     `json:"offline_count"`
	Score    float64 `json:"health_score"`
}

// assessFleet grades the latest reading per satellite and rolls the grades
// up per constellation. The batch is in timestamp order, so a later reading
// for the same satellite supersedes an earlier one.
func (m *Monitor) assessFleet(readings []Reading) ([]HealthAssessment, map[model.Constellation]ConstellationHealth) {
	latest := make(map[string]Reading, len(readings))
	order := make([]string, 0, len(readings))
	for _, r := range readings {
		if _, ok := latest[r.SatelliteID]; !ok {
			order = append(order, r.SatelliteID)
		}
		latest[r.SatelliteID] = r
	}

	assessments := make([]HealthAssessment, 0, len(order))
	perConstellation := make(map[model.Constellation]ConstellationHealth)
	for _, id := range order {
		h := m.assessHealth(latest[id])
		assessments = append(assessments, h)

		agg := perConstellation[h.Constellation]
		agg.Total++
		switch h.Status {
		case model.HealthHealthy:
			agg.Healthy++
		case model.HealthDegraded:
			agg.Degraded++
		case model.HealthCritical:
			agg.Critical++
		case model.HealthOffline:
			agg.Offline++
		}
		perConstellation[h.Constellation] = agg
	}
	for con, agg := range perConstellation {
		if agg.Total > 0 {
			agg.Score = float64(agg.Healthy) / float64(agg.Total)
		}
		perConstellation[con] = agg
	}
	return assessments, perConstellation
}

func (m *Monitor) assessHealth(r Reading) HealthAssessment {
	var status model.SatelliteHealth
	switch {
	case r.SignalDBm <= m.cfg.SatelliteOfflineDBm:
		status = model.HealthOffline
	case r.SignalDBm <= m.cfg.SignalDegradedDBm:
		status = model.HealthCritical
	case r.SignalDBm <= degradedSignalDBm || r.ElevationDeg <= degradedElevationDeg:
		status = model.HealthDegraded
	default:
		status = model.HealthHealthy
	}
	return HealthAssessment{
		SatelliteID:   r.SatelliteID,
		Constellation: r.Constellation,
		Status:        status,
		SignalDBm:     r.SignalDBm,
		ElevationDeg:  r.ElevationDeg,
		Score:         healthScore(r.SignalDBm, r.ElevationDeg),
	}
}

// healthScore normalizes signal (-140..-60 dBm) and elevation (0..90 deg)
// into a weighted 0..1 grade.
func healthScore(signalDBm, elevationDeg float64) float64 {
	signal := clamp01((signalDBm + 140) / 80)
	elevation := clamp01(elevationDeg / 90)
	return healthSignalWeight*signal + healthElevationWeight*elevation
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
