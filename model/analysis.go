package model

import "time"

// VisibilityAnalysis aggregates a satellite's position time series into the
// visibility metrics the filter pipeline and scoring engine consume. One is
// derived per satellite per planning cycle and discarded with the cycle.
type VisibilityAnalysis struct {
	SatelliteID            string    `json:"satellite_id"`
	TotalVisibleMinutes    float64   `json:"total_visible_time_minutes"`
	MaxElevationDeg        float64   `json:"max_elevation_deg"`
	VisiblePassCount       int       `json:"visible_passes_count"`
	AvgPassDurationMinutes float64   `json:"avg_pass_duration_minutes"`
	BestElevationTime      time.Time `json:"best_elevation_time"`
	EstimatedSignalDBm     float64   `json:"signal_strength_estimate_dbm"`

	// ClosestRangeKm is the minimum slant range over visible samples, 0
	// when the satellite is never visible.
	ClosestRangeKm float64 `json:"closest_range_km"`
}

// SatelliteScore is the composite ranking record produced by the scoring
// engine. Stages produce fresh score records; they never mutate old ones.
type SatelliteScore struct {
	SatelliteID   string        `json:"satellite_id"`
	Constellation Constellation `json:"-"`

	TotalScore float64 `json:"total_score"`

	GeographicScore float64 `json:"geographic_relevance_score"`
	OrbitalScore    float64 `json:"orbital_characteristics_score"`
	SignalScore     float64 `json:"signal_quality_score"`
	TemporalScore   float64 `json:"temporal_distribution_score"`
	VisibilityScore float64 `json:"visibility_compliance_score"`

	Rationale map[string]string `json:"scoring_rationale,omitempty"`
	Selected  bool              `json:"is_selected"`

	Visibility *VisibilityAnalysis `json:"visibility_analysis,omitempty"`
}
