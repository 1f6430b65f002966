package core

import (
	"fmt"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Scoring weights. Visibility time dominates because serving-set membership
// is first and foremost about how long a satellite can actually serve.
const (
	weightVisibility = 0.40
	weightElevation  = 0.25
	weightSignal     = 0.20
	weightContinuity = 0.15

	// fullCreditVisibleMinutes is the visible time that earns the full
	// visibility component.
	fullCreditVisibleMinutes = 30.0
)

// Score computes the weighted composite score for a satellite from its
// visibility analysis. It is deterministic and side-effect-free so callers
// can re-invoke it for ranking without re-deriving visibility.
func Score(sat *model.Satellite, v *model.VisibilityAnalysis) model.SatelliteScore {
	visibilityScore := clamp100(v.TotalVisibleMinutes / fullCreditVisibleMinutes * 100)
	elevationScore := clamp100(v.MaxElevationDeg * 2)
	signalScore := clamp100((v.EstimatedSignalDBm + 120) * 2)
	continuityScore := clamp100(float64(v.VisiblePassCount) * 20)

	total := visibilityScore*weightVisibility +
		elevationScore*weightElevation +
		signalScore*weightSignal +
		continuityScore*weightContinuity

	return model.SatelliteScore{
		SatelliteID:     sat.ID,
		Constellation:   sat.Constellation,
		TotalScore:      total,
		OrbitalScore:    elevationScore,
		SignalScore:     signalScore,
		TemporalScore:   continuityScore,
		VisibilityScore: visibilityScore,
		Rationale: map[string]string{
			"visibility_analysis": fmt.Sprintf("%.1f visible minutes, max elevation %.1f°", v.TotalVisibleMinutes, v.MaxElevationDeg),
			"signal_analysis":     fmt.Sprintf("estimated RSRP %.1f dBm", v.EstimatedSignalDBm),
			"continuity_analysis": fmt.Sprintf("%d passes, avg %.1f minutes", v.VisiblePassCount, v.AvgPassDurationMinutes),
		},
		Visibility: v,
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
