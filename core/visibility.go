package core

import (
	"fmt"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// SignalModel estimates received power for a visible sample. The analyzer
// treats it as opaque; EstimateRSRP is the production implementation.
type SignalModel func(elevationDeg, rangeKm float64, c model.Constellation) float64

// noSignalFloorDBm is reported when a satellite is never visible, instead
// of failing the analysis.
const noSignalFloorDBm = -150.0

// VisibilityAnalyzer reduces an ordered position time series into aggregate
// visibility metrics for one satellite.
type VisibilityAnalyzer struct {
	// SampleCadenceMinutes is how much visible time one sample represents.
	// The 30 s feed cadence gives 0.5 minutes per sample.
	SampleCadenceMinutes float64
	Signal               SignalModel
}

// NewVisibilityAnalyzer returns an analyzer for the standard 30 s cadence.
func NewVisibilityAnalyzer() *VisibilityAnalyzer {
	return &VisibilityAnalyzer{
		SampleCadenceMinutes: 0.5,
		Signal:               EstimateRSRP,
	}
}

// Analyze walks the time series in order and produces the satellite's
// VisibilityAnalysis. A sample is visible iff its elevation is at or above
// minElevationDeg. A pass is a maximal contiguous run of visible samples;
// an open pass is closed at sequence end.
//
// Samples must be in strictly increasing timestamp order; out-of-order or
// duplicate timestamps reject the whole series rather than guessing.
func (a *VisibilityAnalyzer) Analyze(sat *model.Satellite, samples []model.PositionSample, minElevationDeg float64) (*model.VisibilityAnalysis, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("satellite %s: %w", sat.ID, model.ErrMissingData)
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i].Timestamp.After(samples[i-1].Timestamp) {
			return nil, fmt.Errorf("satellite %s: sample %d: %w", sat.ID, i, model.ErrUnordered)
		}
	}

	analysis := &model.VisibilityAnalysis{
		SatelliteID:     sat.ID,
		MaxElevationDeg: -90,
	}

	var (
		passDurations []float64
		signalSum     float64
		signalCount   int
		inPass        bool
		passMinutes   float64
	)

	for _, s := range samples {
		if s.ElevationDeg < minElevationDeg {
			if inPass {
				analysis.VisiblePassCount++
				passDurations = append(passDurations, passMinutes)
				inPass = false
				passMinutes = 0
			}
			continue
		}

		if s.ElevationDeg > analysis.MaxElevationDeg {
			analysis.MaxElevationDeg = s.ElevationDeg
			analysis.BestElevationTime = s.Timestamp
		}

		analysis.TotalVisibleMinutes += a.SampleCadenceMinutes
		signalSum += a.Signal(s.ElevationDeg, s.RangeKm, sat.Constellation)
		signalCount++
		if s.RangeKm > 0 && (analysis.ClosestRangeKm == 0 || s.RangeKm < analysis.ClosestRangeKm) {
			analysis.ClosestRangeKm = s.RangeKm
		}

		if !inPass {
			inPass = true
		}
		passMinutes += a.SampleCadenceMinutes
	}
	if inPass {
		analysis.VisiblePassCount++
		passDurations = append(passDurations, passMinutes)
	}

	if len(passDurations) > 0 {
		total := 0.0
		for _, d := range passDurations {
			total += d
		}
		analysis.AvgPassDurationMinutes = total / float64(len(passDurations))
	}

	if signalCount > 0 {
		analysis.EstimatedSignalDBm = signalSum / float64(signalCount)
	} else {
		analysis.EstimatedSignalDBm = noSignalFloorDBm
	}

	return analysis, nil
}
