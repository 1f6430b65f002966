package core

import (
	"math"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// RadioProfile carries the RF assumptions used by the RSRP estimator.
// The constants are deliberately conservative; they exist to derive a
// monotonic elevation/distance vs. quality relationship, not an
// engineering-grade link budget.
type RadioProfile struct {
	FrequencyGHz   float64
	TxPowerDBm     float64
	AntennaGainDBi float64
}

// DefaultRadioProfile returns the Ku-band profile assumed for a
// constellation's downlink.
func DefaultRadioProfile(c model.Constellation) RadioProfile {
	p := RadioProfile{
		FrequencyGHz:   12.0,
		TxPowerDBm:     43.0,
		AntennaGainDBi: 35.0,
	}
	if c == model.ConstellationOneWeb {
		// OneWeb's higher shell trades slightly more EIRP for range.
		p.TxPowerDBm = 44.0
	}
	return p
}

// atmosphericLossDB is a fixed clear-sky attenuation assumption.
const atmosphericLossDB = 2.0

// EstimateRSRP estimates received power in dBm for a satellite at the given
// elevation and slant range. Pure function: free-space path loss plus an
// elevation-loss correction and fixed atmospheric loss.
func EstimateRSRP(elevationDeg, rangeKm float64, c model.Constellation) float64 {
	if rangeKm < 1 {
		rangeKm = 1
	}
	p := DefaultRadioProfile(c)

	// Free-space path loss: 32.44 + 20 log10(f_GHz) + 20 log10(d_km).
	fspl := 32.44 + 20*math.Log10(p.FrequencyGHz) + 20*math.Log10(rangeKm)

	// Below the horizon the elevation correction dominates everything.
	elevationLoss := 50.0
	if elevationDeg > 0 {
		elevationLoss = math.Max(0, (90-elevationDeg)*0.1)
	}

	return p.TxPowerDBm + p.AntennaGainDBi - fspl - elevationLoss - atmosphericLossDB
}
