package core

import (
	"testing"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

func TestEstimateRSRP_MonotonicInRange(t *testing.T) {
	near := EstimateRSRP(45, 600, model.ConstellationStarlink)
	far := EstimateRSRP(45, 1800, model.ConstellationStarlink)

	if near <= far {
		t.Errorf("closer satellite should be stronger: near=%.1f far=%.1f", near, far)
	}
}

func TestEstimateRSRP_MonotonicInElevation(t *testing.T) {
	high := EstimateRSRP(80, 800, model.ConstellationStarlink)
	low := EstimateRSRP(10, 800, model.ConstellationStarlink)

	if high <= low {
		t.Errorf("higher elevation should be stronger: high=%.1f low=%.1f", high, low)
	}
}

func TestEstimateRSRP_BelowHorizonPenalty(t *testing.T) {
	above := EstimateRSRP(1, 1200, model.ConstellationStarlink)
	below := EstimateRSRP(0, 1200, model.ConstellationStarlink)

	if below >= above-30 {
		t.Errorf("at/below horizon should carry the full 50 dB penalty: above=%.1f below=%.1f", above, below)
	}
}

func TestEstimateRSRP_TypicalServingRange(t *testing.T) {
	// A healthy overhead pass should comfortably clear the -110 dBm
	// admission threshold used by stage 5.
	got := EstimateRSRP(60, 700, model.ConstellationStarlink)
	if got < -110 {
		t.Errorf("typical serving geometry should pass the RSRP threshold, got %.1f dBm", got)
	}
}
