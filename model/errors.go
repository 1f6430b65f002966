package model

import "errors"

// Sentinel errors shared across the planner. Per-satellite errors
// (ErrMissingData, ErrComputation) are isolated by their callers and never
// abort a batch; systemic errors (ErrNoCandidates, ErrInvalidConfig) abort
// the cycle and surface to the caller.
var (
	// ErrMissingData indicates a satellite lacks the position series a
	// stage requires. The satellite is dropped; the batch continues.
	ErrMissingData = errors.New("required position data missing")

	// ErrComputation indicates a per-satellite calculation failed. The
	// satellite is excluded with a diagnostic marker.
	ErrComputation = errors.New("per-satellite computation failed")

	// ErrPoolExhausted indicates too few backup candidates exist. It is
	// reported alongside a degraded pool, not raised as a crash.
	ErrPoolExhausted = errors.New("insufficient backup candidates")

	// ErrForecastUnavailable indicates the orbit forecaster could not
	// answer; callers degrade to a conservative fallback.
	ErrForecastUnavailable = errors.New("forecaster unavailable")

	// ErrSwitchingFailed indicates failover validation or verification
	// failed and the previous serving satellite was restored.
	ErrSwitchingFailed = errors.New("switching failed, rolled back")

	// ErrUnordered indicates a timestamped batch was not strictly ordered.
	// The batch is rejected rather than silently re-sorted.
	ErrUnordered = errors.New("position samples out of time order")

	// ErrNoCandidates indicates a cycle started with zero candidates.
	ErrNoCandidates = errors.New("no candidate satellites")

	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)
