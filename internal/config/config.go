package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// ConstellationParams holds the admission thresholds for one constellation.
type ConstellationParams struct {
	OptimalInclinationDeg float64 `json:"optimal_inclination"`
	OptimalAltitudeKm     float64 `json:"optimal_altitude"`
	MinElevationDeg       float64 `json:"min_elevation_deg"`
	MinVisibleTimeMin     float64 `json:"min_visible_time_min"`
	MinVisiblePasses      int     `json:"min_visible_passes"`
	TargetCandidateCount  int     `json:"target_candidate_count"`
	RSRPThresholdDBm      float64 `json:"rsrp_threshold_dbm"`
	MaxDistanceKm         float64 `json:"max_distance_km"`
}

// PoolParams bounds the backup pool lifecycle.
type PoolParams struct {
	MinPoolSize      int     `json:"min_pool_size"`
	MaxPoolSize      int     `json:"max_pool_size"`
	TargetPoolSize   int     `json:"target_pool_size"`
	RedundancyFactor float64 `json:"redundancy_factor"`
}

// MonitorParams holds the coverage monitor thresholds.
type MonitorParams struct {
	IntervalSeconds          int     `json:"monitoring_interval_seconds"`
	PredictionHorizonMinutes int     `json:"prediction_horizon_minutes"`
	CoverageWarning          float64 `json:"coverage_warning"`
	CoverageCritical         float64 `json:"coverage_critical"`
	GapWarningSeconds        int     `json:"gap_warning_seconds"`
	GapCriticalSeconds       int     `json:"gap_critical_seconds"`
	SignalDegradedDBm        float64 `json:"signal_degraded_threshold"`
	SatelliteOfflineDBm      float64 `json:"satellite_offline_threshold"`
}

// Observer is the fixed ground location the planner serves.
type Observer struct {
	LatDeg float64 `json:"latitude"`
	LonDeg float64 `json:"longitude"`
	Name   string  `json:"location_name"`
}

// Config is the full planner configuration surface.
type Config struct {
	Observer       Observer                       `json:"observer"`
	Constellations map[string]ConstellationParams `json:"constellations"`
	Pool           PoolParams                     `json:"pool_management"`
	Monitor        MonitorParams                  `json:"monitoring"`

	// Workers caps the per-satellite analysis fan-out.
	Workers int `json:"workers"`
}

// Default returns the planner defaults: Starlink and OneWeb thresholds as
// deployed, a six-satellite backup pool bounded [3,12], and the standard
// 30 s monitoring tick.
func Default() Config {
	return Config{
		Observer: Observer{LatDeg: 24.9441667, LonDeg: 121.3713889, Name: "NTPU"},
		Constellations: map[string]ConstellationParams{
			"starlink": {
				OptimalInclinationDeg: 53.0,
				OptimalAltitudeKm:     550.0,
				MinElevationDeg:       5.0,
				MinVisibleTimeMin:     15.0,
				MinVisiblePasses:      3,
				TargetCandidateCount:  450,
				RSRPThresholdDBm:      -110.0,
				MaxDistanceKm:         2000.0,
			},
			"oneweb": {
				OptimalInclinationDeg: 87.4,
				OptimalAltitudeKm:     1200.0,
				MinElevationDeg:       10.0,
				MinVisibleTimeMin:     15.0,
				MinVisiblePasses:      3,
				TargetCandidateCount:  113,
				RSRPThresholdDBm:      -110.0,
				MaxDistanceKm:         2000.0,
			},
		},
		Pool: PoolParams{
			MinPoolSize:      3,
			MaxPoolSize:      12,
			TargetPoolSize:   6,
			RedundancyFactor: 1.2,
		},
		Monitor: MonitorParams{
			IntervalSeconds:          30,
			PredictionHorizonMinutes: 10,
			CoverageWarning:          0.93,
			CoverageCritical:         0.90,
			GapWarningSeconds:        90,
			GapCriticalSeconds:       120,
			SignalDegradedDBm:        -100.0,
			SatelliteOfflineDBm:      -140.0,
		},
		Workers: 8,
	}
}

// Load reads a JSON config from r layered over the defaults, then validates.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads and validates the config at path; an empty path returns
// validated defaults.
func LoadFile(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks the invariants the planner relies on. A broken config is
// a systemic error: the cycle must not start.
func (c Config) Validate() error {
	if c.Observer.LatDeg < -90 || c.Observer.LatDeg > 90 {
		return fmt.Errorf("%w: observer latitude %.4f out of range", model.ErrInvalidConfig, c.Observer.LatDeg)
	}
	if c.Observer.LonDeg < -180 || c.Observer.LonDeg > 180 {
		return fmt.Errorf("%w: observer longitude %.4f out of range", model.ErrInvalidConfig, c.Observer.LonDeg)
	}
	if len(c.Constellations) == 0 {
		return fmt.Errorf("%w: no constellations configured", model.ErrInvalidConfig)
	}
	for tag, p := range c.Constellations {
		if p.MinElevationDeg < 0 || p.MinElevationDeg >= 90 {
			return fmt.Errorf("%w: %s min_elevation_deg %.1f", model.ErrInvalidConfig, tag, p.MinElevationDeg)
		}
		if p.TargetCandidateCount <= 0 {
			return fmt.Errorf("%w: %s target_candidate_count must be positive", model.ErrInvalidConfig, tag)
		}
		if p.MinVisiblePasses < 0 {
			return fmt.Errorf("%w: %s min_visible_passes must be non-negative", model.ErrInvalidConfig, tag)
		}
	}
	if c.Pool.MinPoolSize <= 0 || c.Pool.MaxPoolSize < c.Pool.MinPoolSize {
		return fmt.Errorf("%w: pool size bounds [%d,%d]", model.ErrInvalidConfig, c.Pool.MinPoolSize, c.Pool.MaxPoolSize)
	}
	if c.Pool.TargetPoolSize < c.Pool.MinPoolSize || c.Pool.TargetPoolSize > c.Pool.MaxPoolSize {
		return fmt.Errorf("%w: target pool size %d outside [%d,%d]", model.ErrInvalidConfig, c.Pool.TargetPoolSize, c.Pool.MinPoolSize, c.Pool.MaxPoolSize)
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: monitoring interval must be positive", model.ErrInvalidConfig)
	}
	if c.Monitor.GapCriticalSeconds < c.Monitor.GapWarningSeconds {
		return fmt.Errorf("%w: gap_critical_seconds < gap_warning_seconds", model.ErrInvalidConfig)
	}
	if c.Monitor.CoverageCritical > c.Monitor.CoverageWarning {
		return fmt.Errorf("%w: coverage_critical above coverage_warning", model.ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", model.ErrInvalidConfig)
	}
	return nil
}

// ParamsFor returns the thresholds for a constellation. Satellites from
// unconfigured constellations cannot be admitted.
func (c Config) ParamsFor(con model.Constellation) (ConstellationParams, bool) {
	p, ok := c.Constellations[con.String()]
	return p, ok
}

// MonitorInterval returns the monitor tick period.
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}
