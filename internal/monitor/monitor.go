// Package monitor watches the serving picture in real time. Each tick it
// computes the instantaneous coverage rate, detects coverage gaps over a
// strictly-ordered sample stream, forecasts near-term coverage, grades
// per-satellite health, and routes alerts through the dispatcher.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/internal/alerts"
	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// A reading counts toward coverage when the satellite sits above the
// elevation mask with a usable signal.
const (
	coverageMinElevationDeg = 5.0
	coverageSignalFloorDBm  = -120.0
)

// Fixed status bands. These classify the picture; the alerting thresholds
// in config.MonitorParams decide when to page.
const (
	statusExcellentRate = 0.95
	statusGoodRate      = 0.90
	statusFairRate      = 0.85
)

// GapSatelliteID tags alerts raised for coverage gaps, including the
// zero-covering-satellites case.
const GapSatelliteID = "coverage_gap"

// Reading is one timestamped observation of a monitored satellite as seen
// from the ground location.
type Reading struct {
	SatelliteID   string              `json:"satellite_id"`
	Constellation model.Constellation `json:"-"`
	Timestamp     time.Time           `json:"timestamp"`
	ElevationDeg  float64             `json:"elevation_deg"`
	SignalDBm     float64             `json:"rsrp_dbm"`
}

// Covered reports whether the reading counts toward coverage.
func (r Reading) Covered() bool {
	return r.ElevationDeg > coverageMinElevationDeg && r.SignalDBm > coverageSignalFloorDBm
}

// Gap is a contiguous run of low-coverage samples long enough to report.
type Gap struct {
	Start    time.Time        `json:"start_time"`
	End      time.Time        `json:"end_time"`
	Samples  int              `json:"sample_count"`
	Duration time.Duration    `json:"duration"`
	Severity model.AlertLevel `json:"severity"`
}

// Report is the outcome of one monitoring tick.
type Report struct {
	Timestamp          time.Time
	TotalSatellites    int
	CoveringSatellites int
	CoverageRate       float64
	Status             model.CoverageStatus
	Gaps               []Gap
	Forecast           Forecast
	Health             []HealthAssessment
	Constellations     map[model.Constellation]ConstellationHealth

	// ForecastCacheHitRatio is the cumulative hit ratio of the orbit
	// prediction cache, for the metrics gauge.
	ForecastCacheHitRatio float64
}

// Feed supplies the readings for one tick. Implementations must return the
// samples in strict timestamp order.
type Feed func(ctx context.Context, at time.Time) ([]Reading, error)

// Monitor runs the real-time coverage loop.
type Monitor struct {
	cfg        config.MonitorParams
	source     orbit.Source
	dispatcher *alerts.Dispatcher
	log        logging.Logger
	now        func() time.Time
	cache      *forecastCache
	onReport   func(*Report)
}

// Option adjusts monitor construction.
type Option func(*Monitor)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now; m.cache.now = now }
}

// WithReportHook registers a callback invoked with every report the run
// loop produces, for metric and health wiring.
func WithReportHook(fn func(*Report)) Option {
	return func(m *Monitor) { m.onReport = fn }
}

// WithForecastTTL overrides how long cached orbit predictions stay fresh.
func WithForecastTTL(ttl time.Duration) Option {
	return func(m *Monitor) {
		if ttl > 0 {
			m.cache.ttl = ttl
		}
	}
}

// New builds a Monitor. source may be nil, in which case every forecast
// uses the conservative fallback.
func New(cfg config.MonitorParams, source orbit.Source, dispatcher *alerts.Dispatcher, log logging.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = logging.Noop()
	}
	m := &Monitor{
		cfg:        cfg,
		source:     source,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
		cache:      newForecastCache(time.Duration(cfg.IntervalSeconds)*time.Second, time.Now),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the tick period.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.cfg.IntervalSeconds) * time.Second
}

// Run ticks the monitor until ctx is cancelled. A tick that overruns the
// interval is logged and the missed ticks are dropped, never queued.
func (m *Monitor) Run(ctx context.Context, feed Feed) error {
	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := m.now()
			readings, err := feed(ctx, start)
			if err != nil {
				m.log.Warn(ctx, "monitor feed failed", logging.Err(err))
				continue
			}
			report, err := m.Tick(ctx, readings)
			if err != nil {
				m.log.Warn(ctx, "monitor tick rejected", logging.Err(err))
			} else if m.onReport != nil {
				m.onReport(report)
			}
			if elapsed := m.now().Sub(start); elapsed > m.Interval() {
				m.log.Warn(ctx, "monitor tick overran interval, dropping missed ticks",
					logging.Duration("elapsed", elapsed),
					logging.Duration("interval", m.Interval()))
			}
		}
	}
}

// Tick evaluates one batch of readings. The batch must be in strict
// timestamp order; an ill-ordered batch is rejected with ErrUnordered
// rather than re-sorted. An empty batch produces an empty report and no
// alerts.
func (m *Monitor) Tick(ctx context.Context, readings []Reading) (*Report, error) {
	now := m.now().UTC()
	if len(readings) == 0 {
		m.log.Warn(ctx, "monitor tick with no readings")
		return &Report{Timestamp: now, Status: model.CoveragePoor}, nil
	}

	gaps, err := m.DetectGaps(readings)
	if err != nil {
		return nil, err
	}

	covering := 0
	for _, r := range readings {
		if r.Covered() {
			covering++
		}
	}
	rate := float64(covering) / float64(len(readings))

	criticalGaps := 0
	for _, g := range gaps {
		if g.Severity == model.AlertCritical {
			criticalGaps++
		}
	}

	health, perConstellation := m.assessFleet(readings)

	report := &Report{
		Timestamp:          now,
		TotalSatellites:    len(readings),
		CoveringSatellites: covering,
		CoverageRate:       rate,
		Status:             evaluateStatus(rate, criticalGaps),
		Gaps:               gaps,
		Forecast:           m.forecast(ctx, now, rate, satelliteIDs(readings)),
		Health:             health,
		Constellations:     perConstellation,
	}
	report.ForecastCacheHitRatio = m.cache.hitRatio()

	m.log.Info(ctx, "coverage tick",
		logging.Float64("coverage_rate", rate),
		logging.Int("covering", covering),
		logging.Int("total", len(readings)),
		logging.String("status", string(report.Status)),
		logging.Int("gaps", len(gaps)))

	m.publishAlerts(ctx, report)
	return report, nil
}

// DetectGaps scans a timestamped sample stream for contiguous low-coverage
// runs. The stream must be strictly ordered with no zero timestamps;
// anything else returns ErrUnordered. Run duration is sample count times
// the monitoring interval; runs shorter than the warning threshold are
// dropped.
func (m *Monitor) DetectGaps(series []Reading) ([]Gap, error) {
	interval := m.Interval()
	warn := time.Duration(m.cfg.GapWarningSeconds) * time.Second
	crit := time.Duration(m.cfg.GapCriticalSeconds) * time.Second

	var gaps []Gap
	var runStart, runEnd time.Time
	runLen := 0

	flush := func() {
		if runLen == 0 {
			return
		}
		d := time.Duration(runLen) * interval
		if d >= warn {
			g := Gap{Start: runStart, End: runEnd, Samples: runLen, Duration: d, Severity: model.AlertWarning}
			if d >= crit {
				g.Severity = model.AlertCritical
			}
			gaps = append(gaps, g)
		}
		runLen = 0
	}

	var prev time.Time
	for i, r := range series {
		if r.Timestamp.IsZero() {
			return nil, fmt.Errorf("sample %d (%s) has no timestamp: %w", i, r.SatelliteID, model.ErrUnordered)
		}
		if i > 0 && !r.Timestamp.After(prev) {
			return nil, fmt.Errorf("sample %d (%s) at %s not after %s: %w",
				i, r.SatelliteID, r.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339), model.ErrUnordered)
		}
		prev = r.Timestamp

		if r.Covered() {
			flush()
			continue
		}
		if runLen == 0 {
			runStart = r.Timestamp
		}
		runEnd = r.Timestamp
		runLen++
	}
	flush()
	return gaps, nil
}

func evaluateStatus(rate float64, criticalGaps int) model.CoverageStatus {
	switch {
	case rate >= statusExcellentRate && criticalGaps == 0:
		return model.CoverageExcellent
	case rate >= statusGoodRate && criticalGaps <= 1:
		return model.CoverageGood
	case rate >= statusFairRate:
		return model.CoverageFair
	default:
		return model.CoveragePoor
	}
}

func (m *Monitor) publishAlerts(ctx context.Context, report *Report) {
	if m.dispatcher == nil {
		return
	}

	switch {
	case report.CoverageRate < m.cfg.CoverageCritical:
		m.dispatcher.Publish(ctx, model.CoverageAlert{
			Level:       model.AlertCritical,
			SatelliteID: model.SystemWide,
			Description: fmt.Sprintf("coverage rate %.1f%% below critical threshold %.1f%%",
				report.CoverageRate*100, m.cfg.CoverageCritical*100),
			RecommendedAction: "activate backup satellites immediately",
			AutoResolvable:    true,
		})
	case report.CoverageRate < m.cfg.CoverageWarning:
		m.dispatcher.Publish(ctx, model.CoverageAlert{
			Level:       model.AlertWarning,
			SatelliteID: model.SystemWide,
			Description: fmt.Sprintf("coverage rate %.1f%% below warning threshold %.1f%%",
				report.CoverageRate*100, m.cfg.CoverageWarning*100),
			RecommendedAction: "review backup pool readiness",
		})
	}

	if report.CoveringSatellites == 0 {
		m.dispatcher.Publish(ctx, model.CoverageAlert{
			Level:             model.AlertCritical,
			SatelliteID:       GapSatelliteID,
			Description:       "no covering satellites in current tick",
			RecommendedAction: "trigger failover to backup pool",
			AutoResolvable:    true,
		})
	}

	for _, g := range report.Gaps {
		if g.Severity != model.AlertCritical {
			continue
		}
		m.dispatcher.Publish(ctx, model.CoverageAlert{
			Level:       model.AlertCritical,
			SatelliteID: GapSatelliteID,
			Description: fmt.Sprintf("coverage gap of %s starting %s",
				g.Duration, g.Start.Format(time.RFC3339)),
			RecommendedAction: "trigger failover to backup pool",
			AutoResolvable:    true,
		})
	}

	if report.Forecast.At10Min < statusGoodRate {
		m.dispatcher.Publish(ctx, model.CoverageAlert{
			Level:       model.AlertWarning,
			SatelliteID: model.SystemWide,
			Description: fmt.Sprintf("predicted coverage %.1f%% in 10 minutes (%s, confidence %.2f)",
				report.Forecast.At10Min*100, report.Forecast.Trend, report.Forecast.Confidence),
			RecommendedAction: "pre-position backup satellites",
		})
	}

	for _, h := range report.Health {
		switch h.Status {
		case model.HealthOffline:
			m.dispatcher.Publish(ctx, model.CoverageAlert{
				Level:             model.AlertCritical,
				SatelliteID:       h.SatelliteID,
				Description:       fmt.Sprintf("satellite offline at %.1f dBm", h.SignalDBm),
				RecommendedAction: "remove from serving set and re-run admission",
			})
		case model.HealthCritical:
			m.dispatcher.Publish(ctx, model.CoverageAlert{
				Level:             model.AlertWarning,
				SatelliteID:       h.SatelliteID,
				Description:       fmt.Sprintf("signal degraded to %.1f dBm", h.SignalDBm),
				RecommendedAction: "investigate signal degradation",
			})
		}
	}
}

func satelliteIDs(readings []Reading) []string {
	seen := make(map[string]struct{}, len(readings))
	ids := make([]string, 0, len(readings))
	for _, r := range readings {
		if _, ok := seen[r.SatelliteID]; ok {
			continue
		}
		seen[r.SatelliteID] = struct{}{}
		ids = append(ids, r.SatelliteID)
	}
	return ids
}
