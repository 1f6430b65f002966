package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/signalsfoundry/leo-serving-planner/core"
	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Stage identifies one of the six ordered admission stages. A satellite
// rejected at a stage is out for the remainder of the cycle.
type Stage int

const (
	StageGeographic Stage = iota + 1
	StageVisibilityTime
	StageElevation
	StageContinuity
	StageSignal
	StageLoadBalancing

	NumStages = 6
)

func (s Stage) String() string {
	switch s {
	case StageGeographic:
		return "stage1_geographic"
	case StageVisibilityTime:
		return "stage2_visibility_time"
	case StageElevation:
		return "stage3_elevation"
	case StageContinuity:
		return "stage4_continuity"
	case StageSignal:
		return "stage5_signal"
	case StageLoadBalancing:
		return "stage6_load_balancing"
	default:
		return fmt.Sprintf("stage?(%d)", int(s))
	}
}

// Rejection records why a satellite left the pipeline, attributable to one
// stage and threshold.
type Rejection struct {
	SatelliteID string `json:"satellite_id"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

// ConstellationStats tracks survivor counts per stage for one constellation.
// Survivors[i] is the count after stage i+1.
type ConstellationStats struct {
	Input      int            `json:"input"`
	Survivors  [NumStages]int `json:"stage_survivors"`
	Rejections []Rejection    `json:"rejections,omitempty"`
}

// FilterStatistics is the per-cycle audit trail of the whole pipeline run.
type FilterStatistics struct {
	InputSatellites int                            `json:"input_satellites"`
	Constellations  map[string]*ConstellationStats `json:"constellations"`
	FinalCandidates int                            `json:"final_candidates"`
}

// Result holds one pipeline run's selected candidates and statistics.
type Result struct {
	Candidates []model.SatelliteScore
	Stats      FilterStatistics
}

// candidateRow is the per-satellite accumulator threaded through the
// stages. Stages read and write the row; the catalog Satellite itself is
// never mutated.
type candidateRow struct {
	sat        *model.Satellite
	geographic float64
	visibility *model.VisibilityAnalysis
}

// Altitude-closeness falloff per km of deviation from the nominal shell.
// OneWeb's shell is higher so the same absolute deviation matters less.
const (
	starlinkAltFalloffPerKm = 0.1
	onewebAltFalloffPerKm   = 0.05
	defaultOrbitScore       = 50.0
)

// FilterPipeline narrows a satellite catalog to per-constellation serving
// candidates through six ordered, irreversible stages.
type FilterPipeline struct {
	cfg      config.Config
	source   orbit.Source
	analyzer *core.VisibilityAnalyzer
	log      logging.Logger
	workers  int
}

// New builds a pipeline. The worker count bounds the per-satellite
// visibility fan-out.
func New(cfg config.Config, source orbit.Source, log logging.Logger) *FilterPipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logging.Noop()
	}
	return &FilterPipeline{
		cfg:      cfg,
		source:   source,
		analyzer: core.NewVisibilityAnalyzer(),
		log:      log,
		workers:  workers,
	}
}

// Run executes all six stages for every configured constellation over the
// given planning window. Per-satellite failures are isolated; only zero
// surviving candidates across all constellations aborts the cycle.
func (p *FilterPipeline) Run(ctx context.Context, catalog []model.Satellite, window orbit.TimeRange) (Result, error) {
	ctx, log := logging.WithCycleLogger(ctx, p.log)

	byConstellation := make(map[model.Constellation][]*model.Satellite)
	for i := range catalog {
		sat := &catalog[i]
		byConstellation[sat.Constellation] = append(byConstellation[sat.Constellation], sat)
	}

	res := Result{
		Stats: FilterStatistics{
			InputSatellites: len(catalog),
			Constellations:  make(map[string]*ConstellationStats),
		},
	}

	for c, sats := range byConstellation {
		params, ok := p.cfg.ParamsFor(c)
		if !ok {
			log.Debug(ctx, "skipping unconfigured constellation",
				logging.String("constellation", c.String()),
				logging.Int("satellites", len(sats)))
			continue
		}

		stats := &ConstellationStats{Input: len(sats)}
		res.Stats.Constellations[c.String()] = stats

		selected, err := p.runConstellation(ctx, log, c, params, sats, window, stats)
		if err != nil {
			return Result{}, err
		}
		res.Candidates = append(res.Candidates, selected...)
	}

	res.Stats.FinalCandidates = len(res.Candidates)
	if res.Stats.FinalCandidates == 0 {
		return Result{}, fmt.Errorf("pipeline produced no candidates from %d satellites: %w",
			len(catalog), model.ErrNoCandidates)
	}

	// Deterministic cross-constellation ordering for downstream consumers.
	sort.Slice(res.Candidates, func(i, j int) bool {
		a, b := res.Candidates[i], res.Candidates[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		return a.SatelliteID < b.SatelliteID
	})

	log.Info(ctx, "filter pipeline complete",
		logging.Int("input", res.Stats.InputSatellites),
		logging.Int("selected", res.Stats.FinalCandidates))
	return res, nil
}

func (p *FilterPipeline) runConstellation(
	ctx context.Context,
	log logging.Logger,
	c model.Constellation,
	params config.ConstellationParams,
	sats []*model.Satellite,
	window orbit.TimeRange,
	stats *ConstellationStats,
) ([]model.SatelliteScore, error) {
	// Stage 1: geographic relevance. Pure orbital-element screening, no
	// position data required.
	rows := make([]*candidateRow, 0, len(sats))
	for _, sat := range sats {
		if sat.InclinationDeg <= p.cfg.Observer.LatDeg {
			stats.reject(sat.ID, StageGeographic, fmt.Sprintf(
				"inclination %.1f° cannot cover observer latitude %.4f°",
				sat.InclinationDeg, p.cfg.Observer.LatDeg))
			continue
		}
		score := p.geographicScore(sat, c, params)
		if score <= 60 {
			stats.reject(sat.ID, StageGeographic, fmt.Sprintf(
				"geographic relevance %.1f below threshold 60", score))
			continue
		}
		rows = append(rows, &candidateRow{sat: sat, geographic: score})
	}
	stats.Survivors[StageGeographic-1] = len(rows)

	// Visibility analysis for every stage-1 survivor, fanned out across the
	// worker pool. A satellite whose series is missing or malformed cannot
	// enter stage 2.
	if err := p.analyzeAll(ctx, log, rows, params, window, stats); err != nil {
		return nil, err
	}

	// Stages 2-5: threshold filters over the accumulated analysis.
	rows = filterRows(rows, stats, StageVisibilityTime, func(r *candidateRow) (bool, string) {
		if r.visibility.TotalVisibleMinutes >= params.MinVisibleTimeMin {
			return true, ""
		}
		return false, fmt.Sprintf("visible %.1f min below minimum %.1f min",
			r.visibility.TotalVisibleMinutes, params.MinVisibleTimeMin)
	})
	rows = filterRows(rows, stats, StageElevation, func(r *candidateRow) (bool, string) {
		if r.visibility.MaxElevationDeg >= params.MinElevationDeg {
			return true, ""
		}
		return false, fmt.Sprintf("max elevation %.1f° below minimum %.1f°",
			r.visibility.MaxElevationDeg, params.MinElevationDeg)
	})
	rows = filterRows(rows, stats, StageContinuity, func(r *candidateRow) (bool, string) {
		if r.visibility.VisiblePassCount >= params.MinVisiblePasses {
			return true, ""
		}
		return false, fmt.Sprintf("%d passes below minimum %d",
			r.visibility.VisiblePassCount, params.MinVisiblePasses)
	})
	rows = filterRows(rows, stats, StageSignal, func(r *candidateRow) (bool, string) {
		if r.visibility.EstimatedSignalDBm < params.RSRPThresholdDBm {
			return false, fmt.Sprintf("estimated RSRP %.1f dBm below threshold %.1f dBm",
				r.visibility.EstimatedSignalDBm, params.RSRPThresholdDBm)
		}
		if params.MaxDistanceKm > 0 && r.visibility.ClosestRangeKm > params.MaxDistanceKm {
			return false, fmt.Sprintf("closest approach %.0f km beyond maximum %.0f km",
				r.visibility.ClosestRangeKm, params.MaxDistanceKm)
		}
		return true, ""
	})

	// Stage 6: score, rank, truncate to the constellation's target count.
	scored := make([]model.SatelliteScore, 0, len(rows))
	for _, r := range rows {
		s := core.Score(r.sat, r.visibility)
		s.GeographicScore = r.geographic
		scored = append(scored, s)
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].TotalScore != scored[j].TotalScore {
			return scored[i].TotalScore > scored[j].TotalScore
		}
		return scored[i].SatelliteID < scored[j].SatelliteID
	})
	if len(scored) > params.TargetCandidateCount {
		for _, s := range scored[params.TargetCandidateCount:] {
			stats.reject(s.SatelliteID, StageLoadBalancing, fmt.Sprintf(
				"score %.1f ranked below target candidate count %d",
				s.TotalScore, params.TargetCandidateCount))
		}
		scored = scored[:params.TargetCandidateCount]
	}
	for i := range scored {
		scored[i].Selected = true
	}
	stats.Survivors[StageLoadBalancing-1] = len(scored)

	log.Info(ctx, "constellation filtered",
		logging.String("constellation", c.String()),
		logging.Int("input", stats.Input),
		logging.Int("selected", len(scored)))
	return scored, nil
}

// geographicScore blends longitude relevance, inclination closeness and
// apogee closeness. LEO RAAN drifts through all longitudes, so longitude
// proximity is floored at 40 rather than treated as disqualifying.
func (p *FilterPipeline) geographicScore(sat *model.Satellite, c model.Constellation, params config.ConstellationParams) float64 {
	lonDiff := math.Abs(sat.RAANDeg - p.cfg.Observer.LonDeg)
	if lonDiff > 180 {
		lonDiff = 360 - lonDiff
	}
	lonRelevance := math.Max(40, 100-lonDiff*0.5)

	var inclScore, altScore float64
	switch c {
	case model.ConstellationStarlink:
		inclScore = 100 - math.Abs(sat.InclinationDeg-params.OptimalInclinationDeg)*2
		altScore = 100 - math.Abs(sat.ApogeeKm-params.OptimalAltitudeKm)*starlinkAltFalloffPerKm
	case model.ConstellationOneWeb:
		inclScore = 100 - math.Abs(sat.InclinationDeg-params.OptimalInclinationDeg)*2
		altScore = 100 - math.Abs(sat.ApogeeKm-params.OptimalAltitudeKm)*onewebAltFalloffPerKm
	default:
		inclScore = defaultOrbitScore
		altScore = defaultOrbitScore
	}

	return lonRelevance*0.4 + inclScore*0.35 + altScore*0.25
}

// analyzeAll fetches each row's position series and runs the visibility
// analyzer, with at most p.workers satellites in flight. Rows that cannot
// be analyzed are rejected in place; the batch continues.
func (p *FilterPipeline) analyzeAll(
	ctx context.Context,
	log logging.Logger,
	rows []*candidateRow,
	params config.ConstellationParams,
	window orbit.TimeRange,
	stats *ConstellationStats,
) error {
	jobs := make(chan *candidateRow)
	var wg sync.WaitGroup

	var mu sync.Mutex // guards stats during the fan-out
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				p.analyzeRow(ctx, log, r, params, window, stats, &mu)
			}
		}()
	}

	for _, r := range rows {
		select {
		case jobs <- r:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

func (p *FilterPipeline) analyzeRow(
	ctx context.Context,
	log logging.Logger,
	r *candidateRow,
	params config.ConstellationParams,
	window orbit.TimeRange,
	stats *ConstellationStats,
	mu *sync.Mutex,
) {
	samples, err := p.source.Positions(ctx, r.sat.ID, window)
	if err == nil {
		var analyzeErr error
		r.visibility, analyzeErr = p.analyzer.Analyze(r.sat, samples, params.MinElevationDeg)
		if analyzeErr != nil {
			err = fmt.Errorf("%w: %w", model.ErrComputation, analyzeErr)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		reason := fmt.Sprintf("visibility analysis failed: %v", err)
		if errors.Is(err, model.ErrMissingData) {
			reason = "no position series for planning window"
		}
		log.Warn(ctx, "satellite dropped before visibility-time filter",
			logging.String("satellite_id", r.sat.ID),
			logging.Err(err))
		mu.Lock()
		stats.reject(r.sat.ID, StageVisibilityTime, reason)
		mu.Unlock()
	}
}

// filterRows applies one threshold stage, recording rejections and the
// survivor count.
func filterRows(rows []*candidateRow, stats *ConstellationStats, stage Stage, keep func(*candidateRow) (bool, string)) []*candidateRow {
	kept := rows[:0]
	for _, r := range rows {
		if r.visibility == nil {
			// Rejected during analysis; already recorded.
			continue
		}
		ok, reason := keep(r)
		if !ok {
			stats.reject(r.sat.ID, stage, reason)
			continue
		}
		kept = append(kept, r)
	}
	stats.Survivors[stage-1] = len(kept)
	return kept
}

func (s *ConstellationStats) reject(satelliteID string, stage Stage, reason string) {
	s.Rejections = append(s.Rejections, Rejection{
		SatelliteID: satelliteID,
		Stage:       stage.String(),
		Reason:      reason,
	})
}
