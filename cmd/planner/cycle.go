package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/core"
	"github.com/signalsfoundry/leo-serving-planner/internal/catalog"
	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/export"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/internal/monitor"
	"github.com/signalsfoundry/leo-serving-planner/internal/observability"
	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
	"github.com/signalsfoundry/leo-serving-planner/internal/pipeline"
	"github.com/signalsfoundry/leo-serving-planner/internal/pool"
	"github.com/signalsfoundry/leo-serving-planner/internal/state"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// planner bundles everything one planning cycle touches so the run loop
// stays testable without the process scaffolding in main.
type planner struct {
	cfg       config.Config
	inventory *catalog.Catalog
	pipe      *pipeline.FilterPipeline
	poolMgr   *pool.Manager
	optimizer *pool.Optimizer
	store     *state.Store
	collector *observability.PlannerCollector
	log       logging.Logger

	window      time.Duration
	servingSize int
	exportDir   string
	now         func() time.Time

	switcher    *pool.Switcher
	failingOver atomic.Bool
}

// runLoop executes one cycle immediately, then on every tick until ctx is
// cancelled. A failed cycle leaves the previous snapshots serving.
func (p *planner) runLoop(ctx context.Context, interval time.Duration) {
	if err := p.runCycle(ctx); err != nil {
		p.log.Error(ctx, "planning cycle failed", logging.Err(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.runCycle(ctx); err != nil {
				p.log.Error(ctx, "planning cycle failed", logging.Err(err))
			}
		}
	}
}

func (p *planner) runCycle(ctx context.Context) error {
	start := p.now()
	window := orbit.TimeRange{Start: start, End: start.Add(p.window)}

	result, err := p.pipe.Run(ctx, p.inventory.List(), window)
	if err != nil {
		return err
	}
	p.recordStats(result.Stats)

	servingSize := p.servingSize
	if servingSize > len(result.Candidates) {
		servingSize = len(result.Candidates)
	}
	serving := p.store.SetServing(result.Candidates[:servingSize], result.Stats, start)

	if err := p.establishPool(ctx, result.Candidates[servingSize:]); err != nil {
		return err
	}

	if p.exportDir != "" {
		if err := p.writeExport(serving.Version, &result, start); err != nil {
			p.log.Warn(ctx, "cycle export failed", logging.Err(err))
		}
	}

	p.collector.ObserveCycle(p.now().Sub(start), result.Stats.FinalCandidates)
	p.log.Info(ctx, "planning cycle complete",
		logging.Int("serving", servingSize),
		logging.Int("admitted", result.Stats.FinalCandidates),
		logging.Duration("elapsed", p.now().Sub(start)))
	return nil
}

// establishPool rebuilds the backup pool from the admitted candidates left
// over after the serving set, rebalances it across constellations, and
// publishes the snapshot. Exhaustion degrades the pool, never the cycle.
func (p *planner) establishPool(ctx context.Context, remaining []model.SatelliteScore) error {
	candidates := make([]pool.Candidate, 0, len(remaining))
	for _, score := range remaining {
		sat, ok := p.inventory.Get(score.SatelliteID)
		if !ok {
			continue
		}
		candidates = append(candidates, pool.Candidate{Sat: sat, Score: score})
	}

	snapshot, err := p.poolMgr.EstablishPool(ctx, candidates, p.store.ServingIDs(), 0)
	if err != nil && !errors.Is(err, model.ErrPoolExhausted) {
		return err
	}
	if snapshot.Degraded {
		p.log.Warn(ctx, "backup pool degraded",
			logging.Int("entries", len(snapshot.Entries)),
			logging.Int("min", p.cfg.Pool.MinPoolSize))
	}

	balance := p.optimizer.BalanceConstellations(snapshot.Entries, pool.DefaultTargetRatios)
	if balance.Improvement > 0 {
		snapshot.Entries = balance.Balanced
	}
	p.store.SetPool(snapshot)

	ready := 0
	for _, e := range snapshot.Entries {
		if e.Readiness == model.ReadinessReady {
			ready++
		}
	}
	readiness := 0.0
	if len(snapshot.Entries) > 0 {
		readiness = float64(ready) / float64(len(snapshot.Entries))
	}
	p.collector.SetPool(len(snapshot.Entries), readiness)
	return nil
}

func (p *planner) recordStats(stats pipeline.FilterStatistics) {
	for tag, cs := range stats.Constellations {
		for i, survivors := range cs.Survivors {
			p.collector.SetStageSurvivors(tag, pipeline.Stage(i+1).String(), survivors)
		}
	}
}

func (p *planner) writeExport(version uint64, result *pipeline.Result, at time.Time) error {
	doc := export.NewDocument(p.cfg.Observer, result, at)
	path := filepath.Join(p.exportDir, fmt.Sprintf("cycle_%06d.json", version))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.Encode(f, doc)
}

// failover promotes the highest-priority ready backup when coverage
// collapses. At most one failover runs at a time; later triggers are
// dropped while one is in flight.
func (p *planner) failover(ctx context.Context) {
	if p.switcher == nil || !p.failingOver.CompareAndSwap(false, true) {
		return
	}
	defer p.failingOver.Store(false)

	snapshot := p.store.Pool()
	if len(snapshot.Entries) == 0 {
		p.log.Warn(ctx, "coverage lost but backup pool is empty")
		return
	}
	mech := p.poolMgr.BuildSwitchingMechanism(snapshot)
	for _, target := range mech.Priorities {
		if target.Readiness != model.ReadinessReady {
			continue
		}
		out, err := p.switcher.Failover(ctx, target, coverageMinElevationDeg, p.cfg.Monitor.SignalDegradedDBm)
		switch {
		case err != nil && out.RolledBack:
			p.collector.RecordSwitch("rolled_back")
		case err != nil:
			p.collector.RecordSwitch("failed")
		case out.Completed:
			p.collector.RecordSwitch("completed")
			return
		default:
			// Detection found the serving link healthy after all.
			return
		}
	}
	p.log.Warn(ctx, "no ready backup completed failover")
}

// coverageMinElevationDeg is the serving criterion handed to failover
// validation, matching the monitor's coverage definition.
const coverageMinElevationDeg = 5.0

// servingLink exposes the serving-set snapshot as the switchable link: the
// head of the candidate list is the active serving satellite.
type servingLink struct {
	store *state.Store
	now   func() time.Time
}

func (l *servingLink) CurrentServing() string {
	snap := l.store.Serving()
	if len(snap.Candidates) == 0 {
		return ""
	}
	return snap.Candidates[0].SatelliteID
}

func (l *servingLink) SwitchTo(_ context.Context, satelliteID string) error {
	snap := l.store.Serving()
	promoted := model.SatelliteScore{SatelliteID: satelliteID}
	rest := make([]model.SatelliteScore, 0, len(snap.Candidates))
	for _, c := range snap.Candidates {
		if c.SatelliteID == satelliteID {
			promoted = c
			continue
		}
		rest = append(rest, c)
	}
	l.store.SetServing(append([]model.SatelliteScore{promoted}, rest...), snap.Stats, l.now())
	return nil
}

// orbitProbe measures link condition from the propagated geometry.
type orbitProbe struct {
	source    orbit.Source
	inventory *catalog.Catalog
	now       func() time.Time
}

func (p *orbitProbe) Probe(ctx context.Context, satelliteID string) (pool.ProbeResult, error) {
	pred, err := p.source.Predict(ctx, satelliteID, p.now())
	if err != nil {
		return pool.ProbeResult{}, err
	}
	constellation := model.ConstellationOther
	if sat, ok := p.inventory.Get(satelliteID); ok {
		constellation = sat.Constellation
	}
	return pool.ProbeResult{
		ElevationDeg: pred.ElevationDeg,
		SignalDBm:    core.EstimateRSRP(pred.ElevationDeg, pred.RangeKm, constellation),
	}, nil
}

// monitorFeed derives the monitor's per-tick readings from the current
// serving set: each serving satellite is propagated to the tick instant and
// its signal estimated from the predicted geometry.
func monitorFeed(store *state.Store, source orbit.Source) monitor.Feed {
	return func(ctx context.Context, at time.Time) ([]monitor.Reading, error) {
		serving := store.Serving()
		readings := make([]monitor.Reading, 0, len(serving.Candidates))
		step := time.Duration(0)
		for _, c := range serving.Candidates {
			pred, err := source.Predict(ctx, c.SatelliteID, at.Add(step))
			if err != nil {
				continue
			}
			readings = append(readings, monitor.Reading{
				SatelliteID:   c.SatelliteID,
				Constellation: c.Constellation,
				Timestamp:     pred.Time,
				ElevationDeg:  pred.ElevationDeg,
				SignalDBm:     core.EstimateRSRP(pred.ElevationDeg, pred.RangeKm, c.Constellation),
			})
			// Strictly ordered timestamps, one per satellite.
			step += time.Millisecond
		}
		return readings, nil
	}
}
