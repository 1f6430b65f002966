package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/internal/orbit"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// errCapture collects the error fields the pipeline logs while dropping
// satellites, so tests can assert on the error chain.
type errCapture struct {
	mu   sync.Mutex
	errs []error
}

func (c *errCapture) record(fields []logging.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			c.errs = append(c.errs, err)
		}
	}
}

func (c *errCapture) With(...logging.Field) logging.Logger { return c }
func (c *errCapture) Debug(_ context.Context, _ string, fields ...logging.Field) {
	c.record(fields)
}
func (c *errCapture) Info(_ context.Context, _ string, fields ...logging.Field) {
	c.record(fields)
}
func (c *errCapture) Warn(_ context.Context, _ string, fields ...logging.Field) {
	c.record(fields)
}
func (c *errCapture) Error(_ context.Context, _ string, fields ...logging.Field) {
	c.record(fields)
}

func (c *errCapture) find(target error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, err := range c.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type fakeSource struct {
	series map[string][]model.PositionSample
}

func (f *fakeSource) Positions(_ context.Context, id string, _ orbit.TimeRange) ([]model.PositionSample, error) {
	s, ok := f.series[id]
	if !ok {
		return nil, fmt.Errorf("satellite %s: %w", id, model.ErrMissingData)
	}
	return s, nil
}

func (f *fakeSource) Predict(_ context.Context, id string, _ time.Time) (orbit.Prediction, error) {
	return orbit.Prediction{}, model.ErrForecastUnavailable
}

var testWindow = orbit.TimeRange{
	Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
}

// servingSeries builds a 30 s cadence series with the given number of
// passes, each visibleLen samples at peakElev degrees, separated by
// gapLen samples below the horizon.
func servingSeries(passes, visibleLen, gapLen int, peakElev float64) []model.PositionSample {
	var out []model.PositionSample
	t := testWindow.Start
	next := func(elev float64) {
		out = append(out, model.PositionSample{
			Timestamp:    t,
			ElevationDeg: elev,
			RangeKm:      1000,
		})
		t = t.Add(30 * time.Second)
	}
	for p := 0; p < passes; p++ {
		for i := 0; i < visibleLen; i++ {
			elev := peakElev - 5
			if i == visibleLen/2 {
				elev = peakElev
			}
			next(elev)
		}
		for i := 0; i < gapLen; i++ {
			next(-10)
		}
	}
	return out
}

func starlinkSat(id string) model.Satellite {
	return model.Satellite{
		ID:             id,
		Name:           strings.ToUpper(id),
		Constellation:  model.ConstellationStarlink,
		InclinationDeg: 53.0,
		RAANDeg:        121.3713889,
		ApogeeKm:       550.0,
	}
}

func TestTwoSatelliteAdmission(t *testing.T) {
	lowIncl := starlinkSat("sat-low-incl")
	lowIncl.InclinationDeg = 20.0 // below observer latitude, can never cover

	good := starlinkSat("sat-good")
	src := &fakeSource{series: map[string][]model.PositionSample{
		// 4 passes x 10 visible samples = 20 visible minutes, max 40°.
		"sat-good": servingSeries(4, 10, 6, 40),
	}}

	p := New(config.Default(), src, nil)
	res, err := p.Run(context.Background(), []model.Satellite{lowIncl, good}, testWindow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.SatelliteID != "sat-good" {
		t.Fatalf("selected %s, want sat-good", c.SatelliteID)
	}
	if !c.Selected {
		t.Fatal("surviving candidate not marked selected")
	}
	if c.TotalScore <= 60 {
		t.Fatalf("total score %.1f, want > 60", c.TotalScore)
	}
	if c.Visibility == nil || c.Visibility.VisiblePassCount != 4 {
		t.Fatalf("visibility not carried through: %+v", c.Visibility)
	}

	stats := res.Stats.Constellations["starlink"]
	if stats == nil {
		t.Fatal("no starlink statistics recorded")
	}
	if stats.Input != 2 || stats.Survivors[0] != 1 {
		t.Fatalf("stage-1 accounting wrong: input=%d survivors=%v", stats.Input, stats.Survivors)
	}
	var found bool
	for _, r := range stats.Rejections {
		if r.SatelliteID == "sat-low-incl" && r.Stage == StageGeographic.String() {
			found = true
			if !strings.Contains(r.Reason, "inclination") {
				t.Fatalf("rejection reason not attributable: %q", r.Reason)
			}
		}
	}
	if !found {
		t.Fatal("no stage-1 rejection recorded for sat-low-incl")
	}
}

func TestSurvivorCountsNonIncreasing(t *testing.T) {
	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-a": servingSeries(4, 10, 6, 40), // survives everything
		"sat-b": servingSeries(4, 4, 6, 40),  // 8 visible min, fails stage 2
		"sat-c": servingSeries(4, 10, 6, 4),  // never clears the elevation mask
		"sat-d": servingSeries(2, 20, 6, 40), // 2 passes, fails stage 4
	}}

	sats := []model.Satellite{
		starlinkSat("sat-a"), starlinkSat("sat-b"),
		starlinkSat("sat-c"), starlinkSat("sat-d"),
		starlinkSat("sat-missing"), // no position series at all
	}

	p := New(config.Default(), src, nil)
	res, err := p.Run(context.Background(), sats, testWindow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := res.Stats.Constellations["starlink"]
	prev := stats.Input
	for i, n := range stats.Survivors {
		if n > prev {
			t.Fatalf("stage %d survivors %d exceed previous %d", i+1, n, prev)
		}
		prev = n
	}
	if got := stats.Survivors[NumStages-1]; got != 1 {
		t.Fatalf("final survivors = %d, want 1", got)
	}
	if res.Candidates[0].SatelliteID != "sat-a" {
		t.Fatalf("survivor %s, want sat-a", res.Candidates[0].SatelliteID)
	}
}

func TestMissingSeriesIsIsolated(t *testing.T) {
	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-a": servingSeries(4, 10, 6, 40),
	}}
	sats := []model.Satellite{starlinkSat("sat-a"), starlinkSat("sat-ghost")}

	p := New(config.Default(), src, nil)
	res, err := p.Run(context.Background(), sats, testWindow)
	if err != nil {
		t.Fatalf("missing series must not abort the batch: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}

	stats := res.Stats.Constellations["starlink"]
	var rejected bool
	for _, r := range stats.Rejections {
		if r.SatelliteID == "sat-ghost" && r.Stage == StageVisibilityTime.String() {
			rejected = true
		}
	}
	if !rejected {
		t.Fatal("ghost satellite not rejected at the visibility-time stage")
	}
}

func TestUnorderedSeriesRejected(t *testing.T) {
	series := servingSeries(4, 10, 6, 40)
	series[5].Timestamp = series[4].Timestamp // duplicate timestamp

	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-a":  series,
		"sat-ok": servingSeries(4, 10, 6, 40),
	}}
	sats := []model.Satellite{starlinkSat("sat-a"), starlinkSat("sat-ok")}

	capture := &errCapture{}
	p := New(config.Default(), src, capture)
	res, err := p.Run(context.Background(), sats, testWindow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].SatelliteID != "sat-ok" {
		t.Fatalf("unexpected candidates: %+v", res.Candidates)
	}

	// The per-satellite failure surfaces as a computation error carrying
	// the analyzer's ordering rejection.
	if !capture.find(model.ErrComputation) {
		t.Error("dropped satellite did not surface ErrComputation")
	}
	if !capture.find(model.ErrUnordered) {
		t.Error("computation error lost the underlying ErrUnordered cause")
	}
}

func TestDistantSatelliteRejectedAtSignalStage(t *testing.T) {
	cfg := config.Default()
	starlink := cfg.Constellations["starlink"]
	starlink.MaxDistanceKm = 800 // the fixture series never gets closer than 1000 km
	cfg.Constellations["starlink"] = starlink

	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-far":  servingSeries(4, 10, 6, 40),
		"sat-near": servingSeries(4, 10, 6, 40),
	}}
	for i := range src.series["sat-near"] {
		src.series["sat-near"][i].RangeKm = 600
	}
	sats := []model.Satellite{starlinkSat("sat-far"), starlinkSat("sat-near")}

	p := New(cfg, src, nil)
	res, err := p.Run(context.Background(), sats, testWindow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].SatelliteID != "sat-near" {
		t.Fatalf("unexpected candidates: %+v", res.Candidates)
	}

	stats := res.Stats.Constellations["starlink"]
	var rejected bool
	for _, r := range stats.Rejections {
		if r.SatelliteID == "sat-far" && r.Stage == StageSignal.String() {
			rejected = true
			if !strings.Contains(r.Reason, "beyond maximum") {
				t.Fatalf("rejection reason not attributable to range: %q", r.Reason)
			}
		}
	}
	if !rejected {
		t.Fatal("distant satellite not rejected at the signal stage")
	}
}

func TestZeroCandidatesAbortsCycle(t *testing.T) {
	src := &fakeSource{series: map[string][]model.PositionSample{}}
	sats := []model.Satellite{starlinkSat("sat-a")}

	p := New(config.Default(), src, nil)
	_, err := p.Run(context.Background(), sats, testWindow)
	if !errors.Is(err, model.ErrNoCandidates) {
		t.Fatalf("got %v, want ErrNoCandidates", err)
	}
}

func TestTruncationIsDeterministic(t *testing.T) {
	cfg := config.Default()
	starlink := cfg.Constellations["starlink"]
	starlink.TargetCandidateCount = 2
	cfg.Constellations["starlink"] = starlink

	// Identical series, so all four tie on score and the ID breaks the tie.
	series := servingSeries(4, 10, 6, 40)
	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-a": series, "sat-b": series, "sat-c": series, "sat-d": series,
	}}
	sats := []model.Satellite{
		starlinkSat("sat-d"), starlinkSat("sat-b"),
		starlinkSat("sat-a"), starlinkSat("sat-c"),
	}

	p := New(cfg, src, nil)
	res, err := p.Run(context.Background(), sats, testWindow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].SatelliteID != "sat-a" || res.Candidates[1].SatelliteID != "sat-b" {
		t.Fatalf("tie-break not by ID: %s, %s",
			res.Candidates[0].SatelliteID, res.Candidates[1].SatelliteID)
	}

	stats := res.Stats.Constellations["starlink"]
	var truncated int
	for _, r := range stats.Rejections {
		if r.Stage == StageLoadBalancing.String() {
			truncated++
		}
	}
	if truncated != 2 {
		t.Fatalf("got %d load-balancing rejections, want 2", truncated)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	src := &fakeSource{series: map[string][]model.PositionSample{
		"sat-a": servingSeries(4, 10, 6, 40),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(config.Default(), src, nil)
	if _, err := p.Run(ctx, []model.Satellite{starlinkSat("sat-a")}, testWindow); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
