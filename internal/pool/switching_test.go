package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

type fakeLink struct {
	mu       sync.Mutex
	serving  string
	switches []string
	failOn   string
}

func (l *fakeLink) CurrentServing() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.serving
}

func (l *fakeLink) SwitchTo(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == l.failOn {
		return fmt.Errorf("link layer rejected %s", id)
	}
	l.serving = id
	l.switches = append(l.switches, id)
	return nil
}

type fakeProbe struct {
	results map[string]ProbeResult
	errs    map[string]error
}

func (p *fakeProbe) Probe(_ context.Context, id string) (ProbeResult, error) {
	if err, ok := p.errs[id]; ok {
		return ProbeResult{}, err
	}
	return p.results[id], nil
}

func fastSwitcher(link LinkController, probe HealthProbe) *Switcher {
	s := NewSwitcher(link, probe, SwitchConfig{
		ExecuteDelay: time.Millisecond,
		VerifyWindow: 3 * time.Millisecond,
		VerifyProbes: 3,
	}, nil)
	return s
}

func readyTarget(id string) model.SwitchingPriorityEntry {
	return model.SwitchingPriorityEntry{
		PriorityRank:    1,
		SatelliteID:     id,
		EvaluationScore: 0.9,
		ReadinessScore:  0.81,
		Readiness:       model.ReadinessReady,
	}
}

func TestFailoverCompletes(t *testing.T) {
	link := &fakeLink{serving: "old"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 2, SignalDBm: -130}, // degraded
		"new": {ElevationDeg: 30, SignalDBm: -80},
	}}

	out, err := fastSwitcher(link, probe).Failover(context.Background(), readyTarget("new"), 5, -110)
	if err != nil {
		t.Fatalf("Failover: %v", err)
	}
	if !out.Completed || out.RolledBack {
		t.Fatalf("outcome %+v, want completed without rollback", out)
	}
	if link.CurrentServing() != "new" {
		t.Fatalf("serving %s, want new", link.CurrentServing())
	}
	if len(out.Phases) != 4 {
		t.Fatalf("recorded %d phases, want 4", len(out.Phases))
	}
	for _, ph := range out.Phases {
		if !ph.OK {
			t.Fatalf("phase %s failed: %s", ph.Phase, ph.Detail)
		}
	}
}

func TestFailoverAbortsWhenServingHealthy(t *testing.T) {
	link := &fakeLink{serving: "old"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 45, SignalDBm: -75}, // perfectly fine
		"new": {ElevationDeg: 30, SignalDBm: -80},
	}}

	out, err := fastSwitcher(link, probe).Failover(context.Background(), readyTarget("new"), 5, -110)
	if err != nil {
		t.Fatalf("healthy-serving abort must not be an error: %v", err)
	}
	if out.Completed {
		t.Fatal("failover completed despite healthy serving satellite")
	}
	if link.CurrentServing() != "old" {
		t.Fatalf("serving %s, want old", link.CurrentServing())
	}
}

func TestFailoverValidationFailsClosed(t *testing.T) {
	link := &fakeLink{serving: "old"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 2, SignalDBm: -130},
		"new": {ElevationDeg: 3, SignalDBm: -80}, // backup below elevation mask
	}}

	_, err := fastSwitcher(link, probe).Failover(context.Background(), readyTarget("new"), 5, -110)
	if !errors.Is(err, model.ErrSwitchingFailed) {
		t.Fatalf("got %v, want ErrSwitchingFailed", err)
	}
	if link.CurrentServing() != "old" {
		t.Fatalf("serving %s after failed validation, want old", link.CurrentServing())
	}
	if len(link.switches) != 0 {
		t.Fatal("link was touched before validation passed")
	}
}

func TestFailoverRejectsUnreadyBackup(t *testing.T) {
	link := &fakeLink{serving: "old"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 2, SignalDBm: -130},
		"new": {ElevationDeg: 30, SignalDBm: -80},
	}}
	target := readyTarget("new")
	target.Readiness = model.ReadinessStandby

	_, err := fastSwitcher(link, probe).Failover(context.Background(), target, 5, -110)
	if !errors.Is(err, model.ErrSwitchingFailed) {
		t.Fatalf("got %v, want ErrSwitchingFailed", err)
	}
}

func TestFailoverExecuteFailureRollsBack(t *testing.T) {
	link := &fakeLink{serving: "old", failOn: "new"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 2, SignalDBm: -130},
		"new": {ElevationDeg: 30, SignalDBm: -80},
	}}

	out, err := fastSwitcher(link, probe).Failover(context.Background(), readyTarget("new"), 5, -110)
	if !errors.Is(err, model.ErrSwitchingFailed) {
		t.Fatalf("got %v, want ErrSwitchingFailed", err)
	}
	if !out.RolledBack {
		t.Fatal("failed execution did not roll back")
	}
	if link.CurrentServing() != "old" {
		t.Fatalf("serving %s, want old after rollback", link.CurrentServing())
	}
}

func TestFailoverVerifyFailureRollsBack(t *testing.T) {
	link := &fakeLink{serving: "old"}
	probe := &fakeProbe{results: map[string]ProbeResult{
		"old": {ElevationDeg: 2, SignalDBm: -130},
		"new": {ElevationDeg: 30, SignalDBm: -80},
	}}
	s := fastSwitcher(link, probe)

	// Once the link has moved to "new", make every post-switch probe fail
	// so the verify phase has to roll back.
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if link.CurrentServing() == "new" {
			probe.errs = map[string]error{"new": errors.New("link lost")}
		}
		return nil
	}

	out, err := s.Failover(context.Background(), readyTarget("new"), 5, -110)
	if !errors.Is(err, model.ErrSwitchingFailed) {
		t.Fatalf("got %v, want ErrSwitchingFailed", err)
	}
	if !out.RolledBack || link.CurrentServing() != "old" {
		t.Fatalf("verify failure did not fail closed: serving=%s rolledBack=%v",
			link.CurrentServing(), out.RolledBack)
	}
}

func TestBuildSwitchingMechanism(t *testing.T) {
	m := NewManager(poolParams(), nil)
	snap := &model.PoolSnapshot{Entries: []model.BackupPoolEntry{
		{SatelliteID: "a", EvaluationScore: 0.9},
		{SatelliteID: "b", EvaluationScore: 0.7},
		{SatelliteID: "c", EvaluationScore: 0.5},
	}}

	mech := m.BuildSwitchingMechanism(snap)
	if len(mech.Priorities) != 3 {
		t.Fatalf("got %d priorities, want 3", len(mech.Priorities))
	}
	for i, p := range mech.Priorities {
		if p.PriorityRank != i+1 {
			t.Fatalf("rank %d at index %d", p.PriorityRank, i)
		}
		if want := baseSwitchSeconds + float64(i); p.EstimatedSwitchSeconds != want {
			t.Fatalf("switch estimate %.1f, want %.1f", p.EstimatedSwitchSeconds, want)
		}
		if want := snap.Entries[i].EvaluationScore * 0.9; math.Abs(p.ReadinessScore-want) > 1e-9 {
			t.Fatalf("readiness score %.3f, want %.3f", p.ReadinessScore, want)
		}
	}
	if mech.Priorities[0].Readiness != model.ReadinessReady {
		t.Fatal("0.9 evaluation not ready")
	}
	if mech.Priorities[2].Readiness != model.ReadinessStandby {
		t.Fatal("0.5 evaluation not standby")
	}

	// reliability = ready_ratio*0.6 + avg_readiness*0.4
	wantReliability := (2.0/3.0)*0.6 + ((0.9*0.9+0.7*0.9+0.5*0.9)/3)*0.4
	if math.Abs(mech.Readiness.Reliability-wantReliability) > 1e-9 {
		t.Fatalf("reliability %.4f, want %.4f", mech.Readiness.Reliability, wantReliability)
	}
	if mech.Triggers.SignalDegradation.ConfirmationWindow != 30*time.Second {
		t.Fatal("signal trigger confirmation window wrong")
	}
	if !mech.Triggers.ElevationLoss.Preemptive {
		t.Fatal("elevation trigger must allow preemptive switching")
	}
	if !mech.Triggers.AvailabilityDrop.Automatic {
		t.Fatal("availability trigger must allow automatic switching")
	}
}
