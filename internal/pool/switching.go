package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Switching trigger thresholds and phase budgets.
const (
	signalDegradationDBm  = -110.0
	elevationMinimumDeg   = 5.0
	availabilityThreshold = 0.95

	signalConfirmationWindow = 30 * time.Second
	availabilityAssessment   = 5 * time.Minute

	detectBudget        = 500 * time.Millisecond
	validateBudget      = 3 * time.Second
	defaultExecuteDelay = 5 * time.Second
	executeBudget       = 10 * time.Second
	verifyWindow        = 30 * time.Second

	baseSwitchSeconds = 5.0
)

// Trigger describes one class of condition that can start a failover.
type Trigger struct {
	Threshold          float64       `json:"threshold"`
	ConfirmationWindow time.Duration `json:"confirmation_window,omitempty"`
	AssessmentWindow   time.Duration `json:"assessment_window,omitempty"`
	Preemptive         bool          `json:"preemptive_switching,omitempty"`
	Automatic          bool          `json:"automatic_switching,omitempty"`
}

// Triggers groups the three failover trigger classes.
type Triggers struct {
	SignalDegradation Trigger `json:"signal_degradation"`
	ElevationLoss     Trigger `json:"elevation_loss"`
	AvailabilityDrop  Trigger `json:"availability_drop"`
}

// ReadinessAssessment summarizes how switchable the pool currently is.
type ReadinessAssessment struct {
	TotalReady       int     `json:"total_ready_backups"`
	AverageReadiness float64 `json:"average_readiness_score"`
	Reliability      float64 `json:"mechanism_reliability"`
}

// Mechanism is the ranked switching plan derived from a pool snapshot.
type Mechanism struct {
	MechanismID string                         `json:"mechanism_id"`
	Established time.Time                      `json:"established_timestamp"`
	Priorities  []model.SwitchingPriorityEntry `json:"switching_priorities"`
	Triggers    Triggers                       `json:"switching_triggers"`
	Readiness   ReadinessAssessment            `json:"readiness_assessment"`
}

// BuildSwitchingMechanism ranks the pool entries for failover. Entries keep
// the pool's evaluation order; readiness is slightly discounted from the
// evaluation score and estimated switch latency grows with rank.
func (m *Manager) BuildSwitchingMechanism(pool *model.PoolSnapshot) *Mechanism {
	priorities := make([]model.SwitchingPriorityEntry, 0, len(pool.Entries))
	for i, e := range pool.Entries {
		priorities = append(priorities, model.SwitchingPriorityEntry{
			PriorityRank:           i + 1,
			SatelliteID:            e.SatelliteID,
			EvaluationScore:        e.EvaluationScore,
			ReadinessScore:         e.EvaluationScore * 0.9,
			Readiness:              readinessFor(e.EvaluationScore),
			EstimatedSwitchSeconds: baseSwitchSeconds + float64(i),
		})
	}

	return &Mechanism{
		MechanismID: "switch_mech_" + uuid.NewString(),
		Established: m.now().UTC(),
		Priorities:  priorities,
		Triggers: Triggers{
			SignalDegradation: Trigger{
				Threshold:          signalDegradationDBm,
				ConfirmationWindow: signalConfirmationWindow,
			},
			ElevationLoss: Trigger{
				Threshold:  elevationMinimumDeg,
				Preemptive: true,
			},
			AvailabilityDrop: Trigger{
				Threshold:        availabilityThreshold,
				AssessmentWindow: availabilityAssessment,
				Automatic:        true,
			},
		},
		Readiness: assessReadiness(priorities),
	}
}

func assessReadiness(priorities []model.SwitchingPriorityEntry) ReadinessAssessment {
	if len(priorities) == 0 {
		return ReadinessAssessment{}
	}
	var ready int
	var sum float64
	for _, p := range priorities {
		if p.Readiness == model.ReadinessReady {
			ready++
		}
		sum += p.ReadinessScore
	}
	avg := sum / float64(len(priorities))
	readyRatio := float64(ready) / float64(len(priorities))
	return ReadinessAssessment{
		TotalReady:       ready,
		AverageReadiness: avg,
		Reliability:      readyRatio*0.6 + avg*0.4,
	}
}

// ---- Failover execution ----

// LinkController is the plane that actually moves the serving link.
type LinkController interface {
	CurrentServing() string
	SwitchTo(ctx context.Context, satelliteID string) error
}

// ProbeResult is an instantaneous link reading for one satellite.
type ProbeResult struct {
	ElevationDeg float64
	SignalDBm    float64
}

// HealthProbe measures a satellite's current link condition.
type HealthProbe interface {
	Probe(ctx context.Context, satelliteID string) (ProbeResult, error)
}

// PhaseResult records one failover phase for the audit trail.
type PhaseResult struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail,omitempty"`
}

// SwitchOutcome is the full record of one failover attempt.
type SwitchOutcome struct {
	From       string        `json:"from_satellite"`
	To         string        `json:"to_satellite"`
	Phases     []PhaseResult `json:"phases"`
	Completed  bool          `json:"completed"`
	RolledBack bool          `json:"rolled_back"`
}

// SwitchConfig overrides the default phase budgets, mainly for tests.
type SwitchConfig struct {
	ExecuteDelay time.Duration
	VerifyWindow time.Duration
	VerifyProbes int
}

// Switcher runs the four-phase failover: detect, validate, execute, verify.
// Every phase has a timeout, and a failure in any phase leaves the link on
// the previous serving satellite.
type Switcher struct {
	link  LinkController
	probe HealthProbe
	cfg   SwitchConfig
	log   logging.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSwitcher builds a switcher with production phase budgets.
func NewSwitcher(link LinkController, probe HealthProbe, cfg SwitchConfig, log logging.Logger) *Switcher {
	if cfg.ExecuteDelay <= 0 {
		cfg.ExecuteDelay = defaultExecuteDelay
	}
	if cfg.ExecuteDelay > executeBudget {
		cfg.ExecuteDelay = executeBudget
	}
	if cfg.VerifyWindow <= 0 {
		cfg.VerifyWindow = verifyWindow
	}
	if cfg.VerifyProbes <= 0 {
		cfg.VerifyProbes = 3
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Switcher{
		link:  link,
		probe: probe,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Failover moves the link from the current serving satellite to target.
// minElevationDeg and signalFloorDBm are the serving criteria the target
// must meet during validation and verification.
func (s *Switcher) Failover(ctx context.Context, target model.SwitchingPriorityEntry, minElevationDeg, signalFloorDBm float64) (*SwitchOutcome, error) {
	prev := s.link.CurrentServing()
	out := &SwitchOutcome{From: prev, To: target.SatelliteID}
	log := s.log.With(
		logging.String("from", prev),
		logging.String("to", target.SatelliteID))

	// Phase 1: detect. Confirm the current serving satellite is actually
	// degraded before giving it up.
	if ok := s.runPhase(ctx, out, "detect", detectBudget, func(ctx context.Context) error {
		if prev == "" {
			return nil // nothing serving, any backup is an improvement
		}
		r, err := s.probe.Probe(ctx, prev)
		if err != nil {
			return nil // unreachable serving satellite counts as degraded
		}
		if r.ElevationDeg >= minElevationDeg && r.SignalDBm >= signalFloorDBm {
			return fmt.Errorf("serving satellite %s still healthy", prev)
		}
		return nil
	}); !ok {
		log.Info(ctx, "failover aborted at detection, staying on serving satellite")
		return out, nil
	}

	// Phase 2: validate backup readiness, signal and position.
	if ok := s.runPhase(ctx, out, "validate", validateBudget, func(ctx context.Context) error {
		if target.Readiness != model.ReadinessReady {
			return fmt.Errorf("backup %s not ready", target.SatelliteID)
		}
		r, err := s.probe.Probe(ctx, target.SatelliteID)
		if err != nil {
			return fmt.Errorf("backup probe: %w", err)
		}
		if r.ElevationDeg < minElevationDeg {
			return fmt.Errorf("backup elevation %.1f° below %.1f°", r.ElevationDeg, minElevationDeg)
		}
		if r.SignalDBm < signalFloorDBm {
			return fmt.Errorf("backup signal %.1f dBm below %.1f dBm", r.SignalDBm, signalFloorDBm)
		}
		return nil
	}); !ok {
		log.Warn(ctx, "failover validation failed, staying on serving satellite")
		return out, fmt.Errorf("validate %s: %w", target.SatelliteID, model.ErrSwitchingFailed)
	}

	// Phase 3: execute after the configured delay, under the hard budget.
	if ok := s.runPhase(ctx, out, "execute", executeBudget, func(ctx context.Context) error {
		if err := s.sleep(ctx, s.cfg.ExecuteDelay); err != nil {
			return err
		}
		return s.link.SwitchTo(ctx, target.SatelliteID)
	}); !ok {
		s.rollback(ctx, out, prev)
		return out, fmt.Errorf("execute switch to %s: %w", target.SatelliteID, model.ErrSwitchingFailed)
	}

	// Phase 4: verify the new link holds over the observation window.
	if ok := s.runPhase(ctx, out, "verify", s.cfg.VerifyWindow+time.Second, func(ctx context.Context) error {
		interval := s.cfg.VerifyWindow / time.Duration(s.cfg.VerifyProbes)
		for i := 0; i < s.cfg.VerifyProbes; i++ {
			if err := s.sleep(ctx, interval); err != nil {
				return err
			}
			r, err := s.probe.Probe(ctx, target.SatelliteID)
			if err != nil {
				return fmt.Errorf("post-switch probe: %w", err)
			}
			if r.ElevationDeg < minElevationDeg || r.SignalDBm < signalFloorDBm {
				return fmt.Errorf("post-switch link degraded: elevation %.1f°, signal %.1f dBm",
					r.ElevationDeg, r.SignalDBm)
			}
		}
		return nil
	}); !ok {
		s.rollback(ctx, out, prev)
		return out, fmt.Errorf("verify switch to %s: %w", target.SatelliteID, model.ErrSwitchingFailed)
	}

	out.Completed = true
	log.Info(ctx, "failover complete")
	return out, nil
}

func (s *Switcher) runPhase(ctx context.Context, out *SwitchOutcome, name string, budget time.Duration, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := s.now()
	err := fn(ctx)
	pr := PhaseResult{Phase: name, Duration: s.now().Sub(start), OK: err == nil}
	if err != nil {
		pr.Detail = err.Error()
	}
	out.Phases = append(out.Phases, pr)
	return err == nil
}

// rollback returns the link to the previous serving satellite. Failing to
// roll back is logged but not surfaced; the link layer owns recovery at
// that point.
func (s *Switcher) rollback(ctx context.Context, out *SwitchOutcome, prev string) {
	out.RolledBack = true
	if prev == "" {
		return
	}
	if err := s.link.SwitchTo(context.WithoutCancel(ctx), prev); err != nil {
		s.log.Error(ctx, "rollback failed", logging.String("satellite_id", prev), logging.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
