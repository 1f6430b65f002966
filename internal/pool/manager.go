package pool

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Candidate pairs a catalog satellite with its pipeline score so the pool
// can reason about both orbital elements and link quality.
type Candidate struct {
	Sat   model.Satellite
	Score model.SatelliteScore
}

// Suitability score components. Base plus bonuses, clamped to [0,1].
const (
	suitabilityBase    = 0.5
	constellationBonus = 0.1 // known mega-constellation
	positionBonus      = 0.2 // usable position time series present
	visibilityBonus    = 0.1

	// orbitalStability is a flat estimate; modern LEO birds hold their
	// shells tightly enough that per-satellite modelling is not worth it.
	orbitalStability = 0.85

	readyThreshold = 0.6
)

// Manager establishes and evaluates the standby backup pool.
type Manager struct {
	cfg config.PoolParams
	log logging.Logger
	now func() time.Time
}

// NewManager builds a pool manager from the pool bounds in cfg.
func NewManager(cfg config.PoolParams, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{cfg: cfg, log: log, now: time.Now}
}

// EstablishPool evaluates every candidate not in the exclude set, ranks
// them by evaluation score and takes the top targetSize, clamped into the
// configured [min,max] bounds. An undersized pool is still returned, marked
// Degraded, together with ErrPoolExhausted; the planner keeps running with
// whatever backups exist.
func (m *Manager) EstablishPool(ctx context.Context, candidates []Candidate, exclude map[string]struct{}, targetSize int) (*model.PoolSnapshot, error) {
	if targetSize <= 0 {
		targetSize = m.cfg.TargetPoolSize
	}
	if targetSize < m.cfg.MinPoolSize {
		targetSize = m.cfg.MinPoolSize
	}
	if targetSize > m.cfg.MaxPoolSize {
		targetSize = m.cfg.MaxPoolSize
	}

	available := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, serving := exclude[c.Sat.ID]; serving {
			continue
		}
		available = append(available, c)
	}

	entries := make([]model.BackupPoolEntry, 0, len(available))
	for _, c := range available {
		entries = append(entries, m.EvaluateCandidate(c))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EvaluationScore != entries[j].EvaluationScore {
			return entries[i].EvaluationScore > entries[j].EvaluationScore
		}
		return entries[i].SatelliteID < entries[j].SatelliteID
	})
	if len(entries) > targetSize {
		entries = entries[:targetSize]
	}

	snap := &model.PoolSnapshot{
		PoolID:      "backup_pool_" + uuid.NewString(),
		Established: m.now().UTC(),
		TargetSize:  targetSize,
		Entries:     entries,
		Quality:     m.qualityMetrics(entries, available),
	}

	if len(entries) < m.cfg.MinPoolSize {
		snap.Degraded = true
		m.log.Warn(ctx, "backup pool degraded",
			logging.Int("entries", len(entries)),
			logging.Int("min_pool_size", m.cfg.MinPoolSize))
		return snap, fmt.Errorf("pool has %d of %d minimum backups: %w",
			len(entries), m.cfg.MinPoolSize, model.ErrPoolExhausted)
	}

	m.log.Info(ctx, "backup pool established",
		logging.String("pool_id", snap.PoolID),
		logging.Int("entries", len(entries)),
		logging.Int("target", targetSize))
	return snap, nil
}

// EvaluateCandidate computes one candidate's backup pool entry: suitability
// score, signal quality, coverage contribution, grade and role.
func (m *Manager) EvaluateCandidate(c Candidate) model.BackupPoolEntry {
	score := suitabilityBase
	switch c.Sat.Constellation {
	case model.ConstellationStarlink, model.ConstellationOneWeb:
		score += constellationBonus
	}
	if c.Score.Visibility != nil {
		score += positionBonus
		if c.Score.Visibility.VisiblePassCount > 0 {
			score += visibilityBonus
		}
	}
	score = clamp01(score)

	return model.BackupPoolEntry{
		SatelliteID:          c.Sat.ID,
		Constellation:        c.Sat.Constellation,
		EvaluationScore:      score,
		SignalQuality:        signalQuality(c.Score.Visibility),
		CoverageContribution: coverageContribution(c.Sat.Constellation),
		OrbitalStability:     orbitalStability,
		Grade:                model.GradeForScore(score),
		RecommendedRole:      recommendRole(score, signalQuality(c.Score.Visibility)),
		Readiness:            readinessFor(score),
	}
}

func (m *Manager) qualityMetrics(entries []model.BackupPoolEntry, available []Candidate) model.PoolQualityMetrics {
	q := model.PoolQualityMetrics{OrbitalDiversity: orbitalDiversity(available, entries)}
	if len(entries) == 0 {
		return q
	}
	var sum float64
	for _, e := range entries {
		sum += e.EvaluationScore
	}
	q.AverageEvaluationScore = sum / float64(len(entries))
	q.CoverageRedundancy = len(entries) - 1
	return q
}

// signalQuality maps the averaged RSRP estimate into [0,1]. -120 dBm or
// worse scores zero, -80 dBm or better scores one. No analysis means no
// opinion, which lands in the middle.
func signalQuality(v *model.VisibilityAnalysis) float64 {
	if v == nil {
		return 0.5
	}
	return clamp01((v.EstimatedSignalDBm + 120) / 40)
}

func coverageContribution(c model.Constellation) float64 {
	switch c {
	case model.ConstellationStarlink:
		return 0.8
	case model.ConstellationOneWeb:
		return 0.7
	default:
		return 0.6
	}
}

func recommendRole(score, signal float64) model.BackupRole {
	switch {
	case score >= 0.8 && signal >= 0.8:
		return model.RolePrimaryBackup
	case score >= 0.6:
		return model.RoleSecondaryBackup
	default:
		return model.RoleStandbyBackup
	}
}

func readinessFor(score float64) model.ReadinessStatus {
	if score > readyThreshold {
		return model.ReadinessReady
	}
	return model.ReadinessStandby
}

// orbitalDiversity estimates how spread the pool members' orbital planes
// are, from the RAAN and inclination standard deviations of the selected
// entries' satellites. Fewer than two members gives the neutral 0.5.
func orbitalDiversity(available []Candidate, entries []model.BackupPoolEntry) float64 {
	selected := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		selected[e.SatelliteID] = struct{}{}
	}
	var raans, incls []float64
	for _, c := range available {
		if _, ok := selected[c.Sat.ID]; !ok {
			continue
		}
		raans = append(raans, c.Sat.RAANDeg)
		incls = append(incls, c.Sat.InclinationDeg)
	}
	if len(raans) < 2 {
		return 0.5
	}
	// A uniform RAAN spread tops out well above 90°, inclination spread
	// across shells well above 20°; both saturate at 1.
	return clamp01(stddev(raans)/90)*0.5 + clamp01(stddev(incls)/20)*0.5
}

func stddev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var varSum float64
	for _, x := range xs {
		varSum += (x - mean) * (x - mean)
	}
	return math.Sqrt(varSum / float64(len(xs)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
