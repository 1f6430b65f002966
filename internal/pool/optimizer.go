package pool

import (
	"math"
	"sort"

	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/logging"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Efficiency component weights.
const (
	weightBalance    = 0.4
	weightCoverage   = 0.3
	weightRedundancy = 0.2
	weightResource   = 0.1
)

// DefaultTargetRatios is the constellation mix the optimizer steers toward.
var DefaultTargetRatios = map[model.Constellation]float64{
	model.ConstellationStarlink: 0.6,
	model.ConstellationOneWeb:   0.4,
}

// EfficiencyReport breaks the pool's efficiency into its components.
type EfficiencyReport struct {
	Overall    float64 `json:"overall_efficiency"`
	Coverage   float64 `json:"coverage_efficiency"`
	Resource   float64 `json:"resource_efficiency"`
	Balance    float64 `json:"balance_efficiency"`
	Redundancy float64 `json:"redundancy_efficiency"`
}

// BalanceResult reports a constellation-rebalancing run.
type BalanceResult struct {
	Balanced    []model.BackupPoolEntry         `json:"balanced_pool"`
	Before      float64                         `json:"current_balance_score"`
	After       float64                         `json:"optimized_balance_score"`
	Improvement float64                         `json:"balance_improvement"`
	Targets     map[model.Constellation]float64 `json:"-"`
}

// Optimizer tunes an established pool's size and constellation mix.
type Optimizer struct {
	cfg config.PoolParams
	log logging.Logger
}

// NewOptimizer builds an optimizer around the configured pool bounds.
func NewOptimizer(cfg config.PoolParams, log logging.Logger) *Optimizer {
	if log == nil {
		log = logging.Noop()
	}
	return &Optimizer{cfg: cfg, log: log}
}

// Efficiency scores the pool on coverage, resource use, constellation
// balance and redundancy, and blends them into an overall figure.
func (o *Optimizer) Efficiency(entries []model.BackupPoolEntry) EfficiencyReport {
	if len(entries) == 0 {
		return EfficiencyReport{}
	}

	size := float64(len(entries))
	target := float64(o.cfg.TargetPoolSize)
	dist := distribution(entries)

	balance := balanceScore(dist, DefaultTargetRatios)
	coverage := clamp01((math.Min(size/target, 1) + balance) / 2)

	resource := 0.5
	if len(entries) >= o.cfg.MinPoolSize && len(entries) <= o.cfg.MaxPoolSize {
		resource = math.Max(0, 1-math.Abs(size-target)/target)
	}

	redundancy := clamp01(size / (target * o.cfg.RedundancyFactor))

	return EfficiencyReport{
		Overall: weightCoverage*coverage + weightResource*resource +
			weightBalance*balance + weightRedundancy*redundancy,
		Coverage:   coverage,
		Resource:   resource,
		Balance:    balance,
		Redundancy: redundancy,
	}
}

// BalanceConstellations requotas the pool toward the target constellation
// ratios. Each targeted constellation keeps at most floor(size × ratio) of
// its best entries; overrepresented and untargeted entries are dropped, so
// the balanced pool may be smaller than the input.
func (o *Optimizer) BalanceConstellations(entries []model.BackupPoolEntry, targets map[model.Constellation]float64) BalanceResult {
	if targets == nil {
		targets = DefaultTargetRatios
	}
	res := BalanceResult{Targets: targets}
	if len(entries) == 0 {
		return res
	}
	res.Before = balanceScore(distribution(entries), targets)

	byConstellation := make(map[model.Constellation][]model.BackupPoolEntry)
	for _, e := range entries {
		byConstellation[e.Constellation] = append(byConstellation[e.Constellation], e)
	}
	for _, group := range byConstellation {
		sortByScore(group)
	}

	total := len(entries)
	var balanced []model.BackupPoolEntry
	for c, ratio := range targets {
		group := byConstellation[c]
		quota := int(float64(total) * ratio)
		if quota > len(group) {
			quota = len(group)
		}
		balanced = append(balanced, group[:quota]...)
	}
	sortByScore(balanced)

	res.Balanced = balanced
	res.After = balanceScore(distribution(balanced), targets)
	res.Improvement = res.After - res.Before
	return res
}

// FilterByQuality drops entries whose evaluation score falls below the
// threshold.
func (o *Optimizer) FilterByQuality(entries []model.BackupPoolEntry, threshold float64) []model.BackupPoolEntry {
	kept := make([]model.BackupPoolEntry, 0, len(entries))
	for _, e := range entries {
		if e.EvaluationScore >= threshold {
			kept = append(kept, e)
		}
	}
	return kept
}

func distribution(entries []model.BackupPoolEntry) map[model.Constellation]float64 {
	dist := make(map[model.Constellation]float64)
	for _, e := range entries {
		dist[e.Constellation]++
	}
	for c := range dist {
		dist[c] /= float64(len(entries))
	}
	return dist
}

// balanceScore is the mean closeness of the actual mix to the target mix,
// one minus the ratio deviation per targeted constellation.
func balanceScore(dist, targets map[model.Constellation]float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	var sum float64
	for c, want := range targets {
		sum += math.Max(0, 1-math.Abs(dist[c]-want))
	}
	return sum / float64(len(targets))
}

func sortByScore(entries []model.BackupPoolEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EvaluationScore != entries[j].EvaluationScore {
			return entries[i].EvaluationScore > entries[j].EvaluationScore
		}
		return entries[i].SatelliteID < entries[j].SatelliteID
	})
}
