package model

import "time"

// SuitabilityGrade buckets a backup candidate's evaluation score.
type SuitabilityGrade string

const (
	GradeExcellent SuitabilityGrade = "excellent"
	GradeGood      SuitabilityGrade = "good"
	GradeFair      SuitabilityGrade = "fair"
	GradePoor      SuitabilityGrade = "poor"
)

// GradeForScore maps an evaluation score in [0,1] onto a grade.
func GradeForScore(score float64) SuitabilityGrade {
	switch {
	case score >= 0.8:
		return GradeExcellent
	case score >= 0.7:
		return GradeGood
	case score >= 0.5:
		return GradeFair
	default:
		return GradePoor
	}
}

// BackupRole is the role a pool member is recommended for.
type BackupRole string

const (
	RolePrimaryBackup   BackupRole = "primary_backup"
	RoleSecondaryBackup BackupRole = "secondary_backup"
	RoleStandbyBackup   BackupRole = "standby_backup"
)

// ReadinessStatus says whether a backup can be switched to immediately.
type ReadinessStatus string

const (
	ReadinessReady   ReadinessStatus = "ready"
	ReadinessStandby ReadinessStatus = "standby"
)

// BackupPoolEntry is one evaluated member of the standby pool. Entries are
// created when a pool is (re-)established and recomputed whenever the
// candidate catalog or thresholds change.
type BackupPoolEntry struct {
	SatelliteID   string        `json:"satellite_id"`
	Constellation Constellation `json:"-"`

	EvaluationScore      float64          `json:"evaluation_score"`
	SignalQuality        float64          `json:"signal_quality_score"`
	CoverageContribution float64          `json:"coverage_contribution"`
	OrbitalStability     float64          `json:"orbital_stability"`
	Grade                SuitabilityGrade `json:"backup_suitability_grade"`
	RecommendedRole      BackupRole       `json:"recommended_role"`
	Readiness            ReadinessStatus  `json:"readiness_status"`
}

// SwitchingPriorityEntry is the ranked switching view over a pool entry.
// The list is recomputed whenever the backup pool changes.
type SwitchingPriorityEntry struct {
	PriorityRank           int             `json:"priority_rank"`
	SatelliteID            string          `json:"satellite_id"`
	EvaluationScore        float64         `json:"evaluation_score"`
	ReadinessScore         float64         `json:"readiness_score"`
	Readiness              ReadinessStatus `json:"readiness_status"`
	EstimatedSwitchSeconds float64         `json:"estimated_switching_time_seconds"`
}

// PoolQualityMetrics summarizes a freshly established pool.
type PoolQualityMetrics struct {
	AverageEvaluationScore float64 `json:"average_evaluation_score"`
	CoverageRedundancy     int     `json:"coverage_redundancy"`
	OrbitalDiversity       float64 `json:"orbital_diversity"`
}

// PoolSnapshot is an immutable view of the backup pool at one instant.
// Snapshots are swapped atomically; readers never see a partial pool.
type PoolSnapshot struct {
	PoolID      string             `json:"pool_id"`
	Established time.Time          `json:"established_timestamp"`
	TargetSize  int                `json:"target_size"`
	Entries     []BackupPoolEntry  `json:"backup_satellites"`
	Quality     PoolQualityMetrics `json:"pool_quality_metrics"`

	// Degraded is set when fewer than the minimum pool size of candidates
	// were available. The pool keeps operating with what it has.
	Degraded bool `json:"degraded"`
}
