package model

import "time"

// AlertLevel orders coverage alerts by urgency.
type AlertLevel string

const (
	AlertInfo      AlertLevel = "info"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// SystemWide is the SatelliteID used for alerts not tied to one satellite.
const SystemWide = "system_wide"

// CoverageAlert is produced by the coverage monitor and consumed by the
// backup pool manager's switching logic and external sinks. Alerts are
// retained for 24 hours, never persisted beyond that.
type CoverageAlert struct {
	ID                string     `json:"alert_id"`
	Level             AlertLevel `json:"alert_level"`
	Timestamp         time.Time  `json:"timestamp"`
	SatelliteID       string     `json:"satellite_id"`
	Description       string     `json:"issue_description"`
	RecommendedAction string     `json:"recommended_action"`
	AutoResolvable    bool       `json:"auto_resolution_available"`
}

// CoverageStatus classifies the instantaneous coverage picture.
type CoverageStatus string

const (
	CoverageExcellent CoverageStatus = "excellent"
	CoverageGood      CoverageStatus = "good"
	CoverageFair      CoverageStatus = "fair"
	CoveragePoor      CoverageStatus = "poor"
)

// SatelliteHealth grades a single monitored satellite.
type SatelliteHealth string

const (
	HealthHealthy  SatelliteHealth = "healthy"
	HealthDegraded SatelliteHealth = "degraded"
	HealthCritical SatelliteHealth = "critical"
	HealthOffline  SatelliteHealth = "offline"
)
