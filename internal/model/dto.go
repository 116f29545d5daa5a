package model

import (
	"time"

	"github.com/google/uuid"
)

type VehicleBrief struct {
	ID          uuid.UUID   `json:"id"`
	PlateNumber string      `json:"plate_number"`
	Type        VehicleType `json:"type"`
	EnergyLevel float64     `json:"energy_level_pct"`
}

type DriverBrief struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	SafetyScore float64   `json:"safety_score"`
}

// RoutePlanResult is the orchestrator's answer to a route-plan request:
// all scored candidates in presentation order plus the recommendation
// after tie-break.
type RoutePlanResult struct {
	Trip           Trip             `json:"trip"`
	Candidates     []RouteCandidate `json:"candidates"`
	Recommendation *RouteCandidate  `json:"recommendation"`
	PartialScoring bool             `json:"partial_scoring"`
}

type TripStatusRecord struct {
	Trip          Trip            `json:"trip"`
	SelectedRoute *RouteCandidate `json:"selected_route"`
	PendingAlerts []Alert         `json:"pending_alerts"`
	Vehicle       *VehicleBrief   `json:"vehicle"`
	Driver        *DriverBrief    `json:"driver"`
}

type DashboardSummary struct {
	ActiveVehicles int64              `json:"active_vehicles"`
	ActiveTrips    int64              `json:"active_trips"`
	OpenAlerts     int64              `json:"open_alerts"`
	CriticalAlerts int64              `json:"critical_alerts"`
	LatestSnapshot *AnalyticsSnapshot `json:"latest_snapshot"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// FactorDelta explains a reroute decision: per-factor change between the
// replaced route and its replacement.
type FactorDelta struct {
	Factor   SafetyFactor `json:"factor"`
	OldScore float64      `json:"old_score"`
	NewScore float64      `json:"new_score"`
}
