package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type StopType string

const (
	StopTypeCharging  StopType = "CHARGING"
	StopTypeFuel      StopType = "FUEL"
	StopTypeRestBreak StopType = "REST_BREAK"
)

// PlannedStop is a charging, fuel or rest stop inserted into a candidate.
type PlannedStop struct {
	Type          StopType `json:"type"`
	Name          string   `json:"name"`
	Location      Waypoint `json:"location"`
	AfterWaypoint int      `json:"after_waypoint"`
	DurationMins  int      `json:"duration_mins"`
	Reason        string   `json:"reason"`
}

type RiskBand string

const (
	RiskBandLow      RiskBand = "LOW"
	RiskBandMedium   RiskBand = "MEDIUM"
	RiskBandHigh     RiskBand = "HIGH"
	RiskBandCritical RiskBand = "CRITICAL"
)

func RiskBandForScore(score int) RiskBand {
	switch {
	case score >= 80:
		return RiskBandLow
	case score >= 60:
		return RiskBandMedium
	case score >= 40:
		return RiskBandHigh
	default:
		return RiskBandCritical
	}
}

type RouteCandidate struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TripID  uuid.UUID `gorm:"type:uuid;not null" json:"trip_id"`
	Summary string    `gorm:"type:varchar(255)" json:"summary"`

	Waypoints []Waypoint    `gorm:"serializer:json" json:"waypoints"`
	Stops     []PlannedStop `gorm:"serializer:json" json:"stops"`

	DistanceMiles       float64 `json:"distance_miles"`
	DurationMins        float64 `json:"duration_mins"`
	TrafficDurationMins float64 `json:"traffic_duration_mins"`
	CostEstimate        float64 `json:"cost_estimate"`
	EnergyKWh           float64 `json:"energy_kwh"`
	FuelLitres          float64 `json:"fuel_litres"`

	SafetyScore    *int     `json:"safety_score"`
	RiskBand       RiskBand `gorm:"type:varchar(16)" json:"risk_band"`
	PartialScoring bool     `gorm:"not null;default:false" json:"partial_scoring"`
	Superseded     bool     `gorm:"not null;default:false" json:"superseded"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Factors []SafetyFactorResult `gorm:"foreignKey:RouteCandidateID" json:"factors,omitempty"`
}

func (RouteCandidate) TableName() string {
	return "route_candidates"
}

func (c *RouteCandidate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TotalDurationMins includes traffic-adjusted driving time plus stop time.
func (c RouteCandidate) TotalDurationMins() float64 {
	total := c.TrafficDurationMins
	if total == 0 {
		total = c.DurationMins
	}
	for _, stop := range c.Stops {
		total += float64(stop.DurationMins)
	}
	return total
}

type SafetyFactor string

const (
	FactorSpeedLimitVolatility SafetyFactor = "speed-limit-volatility"
	FactorTraffic              SafetyFactor = "traffic"
	FactorComplexity           SafetyFactor = "complexity"
	FactorAccidentDensity      SafetyFactor = "historical-accident-density"
	FactorWeather              SafetyFactor = "weather"
	FactorDriverExperience     SafetyFactor = "driver-experience"
	FactorEVRangeRisk          SafetyFactor = "ev-range-risk"
)

func AllSafetyFactors() []SafetyFactor {
	return []SafetyFactor{
		FactorSpeedLimitVolatility,
		FactorTraffic,
		FactorComplexity,
		FactorAccidentDensity,
		FactorWeather,
		FactorDriverExperience,
		FactorEVRangeRisk,
	}
}

type SafetyFactorResult struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RouteCandidateID uuid.UUID    `gorm:"type:uuid;not null" json:"route_candidate_id"`
	Factor           SafetyFactor `gorm:"type:varchar(64);not null" json:"factor"`
	Subscore         float64      `gorm:"not null" json:"subscore"`
	Weight           float64      `gorm:"not null" json:"weight"`
	Tag              string       `gorm:"type:varchar(255)" json:"tag"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (SafetyFactorResult) TableName() string {
	return "safety_factor_results"
}

func (r *SafetyFactorResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
