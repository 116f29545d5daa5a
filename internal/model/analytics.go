package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalyticsSnapshot is recomputed wholesale for a window; a snapshot is
// never partially updated in place.
type AnalyticsSnapshot struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WindowStart time.Time  `gorm:"not null" json:"window_start"`
	WindowEnd   time.Time  `gorm:"not null" json:"window_end"`
	VehicleID   *uuid.UUID `gorm:"type:uuid" json:"vehicle_id"`
	DriverID    *uuid.UUID `gorm:"type:uuid" json:"driver_id"`

	CompletedTrips int     `gorm:"not null" json:"completed_trips"`
	AvgSafetyScore float64 `json:"avg_safety_score"`
	// Telemetry detections per completed trip in the window.
	IncidentRate float64 `json:"incident_rate"`
	// kWh per mile over electric trips in the window.
	EnergyKWhPerMile float64 `json:"energy_kwh_per_mile"`
	CO2SavedKg       float64 `json:"co2_saved_kg"`
	TotalMiles       float64 `json:"total_miles"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AnalyticsSnapshot) TableName() string {
	return "analytics_snapshots"
}

func (s *AnalyticsSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
