package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TelemetryEventType string

const (
	TelemetryHarshBrake    TelemetryEventType = "HARSH_BRAKE"
	TelemetrySpeeding      TelemetryEventType = "SPEEDING"
	TelemetryFatigueSignal TelemetryEventType = "FATIGUE_SIGNAL"
	TelemetryLocationPing  TelemetryEventType = "LOCATION_PING"
)

// TelemetryEvent is append-only; rows are never mutated after insert.
type TelemetryEvent struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	VehicleID uuid.UUID          `gorm:"type:uuid;not null" json:"vehicle_id"`
	Timestamp time.Time          `gorm:"not null" json:"timestamp"`
	Type      TelemetryEventType `gorm:"type:telemetry_event_type;not null" json:"type"`

	// Magnitude is event-specific: g-force for harsh brakes, mph over the
	// posted limit for speeding samples, minutes driven for fatigue signals.
	Magnitude float64 `json:"magnitude"`

	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	SpeedMph       *float64 `json:"speed_mph"`
	PostedLimitMph *float64 `json:"posted_limit_mph"`
	EnergyLevelPct *float64 `json:"energy_level_pct"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TelemetryEvent) TableName() string {
	return "telemetry_events"
}

func (e *TelemetryEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
