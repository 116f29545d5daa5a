package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TripStatus string

const (
	TripStatusRequested TripStatus = "REQUESTED"
	TripStatusPlanned   TripStatus = "PLANNED"
	TripStatusActive    TripStatus = "ACTIVE"
	TripStatusRerouting TripStatus = "REROUTING"
	TripStatusCompleted TripStatus = "COMPLETED"
	TripStatusCancelled TripStatus = "CANCELLED"
)

// IsTerminal reports whether the status is immutable once reached.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusRequested: {TripStatusPlanned, TripStatusCancelled},
	TripStatusPlanned:   {TripStatusActive, TripStatusCancelled},
	TripStatusActive:    {TripStatusRerouting, TripStatusCompleted, TripStatusCancelled},
	TripStatusRerouting: {TripStatusActive, TripStatusCancelled},
}

func (s TripStatus) CanTransitionTo(target TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type Trip struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VehicleID uuid.UUID `gorm:"type:uuid;not null" json:"vehicle_id"`
	DriverID  uuid.UUID `gorm:"type:uuid;not null" json:"driver_id"`

	OriginAddress      string  `gorm:"type:text;not null" json:"origin_address"`
	OriginLat          float64 `json:"origin_lat"`
	OriginLng          float64 `json:"origin_lng"`
	DestinationAddress string  `gorm:"type:text;not null" json:"destination_address"`
	DestinationLat     float64 `json:"destination_lat"`
	DestinationLng     float64 `json:"destination_lng"`

	RequestedDepartureAt time.Time  `gorm:"not null" json:"requested_departure_at"`
	Status               TripStatus `gorm:"type:trip_status;not null;default:'REQUESTED'" json:"status"`
	SelectedRouteID      *uuid.UUID `gorm:"type:uuid" json:"selected_route_id"`
	RerouteCount         int        `gorm:"not null;default:0" json:"reroute_count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Vehicle *Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
	Driver  *Driver  `gorm:"foreignKey:DriverID" json:"driver,omitempty"`
}

func (Trip) TableName() string {
	return "trips"
}

func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t Trip) Origin() Waypoint {
	return Waypoint{Lat: t.OriginLat, Lng: t.OriginLng}
}

func (t Trip) Destination() Waypoint {
	return Waypoint{Lat: t.DestinationLat, Lng: t.DestinationLng}
}

type TripStatusLog struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TripID    uuid.UUID   `gorm:"type:uuid;not null" json:"trip_id"`
	OldStatus *TripStatus `gorm:"type:trip_status" json:"old_status"`
	NewStatus TripStatus  `gorm:"type:trip_status;not null" json:"new_status"`
	Note      string      `gorm:"type:text" json:"note"`
	ChangedBy *uuid.UUID  `gorm:"type:uuid" json:"changed_by"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (TripStatusLog) TableName() string {
	return "trip_status_log"
}

func (l *TripStatusLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
