package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VehicleType string

const (
	VehicleTypeDiesel   VehicleType = "DIESEL"
	VehicleTypeElectric VehicleType = "ELECTRIC"
	VehicleTypeHybrid   VehicleType = "HYBRID"
)

type Vehicle struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	PlateNumber string      `gorm:"type:varchar(32);not null" json:"plate_number"`
	Brand       string      `gorm:"type:varchar(64)" json:"brand"`
	Model       string      `gorm:"type:varchar(64)" json:"model"`
	Type        VehicleType `gorm:"type:vehicle_type;not null" json:"type"`

	// Capacity attributes. FuelTankLitres applies to diesel/hybrid,
	// BatteryKWh to electric/hybrid.
	FuelTankLitres float64 `json:"fuel_tank_litres"`
	BatteryKWh     float64 `json:"battery_kwh"`
	MilesPerLitre  float64 `json:"miles_per_litre"`
	MilesPerKWh    float64 `json:"miles_per_kwh"`
	RangeMiles     float64 `json:"range_miles"`

	// Current energy level as a percentage of capacity (fuel or charge).
	EnergyLevelPct float64 `json:"energy_level_pct"`

	CurrentLat *float64  `json:"current_lat"`
	CurrentLng *float64  `json:"current_lng"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (v Vehicle) IsElectric() bool {
	return v.Type == VehicleTypeElectric
}

// EfficiencyMiles returns miles per consumption unit (litre or kWh).
func (v Vehicle) EfficiencyMiles() float64 {
	if v.IsElectric() {
		return v.MilesPerKWh
	}
	return v.MilesPerLitre
}

func (v Vehicle) Location() *Waypoint {
	if v.CurrentLat == nil || v.CurrentLng == nil {
		return nil
	}
	return &Waypoint{Lat: *v.CurrentLat, Lng: *v.CurrentLng}
}
