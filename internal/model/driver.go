package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DriverExperience string

const (
	DriverExperienceNew         DriverExperience = "NEW"
	DriverExperienceExperienced DriverExperience = "EXPERIENCED"
	DriverExperienceExpert      DriverExperience = "EXPERT"
)

type Driver struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	FullName   string           `gorm:"type:varchar(255);not null" json:"full_name"`
	Phone      string           `gorm:"type:varchar(32)" json:"phone"`
	Experience DriverExperience `gorm:"type:driver_experience;not null;default:'EXPERIENCED'" json:"experience"`

	// Rolling safety record, 0-100, penalised by telemetry detections
	// with a decaying average.
	SafetyScore float64 `gorm:"not null;default:100" json:"safety_score"`

	// Hours-of-service ledger.
	ShiftStartedAt    *time.Time `json:"shift_started_at"`
	DrivenTodayMins   int        `json:"driven_today_mins"`
	ContinuousDriving int        `gorm:"column:continuous_driving_mins" json:"continuous_driving_mins"`
	LastBreakAt       *time.Time `json:"last_break_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Driver) TableName() string {
	return "drivers"
}

func (d *Driver) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// RemainingDriving reports how much driving time is left in the shift
// before the hours-of-service limit is reached.
func (d Driver) RemainingDriving(maxShift time.Duration) time.Duration {
	remaining := maxShift - time.Duration(d.DrivenTodayMins)*time.Minute
	if remaining < 0 {
		return 0
	}
	return remaining
}
