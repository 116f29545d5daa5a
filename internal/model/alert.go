package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "INFO"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

var severityRank = map[AlertSeverity]int{
	AlertSeverityInfo:     0,
	AlertSeverityWarning:  1,
	AlertSeverityCritical: 2,
}

// Outranks reports whether s is strictly more severe than other. Severity
// never decreases once escalated without an explicit re-evaluation.
func (s AlertSeverity) Outranks(other AlertSeverity) bool {
	return severityRank[s] > severityRank[other]
}

type AlertSubject string

const (
	AlertSubjectVehicle AlertSubject = "VEHICLE"
	AlertSubjectTrip    AlertSubject = "TRIP"
	AlertSubjectDriver  AlertSubject = "DRIVER"
)

type AlertReason string

const (
	AlertReasonBrakingPattern  AlertReason = "braking-pattern"
	AlertReasonSpeeding        AlertReason = "speeding"
	AlertReasonFatigue         AlertReason = "fatigue"
	AlertReasonReroute         AlertReason = "reroute"
	AlertReasonNoFeasibleRoute AlertReason = "no-feasible-route"
)

type Alert struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectType    AlertSubject  `gorm:"type:alert_subject;not null" json:"subject_type"`
	SubjectID      uuid.UUID     `gorm:"type:uuid;not null" json:"subject_id"`
	Severity       AlertSeverity `gorm:"type:alert_severity;not null" json:"severity"`
	Reason         AlertReason   `gorm:"type:varchar(64);not null" json:"reason"`
	Message        string        `gorm:"type:text" json:"message"`
	Acknowledged   bool          `gorm:"not null;default:false" json:"acknowledged"`
	AcknowledgedBy *uuid.UUID    `gorm:"type:uuid" json:"acknowledged_by"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
