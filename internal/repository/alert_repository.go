package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *model.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var alert model.Alert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

type AlertFilter struct {
	SubjectType *model.AlertSubject
	SubjectID   *uuid.UUID
	Severities  []model.AlertSeverity
	Reasons     []model.AlertReason
	Unacked     bool
	Limit       int
	Offset      int
}

func (r *AlertRepository) List(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := r.db.WithContext(ctx).Model(&model.Alert{})

	if filter.SubjectType != nil {
		query = query.Where("subject_type = ?", *filter.SubjectType)
	}
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if len(filter.Severities) > 0 {
		query = query.Where("severity IN ?", filter.Severities)
	}
	if len(filter.Reasons) > 0 {
		query = query.Where("reason IN ?", filter.Reasons)
	}
	if filter.Unacked {
		query = query.Where("acknowledged = FALSE")
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	} else {
		query = query.Limit(200)
	}

	var alerts []model.Alert
	err := query.Order("created_at DESC").Find(&alerts).Error
	return alerts, err
}

func (r *AlertRepository) Acknowledge(ctx context.Context, id, by uuid.UUID) (*model.Alert, error) {
	if err := r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_by": by,
		}).Error; err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Escalate raises an alert's severity. A lower or equal severity is a
// no-op: severity never decreases without an explicit re-evaluation.
func (r *AlertRepository) Escalate(ctx context.Context, id uuid.UUID, severity model.AlertSeverity) error {
	alert, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !severity.Outranks(alert.Severity) {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ?", id).
		Update("severity", severity).Error
}

func (r *AlertRepository) CountUnacknowledged(ctx context.Context) (total, critical int64, err error) {
	base := r.db.WithContext(ctx).Model(&model.Alert{}).Where("acknowledged = FALSE")
	if err = base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = base.Session(&gorm.Session{}).Where("severity = ?", model.AlertSeverityCritical).Count(&critical).Error; err != nil {
		return 0, 0, err
	}
	return total, critical, nil
}
