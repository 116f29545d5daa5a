package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type DriverRepository struct {
	db    *gorm.DB
	locks *EntityLocks
}

func NewDriverRepository(db *gorm.DB, locks *EntityLocks) *DriverRepository {
	return &DriverRepository{db: db, locks: locks}
}

func (r *DriverRepository) Create(ctx context.Context, driver *model.Driver) error {
	return r.db.WithContext(ctx).Create(driver).Error
}

func (r *DriverRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	var driver model.Driver
	if err := r.db.WithContext(ctx).First(&driver, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &driver, nil
}

// ApplySafetyPenalty folds a detection penalty into the driver's rolling
// safety record with a decaying average: new = old*decay + (old-penalty)*(1-decay).
func (r *DriverRepository) ApplySafetyPenalty(ctx context.Context, id uuid.UUID, penalty, decay float64) (float64, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	driver, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	updated := driver.SafetyScore*decay + (driver.SafetyScore-penalty)*(1-decay)
	if updated < 0 {
		updated = 0
	}
	if updated > 100 {
		updated = 100
	}

	err = r.db.WithContext(ctx).
		Model(&model.Driver{}).
		Where("id = ?", id).
		Update("safety_score", updated).Error
	return updated, err
}

func (r *DriverRepository) AddDrivingMinutes(ctx context.Context, id uuid.UUID, mins int) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	return r.db.WithContext(ctx).
		Model(&model.Driver{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"driven_today_mins":       gorm.Expr("driven_today_mins + ?", mins),
			"continuous_driving_mins": gorm.Expr("continuous_driving_mins + ?", mins),
		}).Error
}

func (r *DriverRepository) RecordBreak(ctx context.Context, id uuid.UUID, at time.Time) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	return r.db.WithContext(ctx).
		Model(&model.Driver{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"continuous_driving_mins": 0,
			"last_break_at":           at,
		}).Error
}
