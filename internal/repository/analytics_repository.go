package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type AnalyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Replace swaps the snapshot for a window/filter wholesale; snapshots are
// never patched in place.
func (r *AnalyticsRepository) Replace(ctx context.Context, snapshot *model.AnalyticsSnapshot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("window_start = ? AND window_end = ?", snapshot.WindowStart, snapshot.WindowEnd)
		if snapshot.VehicleID != nil {
			query = query.Where("vehicle_id = ?", *snapshot.VehicleID)
		} else {
			query = query.Where("vehicle_id IS NULL")
		}
		if snapshot.DriverID != nil {
			query = query.Where("driver_id = ?", *snapshot.DriverID)
		} else {
			query = query.Where("driver_id IS NULL")
		}
		if err := query.Delete(&model.AnalyticsSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Create(snapshot).Error
	})
}

func (r *AnalyticsRepository) Latest(ctx context.Context) (*model.AnalyticsSnapshot, error) {
	var snapshot model.AnalyticsSnapshot
	err := r.db.WithContext(ctx).
		Where("vehicle_id IS NULL AND driver_id IS NULL").
		Order("created_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
