package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type TelemetryRepository struct {
	db *gorm.DB
}

func NewTelemetryRepository(db *gorm.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Append inserts an event, rejecting any timestamp that is not strictly
// after the vehicle's latest event. The stream is append-only and
// monotonically increasing per vehicle.
func (r *TelemetryRepository) Append(ctx context.Context, event *model.TelemetryEvent) error {
	latest, err := r.LatestByVehicle(ctx, event.VehicleID)
	if err != nil {
		return err
	}
	if latest != nil && !event.Timestamp.After(latest.Timestamp) {
		return ErrStaleTimestamp
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *TelemetryRepository) LatestByVehicle(ctx context.Context, vehicleID uuid.UUID) (*model.TelemetryEvent, error) {
	var event model.TelemetryEvent
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("timestamp DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *TelemetryRepository) ListByVehicleSince(ctx context.Context, vehicleID uuid.UUID, since time.Time, types ...model.TelemetryEventType) ([]model.TelemetryEvent, error) {
	query := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND timestamp >= ?", vehicleID, since)
	if len(types) > 0 {
		query = query.Where("type IN ?", types)
	}

	var events []model.TelemetryEvent
	err := query.Order("timestamp").Find(&events).Error
	return events, err
}

func (r *TelemetryRepository) CountInWindow(ctx context.Context, start, end time.Time, types []model.TelemetryEventType, vehicleID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&model.TelemetryEvent{}).
		Where("timestamp >= ? AND timestamp <= ?", start, end)
	if len(types) > 0 {
		query = query.Where("type IN ?", types)
	}
	if vehicleID != nil {
		query = query.Where("vehicle_id = ?", *vehicleID)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}
