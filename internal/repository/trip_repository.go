package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type TripRepository struct {
	db    *gorm.DB
	locks *EntityLocks
}

func NewTripRepository(db *gorm.DB, locks *EntityLocks) *TripRepository {
	return &TripRepository{db: db, locks: locks}
}

func (r *TripRepository) Create(ctx context.Context, trip *model.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(trip).Error; err != nil {
		return err
	}
	return r.logStatusChange(ctx, trip.ID, nil, trip.Status, "created", nil)
}

func (r *TripRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	var trip model.Trip
	err := r.db.WithContext(ctx).
		Preload("Vehicle").
		Preload("Driver").
		First(&trip, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *TripRepository) ListByStatus(ctx context.Context, statuses ...model.TripStatus) ([]model.Trip, error) {
	var trips []model.Trip
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at").
		Find(&trips).Error
	return trips, err
}

// ActiveByVehicle returns the vehicle's in-flight trip, or nil when the
// vehicle is idle.
func (r *TripRepository) ActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*model.Trip, error) {
	var trip model.Trip
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND status IN ?", vehicleID,
			[]model.TripStatus{model.TripStatusActive, model.TripStatusRerouting}).
		Order("created_at DESC").
		First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

type CompletedTripFilter struct {
	WindowStart time.Time
	WindowEnd   time.Time
	VehicleID   *uuid.UUID
	DriverID    *uuid.UUID
}

func (r *TripRepository) ListCompleted(ctx context.Context, filter CompletedTripFilter) ([]model.Trip, error) {
	query := r.db.WithContext(ctx).
		Preload("Vehicle").
		Where("status = ?", model.TripStatusCompleted).
		Where("updated_at >= ? AND updated_at <= ?", filter.WindowStart, filter.WindowEnd)
	if filter.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if filter.DriverID != nil {
		query = query.Where("driver_id = ?", *filter.DriverID)
	}

	var trips []model.Trip
	err := query.Order("updated_at").Find(&trips).Error
	return trips, err
}

// UpdateStatus validates the transition under the trip's entity lock,
// applies it and appends a status-log row. Terminal states are immutable.
func (r *TripRepository) UpdateStatus(ctx context.Context, id uuid.UUID, target model.TripStatus, note string, changedBy *uuid.UUID) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	trip, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !trip.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}

	if err := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", id).
		Update("status", target).Error; err != nil {
		return err
	}

	prev := trip.Status
	return r.logStatusChange(ctx, id, &prev, target, note, changedBy)
}

// SetSelectedRoute swaps the trip's current route under the entity lock and
// bumps the reroute counter when replacing an existing selection.
func (r *TripRepository) SetSelectedRoute(ctx context.Context, tripID, routeID uuid.UUID) error {
	unlock := r.locks.Lock(tripID)
	defer unlock()

	trip, err := r.GetByID(ctx, tripID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"selected_route_id": routeID}
	if trip.SelectedRouteID != nil && *trip.SelectedRouteID != routeID {
		updates["reroute_count"] = gorm.Expr("reroute_count + 1")
	}

	return r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", tripID).
		Updates(updates).Error
}

func (r *TripRepository) StatusHistory(ctx context.Context, tripID uuid.UUID) ([]model.TripStatusLog, error) {
	var entries []model.TripStatusLog
	err := r.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("created_at").
		Find(&entries).Error
	return entries, err
}

func (r *TripRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("status IN ?", []model.TripStatus{model.TripStatusActive, model.TripStatusRerouting}).
		Count(&count).Error
	return count, err
}

func (r *TripRepository) logStatusChange(ctx context.Context, tripID uuid.UUID, old *model.TripStatus, target model.TripStatus, note string, changedBy *uuid.UUID) error {
	return r.db.WithContext(ctx).Create(&model.TripStatusLog{
		TripID:    tripID,
		OldStatus: old,
		NewStatus: target,
		Note:      note,
		ChangedBy: changedBy,
	}).Error
}
