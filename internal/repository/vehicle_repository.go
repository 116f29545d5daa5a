package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type VehicleRepository struct {
	db    *gorm.DB
	locks *EntityLocks
}

func NewVehicleRepository(db *gorm.DB, locks *EntityLocks) *VehicleRepository {
	return &VehicleRepository{db: db, locks: locks}
}

func (r *VehicleRepository) Create(ctx context.Context, vehicle *model.Vehicle) error {
	return r.db.WithContext(ctx).Create(vehicle).Error
}

func (r *VehicleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := r.db.WithContext(ctx).First(&vehicle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *VehicleRepository) List(ctx context.Context) ([]model.Vehicle, error) {
	var vehicles []model.Vehicle
	if err := r.db.WithContext(ctx).Order("created_at").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (r *VehicleRepository) UpdatePosition(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	return r.db.WithContext(ctx).
		Model(&model.Vehicle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_lat": lat,
			"current_lng": lng,
		}).Error
}

func (r *VehicleRepository) UpdateEnergyLevel(ctx context.Context, id uuid.UUID, pct float64) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return r.db.WithContext(ctx).
		Model(&model.Vehicle{}).
		Where("id = ?", id).
		Update("energy_level_pct", pct).Error
}

func (r *VehicleRepository) CountWithActiveTrips(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("status IN ?", []model.TripStatus{model.TripStatusActive, model.TripStatusRerouting}).
		Distinct("vehicle_id").
		Count(&count).Error
	return count, err
}
