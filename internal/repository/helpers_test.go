package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fleet-safety-service/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	err = db.AutoMigrate(
		&model.Vehicle{},
		&model.Driver{},
		&model.Trip{},
		&model.RouteCandidate{},
		&model.SafetyFactorResult{},
		&model.TelemetryEvent{},
		&model.Alert{},
		&model.TripStatusLog{},
		&model.AnalyticsSnapshot{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

func seedVehicle(t *testing.T, db *gorm.DB, vehicleType model.VehicleType) *model.Vehicle {
	t.Helper()

	vehicle := &model.Vehicle{
		PlateNumber:    "AB12 CDE",
		Brand:          "Volvo",
		Model:          "FH",
		Type:           vehicleType,
		FuelTankLitres: 300,
		BatteryKWh:     250,
		MilesPerLitre:  2.0,
		MilesPerKWh:    1.5,
		RangeMiles:     600,
		EnergyLevelPct: 90,
	}
	if err := db.Create(vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return vehicle
}

func seedDriver(t *testing.T, db *gorm.DB) *model.Driver {
	t.Helper()

	driver := &model.Driver{
		FullName:    "Sam Carter",
		Experience:  model.DriverExperienceExperienced,
		SafetyScore: 100,
	}
	if err := db.Create(driver).Error; err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return driver
}

func seedTrip(t *testing.T, db *gorm.DB, repo *TripRepository, vehicle *model.Vehicle, driver *model.Driver, status model.TripStatus) *model.Trip {
	t.Helper()

	trip := &model.Trip{
		VehicleID:          vehicle.ID,
		DriverID:           driver.ID,
		OriginAddress:      "London",
		OriginLat:          51.5074,
		OriginLng:          -0.1278,
		DestinationAddress: "Manchester",
		DestinationLat:     53.4808,
		DestinationLng:     -2.2426,
		Status:             status,
	}
	if err := repo.Create(context.Background(), trip); err != nil {
		t.Fatalf("seed trip: %v", err)
	}
	return trip
}
