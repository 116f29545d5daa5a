package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/gateway"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

type testEnv struct {
	db        *gorm.DB
	gw        *gateway.StaticGateway
	vehicles  *repository.VehicleRepository
	drivers   *repository.DriverRepository
	trips     *repository.TripRepository
	routes    *repository.RouteRepository
	telemetry *repository.TelemetryRepository
	alerts    *repository.AlertRepository
	snapshots *repository.AnalyticsRepository
}

func newTestEnv(t *testing.T) *testEnv {
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

	locks := repository.NewEntityLocks()
	return &testEnv{
		db:        db,
		gw:        gateway.NewStaticGateway(),
		vehicles:  repository.NewVehicleRepository(db, locks),
		drivers:   repository.NewDriverRepository(db, locks),
		trips:     repository.NewTripRepository(db, locks),
		routes:    repository.NewRouteRepository(db),
		telemetry: repository.NewTelemetryRepository(db),
		alerts:    repository.NewAlertRepository(db),
		snapshots: repository.NewAnalyticsRepository(db),
	}
}

func testPlannerConfig() config.PlannerConfig {
	return config.PlannerConfig{
		ReserveMarginPct:    20,
		FastChargeMins:      45,
		FuelStopMins:        15,
		RestBreakMins:       30,
		RestBreakAfter:      4 * time.Hour,
		MaxShiftDriving:     9 * time.Hour,
		DieselPriceLitre:    1.45,
		EnergyPriceKWh:      0.45,
		ElevationKWhPer100m: 1.5,
		ChargeStationRadius: 5000,
		RankKey:             "cost",
	}
}

func testScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{FactorTimeout: 2 * time.Second}
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		PollInterval:      time.Minute,
		DelayThreshold:    15 * time.Minute,
		ImprovementMargin: 5,
		CriticalChargePct: 10,
	}
}

func testTelemetryConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		HarshBrakeCount:   3,
		HarshBrakeWindow:  10 * time.Minute,
		SpeedingMarginMph: 10,
		SpeedingSustain:   2 * time.Minute,
		HOSMaxContinuous:  4*time.Hour + 30*time.Minute,
		PenaltyDecay:      0.9,
	}
}

func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		DieselKgCO2PerLitre: 2.68,
		GridKgCO2PerKWh:     0.21,
	}
}

func (e *testEnv) planner(t *testing.T) *PlannerService {
	t.Helper()
	return NewPlannerService(e.vehicles, e.drivers, e.routes, e.gw, testPlannerConfig(), zerolog.Nop())
}

func (e *testEnv) scorer(t *testing.T) *ScorerService {
	t.Helper()
	return NewScorerService(e.routes, e.gw, e.gw, testScorerConfig(), zerolog.Nop())
}

func (e *testEnv) monitor(t *testing.T) *MonitorManager {
	t.Helper()
	return NewMonitorManager(
		e.planner(t), e.scorer(t),
		e.trips, e.routes, e.vehicles, e.drivers, e.alerts,
		e.gw, e.gw,
		testMonitorConfig(), 2, zerolog.Nop(),
	)
}

func (e *testEnv) analytics(t *testing.T) *AnalyticsService {
	t.Helper()
	return NewAnalyticsService(e.trips, e.routes, e.telemetry, e.snapshots, testAnalyticsConfig(), zerolog.Nop())
}

func (e *testEnv) orchestrator(t *testing.T) *OrchestratorService {
	t.Helper()
	return NewOrchestratorService(
		e.planner(t), e.scorer(t), e.monitor(t), e.analytics(t),
		e.trips, e.routes, e.vehicles, e.drivers, e.alerts, e.snapshots,
		config.OrchestratorConfig{TieBreakEpsilon: 2}, zerolog.Nop(),
	)
}

func (e *testEnv) seedDieselVehicle(t *testing.T) *model.Vehicle {
	t.Helper()
	vehicle := &model.Vehicle{
		PlateNumber:    "HT63 KLM",
		Brand:          "Scania",
		Model:          "R450",
		Type:           model.VehicleTypeDiesel,
		FuelTankLitres: 300,
		MilesPerLitre:  2.0,
		RangeMiles:     600,
		EnergyLevelPct: 95,
	}
	if err := e.db.Create(vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return vehicle
}

func (e *testEnv) seedElectricVehicle(t *testing.T, batteryKWh, energyPct float64) *model.Vehicle {
	t.Helper()
	vehicle := &model.Vehicle{
		PlateNumber:    "EV24 XYZ",
		Brand:          "Volvo",
		Model:          "FM Electric",
		Type:           model.VehicleTypeElectric,
		BatteryKWh:     batteryKWh,
		MilesPerKWh:    2.5,
		RangeMiles:     batteryKWh * 2.5,
		EnergyLevelPct: energyPct,
	}
	if err := e.db.Create(vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return vehicle
}

func (e *testEnv) seedDriver(t *testing.T, experience model.DriverExperience) *model.Driver {
	t.Helper()
	driver := &model.Driver{
		FullName:    "Alex Morgan",
		Experience:  experience,
		SafetyScore: 100,
	}
	if err := e.db.Create(driver).Error; err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return driver
}

func (e *testEnv) seedTrip(t *testing.T, vehicle *model.Vehicle, driver *model.Driver, originCity, destCity string, status model.TripStatus) *model.Trip {
	t.Helper()

	origin := e.gw.Geocodes[originCity]
	destination := e.gw.Geocodes[destCity]
	trip := &model.Trip{
		VehicleID:            vehicle.ID,
		DriverID:             driver.ID,
		OriginAddress:        originCity,
		OriginLat:            origin.Lat,
		OriginLng:            origin.Lng,
		DestinationAddress:   destCity,
		DestinationLat:       destination.Lat,
		DestinationLng:       destination.Lng,
		RequestedDepartureAt: time.Now().Add(time.Hour),
		Status:               status,
	}
	if err := e.trips.Create(context.Background(), trip); err != nil {
		t.Fatalf("seed trip: %v", err)
	}
	return trip
}
