package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

func (e *testEnv) telemetryService(t *testing.T) *TelemetryService {
	t.Helper()
	return NewTelemetryService(e.telemetry, e.vehicles, e.drivers, e.trips, e.alerts, testTelemetryConfig(), zerolog.Nop())
}

func floatPtr(v float64) *float64 { return &v }

func TestHandleEventRejectsStaleTimestamps(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &model.TelemetryEvent{VehicleID: vehicle.ID, Timestamp: now, Type: model.TelemetryLocationPing}
	if err := svc.HandleEvent(ctx, first); err != nil {
		t.Fatalf("first event: %v", err)
	}

	stale := &model.TelemetryEvent{VehicleID: vehicle.ID, Timestamp: now.Add(-time.Minute), Type: model.TelemetryLocationPing}
	if err := svc.HandleEvent(ctx, stale); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for stale event, got %v", err)
	}
}

func TestLocationPingUpdatesVehicleState(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()

	event := &model.TelemetryEvent{
		VehicleID:      vehicle.ID,
		Timestamp:      time.Now().UTC(),
		Type:           model.TelemetryLocationPing,
		Lat:            floatPtr(52.4862),
		Lng:            floatPtr(-1.8904),
		EnergyLevelPct: floatPtr(63.5),
	}
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := env.vehicles.GetByID(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	if got.CurrentLat == nil || *got.CurrentLat != 52.4862 {
		t.Fatalf("position not updated: %+v", got)
	}
	if got.EnergyLevelPct != 63.5 {
		t.Fatalf("energy level not updated: %f", got.EnergyLevelPct)
	}
}

func TestHarshBrakePatternRaisesAlertAndPenalisesDriver(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	trip := env.seedTrip(t, vehicle, driver, "london", "manchester", model.TripStatusActive)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		event := &model.TelemetryEvent{
			VehicleID: vehicle.ID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      model.TelemetryHarshBrake,
			Magnitude: 0.45,
		}
		if err := svc.HandleEvent(ctx, event); err != nil {
			t.Fatalf("brake %d: %v", i, err)
		}
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Unacked: true})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one braking-pattern alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.Reason != model.AlertReasonBrakingPattern {
		t.Fatalf("unexpected reason %s", alert.Reason)
	}
	if alert.SubjectType != model.AlertSubjectTrip || alert.SubjectID != trip.ID {
		t.Fatalf("alert must target the active trip, got %+v", alert)
	}

	got, err := env.drivers.GetByID(ctx, driver.ID)
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	if got.SafetyScore >= 100 {
		t.Fatalf("driver penalty not applied, score %.1f", got.SafetyScore)
	}
}

func TestTwoHarshBrakesStayQuiet(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 2; i++ {
		event := &model.TelemetryEvent{
			VehicleID: vehicle.ID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      model.TelemetryHarshBrake,
			Magnitude: 0.42,
		}
		if err := svc.HandleEvent(ctx, event); err != nil {
			t.Fatalf("brake %d: %v", i, err)
		}
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("below-threshold braking must not alert, got %d", len(alerts))
	}
}

func TestSustainedSpeedingRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Three over-margin samples spanning the sustain window.
	for i := 0; i <= 2; i++ {
		event := &model.TelemetryEvent{
			VehicleID:      vehicle.ID,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			Type:           model.TelemetrySpeeding,
			Magnitude:      12,
			SpeedMph:       floatPtr(82),
			PostedLimitMph: floatPtr(70),
		}
		if err := svc.HandleEvent(ctx, event); err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Reasons: []model.AlertReason{model.AlertReasonSpeeding}})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one speeding alert, got %d", len(alerts))
	}
}

func TestBriefSpeedingStaysQuiet(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// A single over-margin sample does not span the sustain window.
	event := &model.TelemetryEvent{
		VehicleID: vehicle.ID,
		Timestamp: base,
		Type:      model.TelemetrySpeeding,
		Magnitude: 15,
	}
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("sample: %v", err)
	}

	// An under-margin sample resets the streak.
	mild := &model.TelemetryEvent{
		VehicleID: vehicle.ID,
		Timestamp: base.Add(time.Minute),
		Type:      model.TelemetrySpeeding,
		Magnitude: 3,
	}
	if err := svc.HandleEvent(ctx, mild); err != nil {
		t.Fatalf("mild sample: %v", err)
	}
	late := &model.TelemetryEvent{
		VehicleID: vehicle.ID,
		Timestamp: base.Add(2 * time.Minute),
		Type:      model.TelemetrySpeeding,
		Magnitude: 15,
	}
	if err := svc.HandleEvent(ctx, late); err != nil {
		t.Fatalf("late sample: %v", err)
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Reasons: []model.AlertReason{model.AlertReasonSpeeding}})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("broken streak must not alert, got %d", len(alerts))
	}
}

func TestFatigueDetectionIsMandatory(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	ctx := context.Background()

	// 280 continuous minutes against a 270-minute limit; fires on the
	// very first signal with no debounce.
	event := &model.TelemetryEvent{
		VehicleID: vehicle.ID,
		Timestamp: time.Now().UTC(),
		Type:      model.TelemetryFatigueSignal,
		Magnitude: 280,
	}
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Reasons: []model.AlertReason{model.AlertReasonFatigue}})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one fatigue alert, got %d", len(alerts))
	}
	if alerts[0].SubjectType != model.AlertSubjectVehicle {
		t.Fatalf("no active trip: alert must target the vehicle, got %s", alerts[0].SubjectType)
	}
}

func TestIngestProcessesBatchAsynchronously(t *testing.T) {
	env := newTestEnv(t)
	svc := env.telemetryService(t)
	vehicle := env.seedDieselVehicle(t)
	base := time.Now().UTC()

	events := []model.TelemetryEvent{
		{VehicleID: vehicle.ID, Timestamp: base, Type: model.TelemetryLocationPing, Lat: floatPtr(51.6), Lng: floatPtr(-0.2)},
		{VehicleID: vehicle.ID, Timestamp: base.Add(time.Second), Type: model.TelemetryLocationPing, Lat: floatPtr(51.7), Lng: floatPtr(-0.3)},
	}
	if accepted := svc.Ingest(events); accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", accepted)
	}

	deadline := time.After(2 * time.Second)
	for {
		latest, err := env.telemetry.LatestByVehicle(context.Background(), vehicle.ID)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if latest != nil && latest.Timestamp.Equal(base.Add(time.Second)) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("batch not processed in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	svc.Shutdown()
}
