package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"fleet-safety-service/internal/model"
)

func intPtr(v int) *int { return &v }

func dispatcherPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.UserRoleDispatcher}
}

func driverPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: model.UserRoleDriver}
}

func TestSelectBestTieBreakPrefersCheaper(t *testing.T) {
	candidates := []model.RouteCandidate{
		{Summary: "scenic", SafetyScore: intPtr(81), CostEstimate: 50, DurationMins: 200},
		{Summary: "motorway", SafetyScore: intPtr(80), CostEstimate: 45, DurationMins: 210},
	}
	best := SelectBest(candidates, 2)
	if best == nil || best.Summary != "motorway" {
		t.Fatalf("near-tie must fall to cheaper candidate, got %+v", best)
	}
}

func TestSelectBestClearScoreWins(t *testing.T) {
	candidates := []model.RouteCandidate{
		{Summary: "risky", SafetyScore: intPtr(70), CostEstimate: 10, DurationMins: 100},
		{Summary: "safe", SafetyScore: intPtr(90), CostEstimate: 99, DurationMins: 400},
	}
	best := SelectBest(candidates, 2)
	if best == nil || best.Summary != "safe" {
		t.Fatalf("clear score margin must win regardless of cost, got %+v", best)
	}
}

func TestSelectBestTieBreakDurationThenPartial(t *testing.T) {
	candidates := []model.RouteCandidate{
		{Summary: "slow", SafetyScore: intPtr(80), CostEstimate: 45, DurationMins: 250},
		{Summary: "fast", SafetyScore: intPtr(80), CostEstimate: 45, DurationMins: 200},
	}
	if best := SelectBest(candidates, 2); best == nil || best.Summary != "fast" {
		t.Fatalf("equal score and cost must fall to duration, got %+v", best)
	}

	candidates = []model.RouteCandidate{
		{Summary: "partial", SafetyScore: intPtr(80), CostEstimate: 45, DurationMins: 200, PartialScoring: true},
		{Summary: "complete", SafetyScore: intPtr(80), CostEstimate: 45, DurationMins: 200},
	}
	if best := SelectBest(candidates, 2); best == nil || best.Summary != "complete" {
		t.Fatalf("full tie must prefer complete scoring, got %+v", best)
	}
}

func TestSelectBestIgnoresUnscored(t *testing.T) {
	candidates := []model.RouteCandidate{
		{Summary: "unscored"},
		{Summary: "scored", SafetyScore: intPtr(40)},
	}
	if best := SelectBest(candidates, 2); best == nil || best.Summary != "scored" {
		t.Fatalf("unscored candidate must lose, got %+v", best)
	}
	if best := SelectBest(nil, 2); best != nil {
		t.Fatalf("empty slice must yield nil")
	}
}

func TestPlanRouteEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	ctx := context.Background()

	result, err := orchestrator.PlanRoute(ctx, dispatcherPrincipal(), RoutePlanRequest{
		Origin:      "London",
		Destination: "Manchester",
		VehicleID:   vehicle.ID,
		DriverID:    driver.ID,
		DepartureAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if result.Trip.Status != model.TripStatusPlanned {
		t.Fatalf("expected PLANNED trip, got %s", result.Trip.Status)
	}
	if result.Recommendation == nil || result.Recommendation.SafetyScore == nil {
		t.Fatalf("missing scored recommendation")
	}
	if len(result.Candidates) < 2 {
		t.Fatalf("expected alternatives, got %d candidates", len(result.Candidates))
	}
	if result.Trip.SelectedRouteID == nil || *result.Trip.SelectedRouteID != result.Recommendation.ID {
		t.Fatalf("recommendation not persisted as selected route")
	}

	history, err := env.trips.StatusHistory(ctx, result.Trip.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected created+planned log rows, got %d", len(history))
	}
}

func TestPlanRouteRequiresOperatorRole(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)

	_, err := orchestrator.PlanRoute(context.Background(), driverPrincipal(), RoutePlanRequest{
		Origin:      "London",
		Destination: "Manchester",
		VehicleID:   vehicle.ID,
		DriverID:    driver.ID,
		DepartureAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestTripLifecycle(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	principal := dispatcherPrincipal()
	ctx := context.Background()

	result, err := orchestrator.PlanRoute(ctx, principal, RoutePlanRequest{
		Origin:      "London",
		Destination: "Manchester",
		VehicleID:   vehicle.ID,
		DriverID:    driver.ID,
		DepartureAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	tripID := result.Trip.ID

	trip, err := orchestrator.ActivateTrip(ctx, principal, tripID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if trip.Status != model.TripStatusActive {
		t.Fatalf("expected ACTIVE, got %s", trip.Status)
	}

	trip, err = orchestrator.CompleteTrip(ctx, principal, tripID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if trip.Status != model.TripStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", trip.Status)
	}

	// Vehicle settles at the destination, driver books the driving time.
	settled, err := env.vehicles.GetByID(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("vehicle: %v", err)
	}
	if settled.CurrentLat == nil || *settled.CurrentLat != trip.DestinationLat {
		t.Fatalf("vehicle position not settled at destination")
	}
	booked, err := env.drivers.GetByID(ctx, driver.ID)
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	if booked.DrivenTodayMins <= 0 {
		t.Fatalf("driving minutes not booked")
	}

	// Terminal trips refuse further lifecycle changes.
	if _, err := orchestrator.ActivateTrip(ctx, principal, tripID); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on completed trip, got %v", err)
	}
}

func TestActivateRequiresPlannedTrip(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	trip := env.seedTrip(t, vehicle, driver, "london", "manchester", model.TripStatusRequested)

	_, err := orchestrator.ActivateTrip(context.Background(), dispatcherPrincipal(), trip.ID)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for unplanned trip, got %v", err)
	}

	_, err = orchestrator.ActivateTrip(context.Background(), dispatcherPrincipal(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown trip, got %v", err)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	ctx := context.Background()

	alert := &model.Alert{
		SubjectType: model.AlertSubjectVehicle,
		SubjectID:   uuid.New(),
		Severity:    model.AlertSeverityWarning,
		Reason:      model.AlertReasonBrakingPattern,
	}
	if err := env.alerts.Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	if _, err := orchestrator.AcknowledgeAlert(ctx, driverPrincipal(), alert.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for driver, got %v", err)
	}

	principal := dispatcherPrincipal()
	got, err := orchestrator.AcknowledgeAlert(ctx, principal, alert.ID)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !got.Acknowledged || got.AcknowledgedBy == nil || *got.AcknowledgedBy != principal.UserID {
		t.Fatalf("acknowledgement not recorded: %+v", got)
	}

	if _, err := orchestrator.AcknowledgeAlert(ctx, principal, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboardCounters(t *testing.T) {
	env := newTestEnv(t)
	orchestrator := env.orchestrator(t)
	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	principal := dispatcherPrincipal()
	ctx := context.Background()

	result, err := orchestrator.PlanRoute(ctx, principal, RoutePlanRequest{
		Origin:      "London",
		Destination: "Manchester",
		VehicleID:   vehicle.ID,
		DriverID:    driver.ID,
		DepartureAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := orchestrator.ActivateTrip(ctx, principal, result.Trip.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	summary, err := orchestrator.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.ActiveTrips != 1 || summary.ActiveVehicles != 1 {
		t.Fatalf("expected one active trip and vehicle, got %+v", summary)
	}
	if summary.LatestSnapshot != nil {
		t.Fatalf("no snapshot built yet")
	}
}
