package repository

import (
	"context"
	"errors"
	"testing"

	"fleet-safety-service/internal/model"
)

func TestTripStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewTripRepository(db, NewEntityLocks())
	vehicle := seedVehicle(t, db, model.VehicleTypeDiesel)
	driver := seedDriver(t, db)
	trip := seedTrip(t, db, repo, vehicle, driver, model.TripStatusRequested)
	ctx := context.Background()

	steps := []model.TripStatus{
		model.TripStatusPlanned,
		model.TripStatusActive,
		model.TripStatusRerouting,
		model.TripStatusActive,
		model.TripStatusCompleted,
	}
	for _, target := range steps {
		if err := repo.UpdateStatus(ctx, trip.ID, target, "test", nil); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	// Completed is terminal.
	err := repo.UpdateStatus(ctx, trip.ID, model.TripStatusActive, "test", nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from terminal status, got %v", err)
	}

	history, err := repo.StatusHistory(ctx, trip.ID)
	if err != nil {
		t.Fatalf("status history: %v", err)
	}
	// One row for creation plus one per transition.
	if len(history) != len(steps)+1 {
		t.Fatalf("expected %d status-log rows, got %d", len(steps)+1, len(history))
	}
	if history[0].OldStatus != nil {
		t.Fatalf("creation row should have no old status")
	}
	last := history[len(history)-1]
	if last.NewStatus != model.TripStatusCompleted {
		t.Fatalf("expected last log row COMPLETED, got %s", last.NewStatus)
	}
}

func TestTripSkippingStatusRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewTripRepository(db, NewEntityLocks())
	vehicle := seedVehicle(t, db, model.VehicleTypeDiesel)
	driver := seedDriver(t, db)
	trip := seedTrip(t, db, repo, vehicle, driver, model.TripStatusRequested)

	err := repo.UpdateStatus(context.Background(), trip.ID, model.TripStatusActive, "test", nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for REQUESTED->ACTIVE, got %v", err)
	}
}

func TestSetSelectedRouteBumpsRerouteCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewTripRepository(db, NewEntityLocks())
	routes := NewRouteRepository(db)
	vehicle := seedVehicle(t, db, model.VehicleTypeDiesel)
	driver := seedDriver(t, db)
	trip := seedTrip(t, db, repo, vehicle, driver, model.TripStatusRequested)
	ctx := context.Background()

	candidates, err := routes.CreateBatch(ctx, []model.RouteCandidate{
		{TripID: trip.ID, Summary: "primary", DistanceMiles: 200},
		{TripID: trip.ID, Summary: "alternative", DistanceMiles: 220},
	})
	if err != nil {
		t.Fatalf("create candidates: %v", err)
	}

	if err := repo.SetSelectedRoute(ctx, trip.ID, candidates[0].ID); err != nil {
		t.Fatalf("first selection: %v", err)
	}
	got, err := repo.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.RerouteCount != 0 {
		t.Fatalf("first selection should not count as reroute, got %d", got.RerouteCount)
	}

	if err := repo.SetSelectedRoute(ctx, trip.ID, candidates[1].ID); err != nil {
		t.Fatalf("second selection: %v", err)
	}
	got, err = repo.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.RerouteCount != 1 {
		t.Fatalf("expected reroute count 1, got %d", got.RerouteCount)
	}
	if got.SelectedRouteID == nil || *got.SelectedRouteID != candidates[1].ID {
		t.Fatalf("selected route not updated")
	}
}

func TestActiveByVehicle(t *testing.T) {
	db := newTestDB(t)
	repo := NewTripRepository(db, NewEntityLocks())
	vehicle := seedVehicle(t, db, model.VehicleTypeDiesel)
	driver := seedDriver(t, db)
	ctx := context.Background()

	got, err := repo.ActiveByVehicle(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no active trip for idle vehicle")
	}

	trip := seedTrip(t, db, repo, vehicle, driver, model.TripStatusActive)
	got, err = repo.ActiveByVehicle(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if got == nil || got.ID != trip.ID {
		t.Fatalf("expected active trip %s", trip.ID)
	}
}
