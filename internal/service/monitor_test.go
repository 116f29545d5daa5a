package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"fleet-safety-service/internal/gateway"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// activeTripWithRoute plans, scores and activates a trip so the monitor has
// something to evaluate, optionally pinning the selected route's score.
func activeTripWithRoute(t *testing.T, env *testEnv, pinnedScore *int) *model.Trip {
	t.Helper()
	ctx := context.Background()

	vehicle := env.seedDieselVehicle(t)
	driver := env.seedDriver(t, model.DriverExperienceExperienced)
	trip := env.seedTrip(t, vehicle, driver, "london", "manchester", model.TripStatusRequested)

	candidates, err := env.planner(t).GenerateCandidates(ctx, trip, vehicle, driver, trip.Origin(), time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := env.scorer(t).ScoreCandidates(ctx, vehicle, driver, candidates, time.Now()); err != nil {
		t.Fatalf("score: %v", err)
	}

	selected := candidates[0]
	if pinnedScore != nil {
		if err := env.routes.SaveScore(ctx, selected.ID, *pinnedScore, model.RiskBandForScore(*pinnedScore), false, selected.Factors); err != nil {
			t.Fatalf("pin score: %v", err)
		}
	}

	if err := env.trips.SetSelectedRoute(ctx, trip.ID, selected.ID); err != nil {
		t.Fatalf("select route: %v", err)
	}
	for _, status := range []model.TripStatus{model.TripStatusPlanned, model.TripStatusActive} {
		if err := env.trips.UpdateStatus(ctx, trip.ID, status, "test", nil); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	return trip
}

func TestEvaluateTripNoTriggerLeavesRouteAlone(t *testing.T) {
	env := newTestEnv(t)
	trip := activeTripWithRoute(t, env, nil)
	monitor := env.monitor(t)
	ctx := context.Background()

	decision, err := monitor.EvaluateTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Triggered || decision.Rerouted {
		t.Fatalf("default conditions must not trigger, got %+v", decision)
	}

	got, err := env.trips.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.Status != model.TripStatusActive || got.RerouteCount != 0 {
		t.Fatalf("trip disturbed without trigger: %+v", got)
	}
}

func TestEvaluateTripReroutesOnSustainedDelay(t *testing.T) {
	env := newTestEnv(t)
	// Pin the current route well below any fresh score so the
	// replacement clears the improvement margin.
	trip := activeTripWithRoute(t, env, intPtr(40))
	env.gw.TrafficFn = func(ctx context.Context, path []model.Waypoint) (gateway.TrafficConditions, error) {
		return gateway.TrafficConditions{DelayMins: 20}, nil
	}
	monitor := env.monitor(t)
	ctx := context.Background()

	oldRouteID := mustSelectedRoute(t, env, trip.ID)

	decision, err := monitor.EvaluateTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Triggered || !decision.Rerouted {
		t.Fatalf("20-minute delay must trigger a reroute, got %+v", decision)
	}
	if decision.NewRouteID == nil || *decision.NewRouteID == oldRouteID {
		t.Fatalf("reroute must select a fresh route")
	}
	if len(decision.FactorDeltas) == 0 {
		t.Fatalf("reroute decision must explain factor deltas")
	}

	got, err := env.trips.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.Status != model.TripStatusActive {
		t.Fatalf("trip must resume ACTIVE after reroute, got %s", got.Status)
	}
	if got.RerouteCount != 1 {
		t.Fatalf("expected reroute count 1, got %d", got.RerouteCount)
	}

	// Old candidates superseded, alert raised.
	old, err := env.routes.GetByID(ctx, oldRouteID)
	if err != nil {
		t.Fatalf("old route: %v", err)
	}
	if !old.Superseded {
		t.Fatalf("replaced route must be superseded")
	}
	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Unacked: true})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Reason != model.AlertReasonReroute {
		t.Fatalf("expected one reroute alert, got %+v", alerts)
	}
}

func TestEvaluateTripKeepsRouteWithinImprovementMargin(t *testing.T) {
	env := newTestEnv(t)
	// Current route pinned high: a fresh scoring pass cannot beat it by
	// more than the margin.
	trip := activeTripWithRoute(t, env, intPtr(95))
	env.gw.TrafficFn = func(ctx context.Context, path []model.Waypoint) (gateway.TrafficConditions, error) {
		return gateway.TrafficConditions{DelayMins: 20}, nil
	}
	monitor := env.monitor(t)
	ctx := context.Background()

	oldRouteID := mustSelectedRoute(t, env, trip.ID)

	decision, err := monitor.EvaluateTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Triggered || decision.Rerouted {
		t.Fatalf("marginal replacement must keep the current route, got %+v", decision)
	}

	got, err := env.trips.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.Status != model.TripStatusActive {
		t.Fatalf("trip must resume ACTIVE, got %s", got.Status)
	}
	if got.SelectedRouteID == nil || *got.SelectedRouteID != oldRouteID {
		t.Fatalf("selected route must be unchanged")
	}
	if got.RerouteCount != 0 {
		t.Fatalf("kept route must not count as reroute")
	}
}

func TestEvaluateTripHoldsOnCriticalWithNoFeasibleRoute(t *testing.T) {
	env := newTestEnv(t)
	trip := activeTripWithRoute(t, env, nil)
	// Closure on the current route is critical; replanning finds nothing.
	env.gw.TrafficFn = func(ctx context.Context, path []model.Waypoint) (gateway.TrafficConditions, error) {
		return gateway.TrafficConditions{
			DelayMins: 2,
			Incidents: []gateway.Incident{{Type: gateway.IncidentClosure}},
		}, nil
	}
	env.gw.DirectionsFn = func(ctx context.Context, req gateway.DirectionsRequest) ([]gateway.Route, error) {
		return nil, nil
	}
	monitor := env.monitor(t)
	ctx := context.Background()

	decision, err := monitor.EvaluateTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Critical {
		t.Fatalf("closure must be critical, got %+v", decision)
	}

	got, err := env.trips.GetByID(ctx, trip.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.Status != model.TripStatusRerouting {
		t.Fatalf("trip must hold in REROUTING for dispatcher intervention, got %s", got.Status)
	}

	alerts, err := env.alerts.List(ctx, repository.AlertFilter{Unacked: true})
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Reason != model.AlertReasonNoFeasibleRoute || alerts[0].Severity != model.AlertSeverityCritical {
		t.Fatalf("expected one critical no-feasible-route alert, got %+v", alerts)
	}
}

func TestEvaluateTripStopsOnTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	trip := activeTripWithRoute(t, env, nil)
	ctx := context.Background()
	if err := env.trips.UpdateStatus(ctx, trip.ID, model.TripStatusCompleted, "test", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := env.monitor(t).EvaluateTrip(ctx, trip.ID)
	if !errors.Is(err, errTripFinished) {
		t.Fatalf("expected errTripFinished, got %v", err)
	}
}

func TestProjectedChargeTriggersForLowElectricBattery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Short enough that a full battery plans without charging stops.
	vehicle := env.seedElectricVehicle(t, 75, 100)
	driver := env.seedDriver(t, model.DriverExperienceExpert)
	trip := env.seedTrip(t, vehicle, driver, "london", "bristol", model.TripStatusRequested)

	candidates, err := env.planner(t).GenerateCandidates(ctx, trip, vehicle, driver, trip.Origin(), time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := env.scorer(t).ScoreCandidates(ctx, vehicle, driver, candidates, time.Now()); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := env.trips.SetSelectedRoute(ctx, trip.ID, candidates[0].ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	for _, status := range []model.TripStatus{model.TripStatusPlanned, model.TripStatusActive} {
		if err := env.trips.UpdateStatus(ctx, trip.ID, status, "test", nil); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}

	// Battery drained mid-trip far below what the remaining distance needs.
	if err := env.vehicles.UpdateEnergyLevel(ctx, vehicle.ID, 8); err != nil {
		t.Fatalf("drain battery: %v", err)
	}

	monitor := env.monitor(t)
	decision, err := monitor.EvaluateTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Triggered || !decision.Critical {
		t.Fatalf("projected charge below floor must be a critical trigger, got %+v", decision)
	}
}

func mustSelectedRoute(t *testing.T, env *testEnv, tripID uuid.UUID) uuid.UUID {
	t.Helper()
	trip, err := env.trips.GetByID(context.Background(), tripID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if trip.SelectedRouteID == nil {
		t.Fatalf("trip has no selected route")
	}
	return *trip.SelectedRouteID
}
