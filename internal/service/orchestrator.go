package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// OrchestratorService is the single entry point for route planning, trip
// lifecycle, dashboards and alert acknowledgement. It owns the tie-break
// policy and is the only component that moves a trip to ACTIVE or COMPLETED.
type OrchestratorService struct {
	planner   *PlannerService
	scorer    *ScorerService
	monitor   *MonitorManager
	analytics *AnalyticsService
	trips     *repository.TripRepository
	routes    *repository.RouteRepository
	vehicles  *repository.VehicleRepository
	drivers   *repository.DriverRepository
	alerts    *repository.AlertRepository
	snapshots *repository.AnalyticsRepository
	cfg       config.OrchestratorConfig
	log       zerolog.Logger
}

func NewOrchestratorService(
	planner *PlannerService,
	scorer *ScorerService,
	monitor *MonitorManager,
	analytics *AnalyticsService,
	trips *repository.TripRepository,
	routes *repository.RouteRepository,
	vehicles *repository.VehicleRepository,
	drivers *repository.DriverRepository,
	alerts *repository.AlertRepository,
	snapshots *repository.AnalyticsRepository,
	cfg config.OrchestratorConfig,
	log zerolog.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		planner:   planner,
		scorer:    scorer,
		monitor:   monitor,
		analytics: analytics,
		trips:     trips,
		routes:    routes,
		vehicles:  vehicles,
		drivers:   drivers,
		alerts:    alerts,
		snapshots: snapshots,
		cfg:       cfg,
		log:       log,
	}
}

// SelectBest applies the tie-break policy: highest composite score wins;
// within epsilon points prefer lower cost, then lower duration, then the
// candidate without a partial-scoring flag. Unscored candidates lose to
// scored ones.
func SelectBest(candidates []model.RouteCandidate, epsilon int) *model.RouteCandidate {
	var best *model.RouteCandidate
	for i := range candidates {
		candidate := &candidates[i]
		if best == nil || betterCandidate(candidate, best, epsilon) {
			best = candidate
		}
	}
	return best
}

func betterCandidate(a, b *model.RouteCandidate, epsilon int) bool {
	if a.SafetyScore == nil {
		return false
	}
	if b.SafetyScore == nil {
		return true
	}
	diff := *a.SafetyScore - *b.SafetyScore
	if diff >= epsilon || diff <= -epsilon {
		return diff > 0
	}
	if a.CostEstimate != b.CostEstimate {
		return a.CostEstimate < b.CostEstimate
	}
	if a.TotalDurationMins() != b.TotalDurationMins() {
		return a.TotalDurationMins() < b.TotalDurationMins()
	}
	if a.PartialScoring != b.PartialScoring {
		return !a.PartialScoring
	}
	return diff > 0
}

// PlanRoute runs the full pipeline for a route-plan request: validate,
// create the trip, generate candidates, score them, select and persist the
// recommendation.
func (s *OrchestratorService) PlanRoute(ctx context.Context, principal model.Principal, req RoutePlanRequest) (*model.RoutePlanResult, error) {
	if !principal.CanOperate() {
		return nil, ErrPermissionDenied
	}

	resolved, err := s.planner.ValidateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	trip := &model.Trip{
		VehicleID:            resolved.Vehicle.ID,
		DriverID:             resolved.Driver.ID,
		OriginAddress:        req.Origin,
		OriginLat:            resolved.Origin.Lat,
		OriginLng:            resolved.Origin.Lng,
		DestinationAddress:   req.Destination,
		DestinationLat:       resolved.Destination.Lat,
		DestinationLng:       resolved.Destination.Lng,
		RequestedDepartureAt: resolved.DepartureAt,
		Status:               model.TripStatusRequested,
	}
	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	candidates, err := s.planner.GenerateCandidates(ctx, trip, resolved.Vehicle, resolved.Driver, resolved.Origin, resolved.DepartureAt)
	if err != nil {
		return nil, err
	}

	if err := s.scorer.ScoreCandidates(ctx, resolved.Vehicle, resolved.Driver, candidates, resolved.DepartureAt); err != nil {
		return nil, err
	}

	best := SelectBest(candidates, s.cfg.TieBreakEpsilon)
	if best == nil {
		return nil, fmt.Errorf("%w: scoring produced no usable candidate", ErrNoFeasibleRoute)
	}

	if err := s.trips.SetSelectedRoute(ctx, trip.ID, best.ID); err != nil {
		return nil, err
	}
	if err := s.trips.UpdateStatus(ctx, trip.ID, model.TripStatusPlanned, "candidates generated and scored", &principal.UserID); err != nil {
		return nil, err
	}

	trip.Status = model.TripStatusPlanned
	trip.SelectedRouteID = &best.ID

	partial := false
	for _, candidate := range candidates {
		if candidate.PartialScoring {
			partial = true
			break
		}
	}

	s.log.Info().
		Str("trip_id", trip.ID.String()).
		Int("candidates", len(candidates)).
		Int("best_score", *best.SafetyScore).
		Msg("route plan ready")

	return &model.RoutePlanResult{
		Trip:           *trip,
		Candidates:     candidates,
		Recommendation: best,
		PartialScoring: partial,
	}, nil
}

// ActivateTrip moves a planned (or held rerouting) trip to ACTIVE and
// starts its monitoring loop.
func (s *OrchestratorService) ActivateTrip(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.Trip, error) {
	if !principal.CanOperate() {
		return nil, ErrPermissionDenied
	}

	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SelectedRouteID == nil {
		return nil, fmt.Errorf("%w: trip has no selected route", ErrInvalidStatus)
	}

	if err := s.transition(ctx, tripID, model.TripStatusActive, "activated", &principal.UserID); err != nil {
		return nil, err
	}

	s.monitor.StartTrip(tripID)

	return s.getTrip(ctx, tripID)
}

// CompleteTrip finalises an active trip: stops monitoring, settles the
// vehicle at the destination and books driving time on the driver's
// hours-of-service ledger.
func (s *OrchestratorService) CompleteTrip(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.Trip, error) {
	if !principal.CanOperate() {
		return nil, ErrPermissionDenied
	}

	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, tripID, model.TripStatusCompleted, "completed", &principal.UserID); err != nil {
		return nil, err
	}

	s.monitor.StopTrip(tripID)

	if err := s.vehicles.UpdatePosition(ctx, trip.VehicleID, trip.DestinationLat, trip.DestinationLng); err != nil {
		s.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("failed to settle vehicle position")
	}
	if trip.SelectedRouteID != nil {
		if route, err := s.routes.GetByID(ctx, *trip.SelectedRouteID); err == nil {
			mins := int(route.TotalDurationMins())
			if err := s.drivers.AddDrivingMinutes(ctx, trip.DriverID, mins); err != nil {
				s.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("failed to book driving minutes")
			}
		}
	}

	return s.getTrip(ctx, tripID)
}

func (s *OrchestratorService) CancelTrip(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.Trip, error) {
	if !principal.CanOperate() {
		return nil, ErrPermissionDenied
	}
	if err := s.transition(ctx, tripID, model.TripStatusCancelled, "cancelled", &principal.UserID); err != nil {
		return nil, err
	}
	s.monitor.StopTrip(tripID)
	return s.getTrip(ctx, tripID)
}

// TripStatus returns the trip, its selected route and any pending alerts.
func (s *OrchestratorService) TripStatus(ctx context.Context, tripID uuid.UUID) (*model.TripStatusRecord, error) {
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	record := &model.TripStatusRecord{Trip: *trip}
	if trip.SelectedRouteID != nil {
		route, err := s.routes.GetByID(ctx, *trip.SelectedRouteID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		record.SelectedRoute = route
	}

	subject := model.AlertSubjectTrip
	alerts, err := s.alerts.List(ctx, repository.AlertFilter{
		SubjectType: &subject,
		SubjectID:   &tripID,
		Unacked:     true,
	})
	if err != nil {
		return nil, err
	}
	record.PendingAlerts = alerts

	if trip.Vehicle != nil {
		record.Vehicle = &model.VehicleBrief{
			ID:          trip.Vehicle.ID,
			PlateNumber: trip.Vehicle.PlateNumber,
			Type:        trip.Vehicle.Type,
			EnergyLevel: trip.Vehicle.EnergyLevelPct,
		}
	}
	if trip.Driver != nil {
		record.Driver = &model.DriverBrief{
			ID:          trip.Driver.ID,
			FullName:    trip.Driver.FullName,
			SafetyScore: trip.Driver.SafetyScore,
		}
	}

	return record, nil
}

func (s *OrchestratorService) AcknowledgeAlert(ctx context.Context, principal model.Principal, alertID uuid.UUID) (*model.Alert, error) {
	if !principal.CanOperate() {
		return nil, ErrPermissionDenied
	}
	if _, err := s.alerts.GetByID(ctx, alertID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.alerts.Acknowledge(ctx, alertID, principal.UserID)
}

func (s *OrchestratorService) ListAlerts(ctx context.Context, filter repository.AlertFilter) ([]model.Alert, error) {
	return s.alerts.List(ctx, filter)
}

// Dashboard aggregates fleet-wide counters with the latest fleet snapshot.
func (s *OrchestratorService) Dashboard(ctx context.Context) (*model.DashboardSummary, error) {
	activeVehicles, err := s.vehicles.CountWithActiveTrips(ctx)
	if err != nil {
		return nil, err
	}
	activeTrips, err := s.trips.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	openAlerts, criticalAlerts, err := s.alerts.CountUnacknowledged(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.snapshots.Latest(ctx)
	if err != nil {
		return nil, err
	}

	return &model.DashboardSummary{
		ActiveVehicles: activeVehicles,
		ActiveTrips:    activeTrips,
		OpenAlerts:     openAlerts,
		CriticalAlerts: criticalAlerts,
		LatestSnapshot: latest,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

func (s *OrchestratorService) BuildAnalytics(ctx context.Context, req AnalyticsRequest) (*model.AnalyticsSnapshot, error) {
	return s.analytics.BuildSnapshot(ctx, req)
}

func (s *OrchestratorService) getTrip(ctx context.Context, tripID uuid.UUID) (*model.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

func (s *OrchestratorService) transition(ctx context.Context, tripID uuid.UUID, target model.TripStatus, note string, by *uuid.UUID) error {
	err := s.trips.UpdateStatus(ctx, tripID, target, note, by)
	if errors.Is(err, repository.ErrInvalidTransition) {
		return fmt.Errorf("%w: cannot move trip to %s", ErrInvalidStatus, target)
	}
	return err
}
