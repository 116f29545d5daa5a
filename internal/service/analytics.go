package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// detectionTypes are the telemetry events counted as incidents.
var detectionTypes = []model.TelemetryEventType{
	model.TelemetryHarshBrake,
	model.TelemetrySpeeding,
	model.TelemetryFatigueSignal,
}

type AnalyticsService struct {
	trips     *repository.TripRepository
	routes    *repository.RouteRepository
	events    *repository.TelemetryRepository
	snapshots *repository.AnalyticsRepository
	cfg       config.AnalyticsConfig
	log       zerolog.Logger
}

func NewAnalyticsService(
	trips *repository.TripRepository,
	routes *repository.RouteRepository,
	events *repository.TelemetryRepository,
	snapshots *repository.AnalyticsRepository,
	cfg config.AnalyticsConfig,
	log zerolog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		trips:     trips,
		routes:    routes,
		events:    events,
		snapshots: snapshots,
		cfg:       cfg,
		log:       log,
	}
}

type AnalyticsRequest struct {
	WindowStart time.Time
	WindowEnd   time.Time
	VehicleID   *uuid.UUID
	DriverID    *uuid.UUID
}

// BuildSnapshot recomputes analytics for a window from completed trips and
// persists the result wholesale. A window with no completed trips is an
// ErrInsufficientData, never a zero-filled snapshot.
func (s *AnalyticsService) BuildSnapshot(ctx context.Context, req AnalyticsRequest) (*model.AnalyticsSnapshot, error) {
	if req.WindowEnd.IsZero() {
		req.WindowEnd = time.Now().UTC()
	}
	if req.WindowStart.IsZero() {
		req.WindowStart = req.WindowEnd.Add(-24 * time.Hour)
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, fmt.Errorf("%w: window end must be after window start", ErrInvalidRequest)
	}

	trips, err := s.trips.ListCompleted(ctx, repository.CompletedTripFilter{
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		VehicleID:   req.VehicleID,
		DriverID:    req.DriverID,
	})
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, fmt.Errorf("%w: no completed trips in window", ErrInsufficientData)
	}

	tripIDs := make([]uuid.UUID, 0, len(trips))
	for _, trip := range trips {
		tripIDs = append(tripIDs, trip.ID)
	}
	avgScore, err := s.routes.AvgSelectedScore(ctx, tripIDs)
	if err != nil {
		return nil, err
	}

	detections, err := s.events.CountInWindow(ctx, req.WindowStart, req.WindowEnd, detectionTypes, req.VehicleID)
	if err != nil {
		return nil, err
	}

	var totalMiles, electricMiles, electricKWh, dieselBaselineKg, gridKg float64
	for _, trip := range trips {
		if trip.SelectedRouteID == nil {
			continue
		}
		route, err := s.routes.GetByID(ctx, *trip.SelectedRouteID)
		if err != nil {
			return nil, err
		}

		totalMiles += route.DistanceMiles

		if trip.Vehicle != nil && trip.Vehicle.IsElectric() {
			electricMiles += route.DistanceMiles
			electricKWh += route.EnergyKWh
			gridKg += route.EnergyKWh * s.cfg.GridKgCO2PerKWh
			// Baseline: the same miles driven by a heavy diesel truck.
			dieselBaselineKg += route.DistanceMiles / 2.0 * s.cfg.DieselKgCO2PerLitre
		}
	}

	snapshot := &model.AnalyticsSnapshot{
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		VehicleID:      req.VehicleID,
		DriverID:       req.DriverID,
		CompletedTrips: len(trips),
		AvgSafetyScore: avgScore,
		IncidentRate:   float64(detections) / float64(len(trips)),
		TotalMiles:     totalMiles,
	}
	if electricMiles > 0 {
		snapshot.EnergyKWhPerMile = electricKWh / electricMiles
		snapshot.CO2SavedKg = dieselBaselineKg - gridKg
	}

	if err := s.snapshots.Replace(ctx, snapshot); err != nil {
		return nil, err
	}

	s.log.Info().
		Time("window_start", req.WindowStart).
		Time("window_end", req.WindowEnd).
		Int("completed_trips", snapshot.CompletedTrips).
		Msg("analytics snapshot rebuilt")

	return snapshot, nil
}
