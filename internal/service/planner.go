package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/gateway"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// Assumed DC fast-charge rate for the charge-rate-dependent part of a
// charging stop's duration.
const chargeRateKW = 50.0

type PlannerService struct {
	vehicles *repository.VehicleRepository
	drivers  *repository.DriverRepository
	routes   *repository.RouteRepository
	gw       gateway.MapsGateway
	cfg      config.PlannerConfig
	log      zerolog.Logger
}

func NewPlannerService(
	vehicles *repository.VehicleRepository,
	drivers *repository.DriverRepository,
	routes *repository.RouteRepository,
	gw gateway.MapsGateway,
	cfg config.PlannerConfig,
	log zerolog.Logger,
) *PlannerService {
	return &PlannerService{
		vehicles: vehicles,
		drivers:  drivers,
		routes:   routes,
		gw:       gw,
		cfg:      cfg,
		log:      log,
	}
}

type RoutePlanRequest struct {
	Origin      string
	Destination string
	VehicleID   uuid.UUID
	DriverID    uuid.UUID
	DepartureAt time.Time
}

// ResolvedPlanRequest is a validated request with geocoded endpoints and
// loaded vehicle/driver records.
type ResolvedPlanRequest struct {
	Origin      model.Waypoint
	Destination model.Waypoint
	Vehicle     *model.Vehicle
	Driver      *model.Driver
	DepartureAt time.Time
}

func (s *PlannerService) ValidateRequest(ctx context.Context, req RoutePlanRequest) (*ResolvedPlanRequest, error) {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, fmt.Errorf("%w: origin and destination are required", ErrInvalidRequest)
	}
	if req.DepartureAt.Before(time.Now().Add(-time.Minute)) {
		return nil, fmt.Errorf("%w: departure time is in the past", ErrInvalidRequest)
	}

	vehicle, err := s.vehicles.GetByID(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: vehicle %s not found", ErrInvalidRequest, req.VehicleID)
		}
		return nil, err
	}
	driver, err := s.drivers.GetByID(ctx, req.DriverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: driver %s not found", ErrInvalidRequest, req.DriverID)
		}
		return nil, err
	}

	origin, err := s.gw.GeocodeAddress(ctx, req.Origin)
	if err != nil {
		return nil, s.upstreamOrInvalid(err, "origin address")
	}
	destination, err := s.gw.GeocodeAddress(ctx, req.Destination)
	if err != nil {
		return nil, s.upstreamOrInvalid(err, "destination address")
	}

	return &ResolvedPlanRequest{
		Origin:      origin,
		Destination: destination,
		Vehicle:     vehicle,
		Driver:      driver,
		DepartureAt: req.DepartureAt,
	}, nil
}

// GenerateCandidates produces and persists the candidate set for a trip
// leg. For reroutes the origin is the vehicle's current position; the trip's
// status is never touched here.
func (s *PlannerService) GenerateCandidates(ctx context.Context, trip *model.Trip, vehicle *model.Vehicle, driver *model.Driver, origin model.Waypoint, departureAt time.Time) ([]model.RouteCandidate, error) {
	routes, err := s.gw.GetDirections(ctx, gateway.DirectionsRequest{
		Origin:        origin,
		Destination:   trip.Destination(),
		Alternatives:  true,
		DepartureTime: departureAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: directions: %v", ErrUpstreamUnavailable, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no routes between endpoints", ErrNoFeasibleRoute)
	}

	candidates := make([]model.RouteCandidate, 0, len(routes))
	for _, route := range routes {
		candidate, feasible, err := s.buildCandidate(ctx, trip, vehicle, driver, route)
		if err != nil {
			return nil, err
		}
		if !feasible {
			s.log.Info().
				Str("trip_id", trip.ID.String()).
				Str("summary", route.Summary).
				Msg("dropping infeasible route candidate")
			continue
		}
		candidates = append(candidates, *candidate)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate satisfies range and hours-of-service constraints", ErrNoFeasibleRoute)
	}

	s.rank(candidates)

	return s.routes.CreateBatch(ctx, candidates)
}

func (s *PlannerService) buildCandidate(ctx context.Context, trip *model.Trip, vehicle *model.Vehicle, driver *model.Driver, route gateway.Route) (*model.RouteCandidate, bool, error) {
	candidate := &model.RouteCandidate{
		TripID:              trip.ID,
		Summary:             route.Summary,
		Waypoints:           route.Waypoints,
		DistanceMiles:       route.DistanceMiles,
		DurationMins:        route.DurationMins,
		TrafficDurationMins: route.TrafficDurationMins,
	}

	if vehicle.IsElectric() {
		feasible, err := s.planElectric(ctx, candidate, vehicle)
		if err != nil || !feasible {
			return candidate, feasible, err
		}
	} else {
		if err := s.planCombustion(ctx, candidate, vehicle); err != nil {
			return nil, false, err
		}
	}

	s.insertRestBreak(candidate)

	if !s.withinHoursOfService(candidate, driver) {
		return candidate, false, nil
	}

	return candidate, true, nil
}

// planElectric simulates charge along the waypoint sequence and inserts
// charging stops so projected charge never falls below the reserve margin.
// A stop goes at the latest waypoint that still satisfies the margin, which
// keeps the inserted stop count minimal.
func (s *PlannerService) planElectric(ctx context.Context, candidate *model.RouteCandidate, vehicle *model.Vehicle) (bool, error) {
	if vehicle.BatteryKWh <= 0 || vehicle.MilesPerKWh <= 0 {
		return false, fmt.Errorf("%w: vehicle %s has no consumption profile", ErrInvalidRequest, vehicle.ID)
	}

	perMileKWh := 1 / vehicle.MilesPerKWh
	perMileKWh += s.elevationPenaltyPerMile(ctx, candidate)

	reserveKWh := vehicle.BatteryKWh * s.cfg.ReserveMarginPct / 100
	chargeKWh := vehicle.BatteryKWh * vehicle.EnergyLevelPct / 100
	pathMiles := model.PathDistanceMiles(candidate.Waypoints)
	// Scale straight-line waypoint legs up to the road distance.
	legScale := 1.0
	if pathMiles > 0 {
		legScale = candidate.DistanceMiles / pathMiles
	}

	var consumedKWh float64
	for i := 1; i < len(candidate.Waypoints); i++ {
		legMiles := model.HaversineMiles(candidate.Waypoints[i-1], candidate.Waypoints[i]) * legScale
		legKWh := legMiles * perMileKWh

		if chargeKWh-legKWh < reserveKWh {
			// Charge at the last waypoint that still meets the margin.
			stop, err := s.findChargingStop(ctx, candidate.Waypoints[i-1], i-1, chargeKWh, vehicle)
			if err != nil {
				return false, err
			}
			if stop == nil {
				return false, nil
			}
			if vehicle.BatteryKWh-legKWh < reserveKWh {
				// Even a full battery cannot cover this leg.
				return false, nil
			}
			candidate.Stops = append(candidate.Stops, *stop)
			chargeKWh = vehicle.BatteryKWh
		}

		chargeKWh -= legKWh
		consumedKWh += legKWh
	}

	candidate.EnergyKWh = consumedKWh
	candidate.CostEstimate = round2(consumedKWh * s.cfg.EnergyPriceKWh)
	return true, nil
}

func (s *PlannerService) findChargingStop(ctx context.Context, at model.Waypoint, afterWaypoint int, chargeKWh float64, vehicle *model.Vehicle) (*model.PlannedStop, error) {
	places, err := s.gw.SearchPlaces(ctx, gateway.PlaceSearchRequest{
		Location: at,
		Category: "electric_vehicle_charging_station",
		RadiusM:  s.cfg.ChargeStationRadius,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: charging station search: %v", ErrUpstreamUnavailable, err)
	}
	if len(places) == 0 {
		return nil, nil
	}

	kWhToAdd := vehicle.BatteryKWh - chargeKWh
	duration := s.cfg.FastChargeMins + int(kWhToAdd/chargeRateKW*60)

	return &model.PlannedStop{
		Type:          model.StopTypeCharging,
		Name:          places[0].Name,
		Location:      places[0].Location,
		AfterWaypoint: afterWaypoint,
		DurationMins:  duration,
		Reason:        fmt.Sprintf("projected charge below %.0f%% reserve", s.cfg.ReserveMarginPct),
	}, nil
}

func (s *PlannerService) planCombustion(ctx context.Context, candidate *model.RouteCandidate, vehicle *model.Vehicle) error {
	if vehicle.MilesPerLitre <= 0 {
		return fmt.Errorf("%w: vehicle %s has no consumption profile", ErrInvalidRequest, vehicle.ID)
	}

	litres := candidate.DistanceMiles / vehicle.MilesPerLitre
	candidate.FuelLitres = litres
	candidate.CostEstimate = round2(litres * s.cfg.DieselPriceLitre)

	// Refuel when the route uses more than 80% of range.
	if vehicle.RangeMiles > 0 && candidate.DistanceMiles > vehicle.RangeMiles*0.8 {
		mid := len(candidate.Waypoints) / 2
		places, err := s.gw.SearchPlaces(ctx, gateway.PlaceSearchRequest{
			Location: candidate.Waypoints[mid],
			Category: "gas_station",
			RadiusM:  s.cfg.ChargeStationRadius,
		})
		if err != nil {
			return fmt.Errorf("%w: fuel station search: %v", ErrUpstreamUnavailable, err)
		}
		stop := model.PlannedStop{
			Type:          model.StopTypeFuel,
			AfterWaypoint: mid,
			DurationMins:  s.cfg.FuelStopMins,
			Reason:        fmt.Sprintf("route %.0f mi exceeds 80%% of %.0f mi range", candidate.DistanceMiles, vehicle.RangeMiles),
		}
		if len(places) > 0 {
			stop.Name = places[0].Name
			stop.Location = places[0].Location
		} else {
			stop.Location = candidate.Waypoints[mid]
		}
		candidate.Stops = append(candidate.Stops, stop)
	}

	return nil
}

// insertRestBreak adds a driver rest break when driving time exceeds the
// continuous-driving limit and no existing stop is long enough to count.
func (s *PlannerService) insertRestBreak(candidate *model.RouteCandidate) {
	if candidate.DurationMins <= s.cfg.RestBreakAfter.Minutes() {
		return
	}
	for _, stop := range candidate.Stops {
		if stop.DurationMins >= s.cfg.RestBreakMins {
			return
		}
	}
	mid := len(candidate.Waypoints) / 2
	candidate.Stops = append(candidate.Stops, model.PlannedStop{
		Type:          model.StopTypeRestBreak,
		Location:      candidate.Waypoints[mid],
		AfterWaypoint: mid,
		DurationMins:  s.cfg.RestBreakMins,
		Reason:        fmt.Sprintf("driving time exceeds %s continuous limit", s.cfg.RestBreakAfter),
	})
}

func (s *PlannerService) withinHoursOfService(candidate *model.RouteCandidate, driver *model.Driver) bool {
	remaining := driver.RemainingDriving(s.cfg.MaxShiftDriving)
	return time.Duration(candidate.DurationMins)*time.Minute <= remaining
}

func (s *PlannerService) elevationPenaltyPerMile(ctx context.Context, candidate *model.RouteCandidate) float64 {
	if candidate.DistanceMiles <= 0 {
		return 0
	}
	profile, err := s.gw.GetRouteElevationGain(ctx, candidate.Waypoints)
	if err != nil {
		// Degrade to zero penalty rather than failing the candidate.
		s.log.Warn().Err(err).Msg("elevation lookup failed, ignoring gain penalty")
		return 0
	}
	totalPenaltyKWh := profile.TotalGainMeters / 100 * s.cfg.ElevationKWhPer100m
	return totalPenaltyKWh / candidate.DistanceMiles
}

// rank orders candidates for presentation; final selection happens in the
// orchestrator after scoring.
func (s *PlannerService) rank(candidates []model.RouteCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		switch s.cfg.RankKey {
		case "duration":
			return candidates[i].TotalDurationMins() < candidates[j].TotalDurationMins()
		case "distance":
			return candidates[i].DistanceMiles < candidates[j].DistanceMiles
		default:
			return candidates[i].CostEstimate < candidates[j].CostEstimate
		}
	})
}

func (s *PlannerService) upstreamOrInvalid(err error, field string) error {
	if gateway.IsTransient(err) {
		return fmt.Errorf("%w: geocoding: %v", ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%w: %s could not be resolved: %v", ErrInvalidRequest, field, err)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
