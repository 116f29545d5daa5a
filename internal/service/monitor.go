package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/gateway"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// rerouteTrigger is a single condition that warrants re-evaluating the
// active route. Critical triggers mean the current route may no longer be
// drivable at all.
type rerouteTrigger struct {
	reason   string
	critical bool
}

// RerouteDecision is the outcome of one monitoring evaluation.
type RerouteDecision struct {
	Triggered    bool
	Critical     bool
	Reasons      []string
	Rerouted     bool
	OldRouteID   *uuid.UUID
	NewRouteID   *uuid.UUID
	FactorDeltas []model.FactorDelta
}

// MonitorManager runs one polling loop per active trip. Each loop evaluates
// the selected route against live traffic, weather and vehicle charge, and
// reroutes mid-trip when a better or the only drivable option appears.
type MonitorManager struct {
	planner    *PlannerService
	scorer     *ScorerService
	trips      *repository.TripRepository
	routes     *repository.RouteRepository
	vehicles   *repository.VehicleRepository
	drivers    *repository.DriverRepository
	alerts     *repository.AlertRepository
	gw         gateway.MapsGateway
	weather    gateway.WeatherProvider
	cfg        config.MonitorConfig
	tieEpsilon int
	log        zerolog.Logger

	mu    sync.Mutex
	loops map[uuid.UUID]context.CancelFunc
	wg    sync.WaitGroup
}

func NewMonitorManager(
	planner *PlannerService,
	scorer *ScorerService,
	trips *repository.TripRepository,
	routes *repository.RouteRepository,
	vehicles *repository.VehicleRepository,
	drivers *repository.DriverRepository,
	alerts *repository.AlertRepository,
	gw gateway.MapsGateway,
	weather gateway.WeatherProvider,
	cfg config.MonitorConfig,
	tieEpsilon int,
	log zerolog.Logger,
) *MonitorManager {
	return &MonitorManager{
		planner:    planner,
		scorer:     scorer,
		trips:      trips,
		routes:     routes,
		vehicles:   vehicles,
		drivers:    drivers,
		alerts:     alerts,
		gw:         gw,
		weather:    weather,
		cfg:        cfg,
		tieEpsilon: tieEpsilon,
		log:        log,
		loops:      make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartTrip spawns the monitoring loop for a trip. Starting an already
// monitored trip is a no-op.
func (m *MonitorManager) StartTrip(tripID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.loops[tripID]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.loops[tripID] = cancel
	m.wg.Add(1)
	go m.runLoop(ctx, tripID)

	m.log.Info().Str("trip_id", tripID.String()).Msg("trip monitoring started")
}

// StopTrip cancels the loop for a trip if one is running.
func (m *MonitorManager) StopTrip(tripID uuid.UUID) {
	m.mu.Lock()
	cancel, ok := m.loops[tripID]
	if ok {
		delete(m.loops, tripID)
	}
	m.mu.Unlock()

	if ok {
		cancel()
		m.log.Info().Str("trip_id", tripID.String()).Msg("trip monitoring stopped")
	}
}

// ResumeActive restarts loops for trips that were in flight when the
// process last stopped.
func (m *MonitorManager) ResumeActive(ctx context.Context) error {
	trips, err := m.trips.ListByStatus(ctx, model.TripStatusActive, model.TripStatusRerouting)
	if err != nil {
		return err
	}
	for _, trip := range trips {
		m.StartTrip(trip.ID)
	}
	return nil
}

// Shutdown cancels every loop and waits for them to drain.
func (m *MonitorManager) Shutdown() {
	m.mu.Lock()
	for id, cancel := range m.loops {
		cancel()
		delete(m.loops, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MonitorManager) runLoop(ctx context.Context, tripID uuid.UUID) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			decision, err := m.EvaluateTrip(ctx, tripID)
			if errors.Is(err, errTripFinished) {
				m.StopTrip(tripID)
				return
			}
			if err != nil {
				m.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("trip evaluation failed")
				continue
			}
			if decision.Rerouted {
				m.log.Info().
					Str("trip_id", tripID.String()).
					Strs("reasons", decision.Reasons).
					Msg("trip rerouted")
			}
		}
	}
}

var errTripFinished = errors.New("trip reached a terminal status")

// EvaluateTrip runs one monitoring cycle for a trip: collect triggers, and
// if any fire, replan from the vehicle's current position and switch routes
// when the replacement clears the improvement margin (or the current route
// is no longer drivable). A cancelled evaluation leaves the selected route
// untouched.
func (m *MonitorManager) EvaluateTrip(ctx context.Context, tripID uuid.UUID) (*RerouteDecision, error) {
	trip, err := m.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Status.IsTerminal() {
		return nil, errTripFinished
	}
	if trip.SelectedRouteID == nil {
		return &RerouteDecision{}, nil
	}

	route, err := m.routes.GetByID(ctx, *trip.SelectedRouteID)
	if err != nil {
		return nil, err
	}

	vehicle := trip.Vehicle
	if vehicle == nil {
		vehicle, err = m.vehicles.GetByID(ctx, trip.VehicleID)
		if err != nil {
			return nil, err
		}
	}

	position := trip.Origin()
	if loc := vehicle.Location(); loc != nil {
		position = *loc
	}
	remaining := remainingWaypoints(route.Waypoints, position)

	triggers := m.collectTriggers(ctx, vehicle, route, remaining)
	if len(triggers) == 0 {
		return &RerouteDecision{}, nil
	}

	decision := &RerouteDecision{
		Triggered:  true,
		OldRouteID: trip.SelectedRouteID,
	}
	for _, trigger := range triggers {
		decision.Reasons = append(decision.Reasons, trigger.reason)
		if trigger.critical {
			decision.Critical = true
		}
	}

	if err := ctx.Err(); err != nil {
		return decision, err
	}

	return m.reroute(ctx, trip, vehicle, route, position, decision)
}

func (m *MonitorManager) collectTriggers(ctx context.Context, vehicle *model.Vehicle, route *model.RouteCandidate, remaining []model.Waypoint) []rerouteTrigger {
	var triggers []rerouteTrigger

	conditions, err := m.gw.GetTrafficConditions(ctx, remaining)
	if err != nil {
		m.log.Warn().Err(err).Msg("traffic check failed, skipping trigger")
	} else {
		if conditions.DelayMins > m.cfg.DelayThreshold.Minutes() {
			triggers = append(triggers, rerouteTrigger{
				reason: fmt.Sprintf("traffic delay %.0f min exceeds %s threshold", conditions.DelayMins, m.cfg.DelayThreshold),
			})
		}
		for _, incident := range conditions.Incidents {
			if incident.Type == gateway.IncidentClosure {
				triggers = append(triggers, rerouteTrigger{reason: "road closure on route", critical: true})
				break
			}
		}
	}

	if len(remaining) > 0 {
		mid := remaining[len(remaining)/2]
		weather, err := m.weather.GetConditions(ctx, mid, time.Now())
		if err != nil {
			m.log.Warn().Err(err).Msg("weather check failed, skipping trigger")
		} else if weather.SeverityClass == gateway.WeatherSeveritySevere {
			triggers = append(triggers, rerouteTrigger{
				reason: fmt.Sprintf("severe weather ahead (%s)", weather.PrecipitationType),
			})
		}
	}

	if vehicle.IsElectric() {
		if projected, ok := m.projectedArrivalCharge(vehicle, route, remaining); ok && projected < m.cfg.CriticalChargePct {
			triggers = append(triggers, rerouteTrigger{
				reason:   fmt.Sprintf("projected arrival charge %.1f%% below %.0f%% floor", projected, m.cfg.CriticalChargePct),
				critical: true,
			})
		}
	}

	return triggers
}

// projectedArrivalCharge extrapolates battery level at the destination over
// the remaining waypoints. A planned charging stop still ahead resets the
// projection to a full battery from that point.
func (m *MonitorManager) projectedArrivalCharge(vehicle *model.Vehicle, route *model.RouteCandidate, remaining []model.Waypoint) (float64, bool) {
	if vehicle.BatteryKWh <= 0 || vehicle.MilesPerKWh <= 0 || len(remaining) < 2 {
		return 0, false
	}

	passed := len(route.Waypoints) - len(remaining)
	for _, stop := range route.Stops {
		if stop.Type == model.StopTypeCharging && stop.AfterWaypoint >= passed {
			return 100, true
		}
	}

	pathMiles := model.PathDistanceMiles(route.Waypoints)
	legScale := 1.0
	if pathMiles > 0 {
		legScale = route.DistanceMiles / pathMiles
	}
	remainingMiles := model.PathDistanceMiles(remaining) * legScale

	chargeKWh := vehicle.BatteryKWh * vehicle.EnergyLevelPct / 100
	chargeKWh -= remainingMiles / vehicle.MilesPerKWh
	return chargeKWh / vehicle.BatteryKWh * 100, true
}

func (m *MonitorManager) reroute(ctx context.Context, trip *model.Trip, vehicle *model.Vehicle, current *model.RouteCandidate, position model.Waypoint, decision *RerouteDecision) (*RerouteDecision, error) {
	note := strings.Join(decision.Reasons, "; ")
	if err := m.trips.UpdateStatus(ctx, trip.ID, model.TripStatusRerouting, note, nil); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Another evaluation already holds the trip in REROUTING.
			return decision, nil
		}
		return nil, err
	}

	driver := trip.Driver
	if driver == nil {
		var err error
		driver, err = m.drivers.GetByID(ctx, trip.DriverID)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := m.planner.GenerateCandidates(ctx, trip, vehicle, driver, position, time.Now())
	if err != nil {
		if errors.Is(err, ErrNoFeasibleRoute) {
			return decision, m.handleNoFeasibleRoute(ctx, trip, decision, note)
		}
		m.resumeActive(ctx, trip.ID, "replan failed, keeping current route")
		return nil, err
	}

	if err := m.scorer.ScoreCandidates(ctx, vehicle, driver, candidates, time.Now()); err != nil {
		m.resumeActive(ctx, trip.ID, "scoring failed, keeping current route")
		return nil, err
	}

	best := SelectBest(candidates, m.tieEpsilon)
	if best == nil || best.SafetyScore == nil {
		m.resumeActive(ctx, trip.ID, "no scored replacement, keeping current route")
		return decision, nil
	}

	currentScore := 0
	if current.SafetyScore != nil {
		currentScore = *current.SafetyScore
	}
	improves := *best.SafetyScore > currentScore+m.cfg.ImprovementMargin

	if !improves && !decision.Critical {
		// Replacement does not clear the margin; discard it.
		if err := m.supersedeExcept(ctx, trip.ID, *trip.SelectedRouteID); err != nil {
			return nil, err
		}
		m.resumeActive(ctx, trip.ID, "replacement within improvement margin, keeping current route")
		return decision, nil
	}

	if err := m.supersedeExcept(ctx, trip.ID, best.ID); err != nil {
		return nil, err
	}
	if err := m.trips.SetSelectedRoute(ctx, trip.ID, best.ID); err != nil {
		return nil, err
	}
	m.resumeActive(ctx, trip.ID, fmt.Sprintf("rerouted to %s", best.Summary))

	decision.Rerouted = true
	decision.NewRouteID = &best.ID
	decision.FactorDeltas = factorDeltas(current.Factors, best.Factors)

	severity := model.AlertSeverityWarning
	if decision.Critical {
		severity = model.AlertSeverityCritical
	}
	alert := &model.Alert{
		SubjectType: model.AlertSubjectTrip,
		SubjectID:   trip.ID,
		Severity:    severity,
		Reason:      model.AlertReasonReroute,
		Message:     rerouteMessage(note, currentScore, *best.SafetyScore, decision.FactorDeltas),
	}
	if err := m.alerts.Create(ctx, alert); err != nil {
		m.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to record reroute alert")
	}

	return decision, nil
}

// handleNoFeasibleRoute keeps a critically triggered trip held in REROUTING
// for dispatcher intervention; for softer triggers the current route stays
// in force and the trip resumes.
func (m *MonitorManager) handleNoFeasibleRoute(ctx context.Context, trip *model.Trip, decision *RerouteDecision, note string) error {
	severity := model.AlertSeverityWarning
	message := fmt.Sprintf("no feasible replacement route (%s); keeping current route", note)
	if decision.Critical {
		severity = model.AlertSeverityCritical
		message = fmt.Sprintf("no feasible replacement route (%s); trip held for dispatcher intervention", note)
	}

	alert := &model.Alert{
		SubjectType: model.AlertSubjectTrip,
		SubjectID:   trip.ID,
		Severity:    severity,
		Reason:      model.AlertReasonNoFeasibleRoute,
		Message:     message,
	}
	if err := m.alerts.Create(ctx, alert); err != nil {
		return err
	}

	if !decision.Critical {
		m.resumeActive(ctx, trip.ID, "no feasible replacement, keeping current route")
	}
	return nil
}

func (m *MonitorManager) resumeActive(ctx context.Context, tripID uuid.UUID, note string) {
	if err := m.trips.UpdateStatus(ctx, tripID, model.TripStatusActive, note, nil); err != nil {
		m.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("failed to resume trip")
	}
}

func (m *MonitorManager) supersedeExcept(ctx context.Context, tripID, keepID uuid.UUID) error {
	if err := m.routes.SupersedeByTrip(ctx, tripID); err != nil {
		return err
	}
	return m.routes.Unsupersede(ctx, keepID)
}

// remainingWaypoints drops the portion of the path already behind the
// vehicle, keeping everything from the nearest waypoint onward.
func remainingWaypoints(path []model.Waypoint, position model.Waypoint) []model.Waypoint {
	if len(path) == 0 {
		return path
	}
	nearest := 0
	best := model.HaversineMiles(path[0], position)
	for i := 1; i < len(path); i++ {
		if d := model.HaversineMiles(path[i], position); d < best {
			best = d
			nearest = i
		}
	}
	return path[nearest:]
}

func factorDeltas(old, new []model.SafetyFactorResult) []model.FactorDelta {
	oldByFactor := make(map[model.SafetyFactor]float64, len(old))
	for _, result := range old {
		oldByFactor[result.Factor] = result.Subscore
	}

	deltas := make([]model.FactorDelta, 0, len(new))
	for _, result := range new {
		deltas = append(deltas, model.FactorDelta{
			Factor:   result.Factor,
			OldScore: oldByFactor[result.Factor],
			NewScore: result.Subscore,
		})
	}
	return deltas
}

func rerouteMessage(note string, oldScore, newScore int, deltas []model.FactorDelta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rerouted (%s): safety score %d -> %d", note, oldScore, newScore)
	for _, delta := range deltas {
		if delta.NewScore != delta.OldScore {
			fmt.Fprintf(&b, "; %s %.0f -> %.0f", delta.Factor, delta.OldScore, delta.NewScore)
		}
	}
	return b.String()
}
