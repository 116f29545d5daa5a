package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// Detection penalties folded into the driver's rolling safety score.
const (
	penaltyBrakingPattern = 10.0
	penaltySpeeding       = 8.0
	penaltyFatigue        = 5.0
)

const queueCapacity = 64

// TelemetryService ingests the per-vehicle event stream and raises alerts
// on risky patterns. Events for the same vehicle are processed in order on
// a dedicated loop; different vehicles proceed independently.
type TelemetryService struct {
	events   *repository.TelemetryRepository
	vehicles *repository.VehicleRepository
	drivers  *repository.DriverRepository
	trips    *repository.TripRepository
	alerts   *repository.AlertRepository
	cfg      config.TelemetryConfig
	log      zerolog.Logger

	mu     sync.Mutex
	queues map[uuid.UUID]chan model.TelemetryEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewTelemetryService(
	events *repository.TelemetryRepository,
	vehicles *repository.VehicleRepository,
	drivers *repository.DriverRepository,
	trips *repository.TripRepository,
	alerts *repository.AlertRepository,
	cfg config.TelemetryConfig,
	log zerolog.Logger,
) *TelemetryService {
	return &TelemetryService{
		events:   events,
		vehicles: vehicles,
		drivers:  drivers,
		trips:    trips,
		alerts:   alerts,
		cfg:      cfg,
		log:      log,
		queues:   make(map[uuid.UUID]chan model.TelemetryEvent),
		done:     make(chan struct{}),
	}
}

// Ingest enqueues a batch for asynchronous processing and returns how many
// events were accepted. A full vehicle queue sheds the event rather than
// blocking the producer.
func (s *TelemetryService) Ingest(events []model.TelemetryEvent) int {
	accepted := 0
	for _, event := range events {
		queue := s.queueFor(event.VehicleID)
		select {
		case queue <- event:
			accepted++
		default:
			s.log.Warn().
				Str("vehicle_id", event.VehicleID.String()).
				Msg("telemetry queue full, shedding event")
		}
	}
	return accepted
}

// Shutdown stops every vehicle loop and waits for in-flight events.
func (s *TelemetryService) Shutdown() {
	close(s.done)
	s.wg.Wait()
}

func (s *TelemetryService) queueFor(vehicleID uuid.UUID) chan model.TelemetryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[vehicleID]
	if ok {
		return queue
	}

	queue = make(chan model.TelemetryEvent, queueCapacity)
	s.queues[vehicleID] = queue
	s.wg.Add(1)
	go s.runVehicleLoop(vehicleID, queue)
	return queue
}

func (s *TelemetryService) runVehicleLoop(vehicleID uuid.UUID, queue chan model.TelemetryEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event := <-queue:
			if err := s.HandleEvent(context.Background(), &event); err != nil {
				s.log.Error().
					Err(err).
					Str("vehicle_id", vehicleID.String()).
					Str("type", string(event.Type)).
					Msg("telemetry event rejected")
			}
		}
	}
}

// HandleEvent persists one event and runs detection synchronously. Events
// that are not strictly newer than the vehicle's latest are rejected; the
// stream is append-only and ordered per vehicle.
func (s *TelemetryService) HandleEvent(ctx context.Context, event *model.TelemetryEvent) error {
	if event.VehicleID == uuid.Nil {
		return fmt.Errorf("%w: vehicle id is required", ErrInvalidRequest)
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", ErrInvalidRequest)
	}

	if err := s.events.Append(ctx, event); err != nil {
		if errors.Is(err, repository.ErrStaleTimestamp) {
			return fmt.Errorf("%w: event timestamp not after latest for vehicle", ErrInvalidRequest)
		}
		return err
	}

	s.applyVehicleState(ctx, event)

	switch event.Type {
	case model.TelemetryHarshBrake:
		return s.detectBrakingPattern(ctx, event)
	case model.TelemetrySpeeding:
		return s.detectSustainedSpeeding(ctx, event)
	case model.TelemetryFatigueSignal:
		return s.detectFatigue(ctx, event)
	default:
		return nil
	}
}

func (s *TelemetryService) applyVehicleState(ctx context.Context, event *model.TelemetryEvent) {
	if event.Lat != nil && event.Lng != nil {
		if err := s.vehicles.UpdatePosition(ctx, event.VehicleID, *event.Lat, *event.Lng); err != nil {
			s.log.Error().Err(err).Str("vehicle_id", event.VehicleID.String()).Msg("position update failed")
		}
	}
	if event.EnergyLevelPct != nil {
		if err := s.vehicles.UpdateEnergyLevel(ctx, event.VehicleID, *event.EnergyLevelPct); err != nil {
			s.log.Error().Err(err).Str("vehicle_id", event.VehicleID.String()).Msg("energy update failed")
		}
	}
}

// detectBrakingPattern fires when the harsh-brake count within the rolling
// window reaches the configured threshold.
func (s *TelemetryService) detectBrakingPattern(ctx context.Context, event *model.TelemetryEvent) error {
	since := event.Timestamp.Add(-s.cfg.HarshBrakeWindow)
	brakes, err := s.events.ListByVehicleSince(ctx, event.VehicleID, since, model.TelemetryHarshBrake)
	if err != nil {
		return err
	}
	if len(brakes) < s.cfg.HarshBrakeCount {
		return nil
	}

	severity := model.AlertSeverityWarning
	if len(brakes) >= s.cfg.HarshBrakeCount*2 {
		severity = model.AlertSeverityCritical
	}

	return s.raise(ctx, event, model.AlertReasonBrakingPattern, severity,
		fmt.Sprintf("%d harsh brakes within %s (latest %.2fg)", len(brakes), s.cfg.HarshBrakeWindow, event.Magnitude),
		penaltyBrakingPattern)
}

// detectSustainedSpeeding walks the current streak of over-margin samples
// backwards; the alert fires once the streak spans the sustain duration.
func (s *TelemetryService) detectSustainedSpeeding(ctx context.Context, event *model.TelemetryEvent) error {
	if event.Magnitude < s.cfg.SpeedingMarginMph {
		return nil
	}

	since := event.Timestamp.Add(-2 * s.cfg.SpeedingSustain)
	samples, err := s.events.ListByVehicleSince(ctx, event.VehicleID, since, model.TelemetrySpeeding)
	if err != nil {
		return err
	}

	streakStart := event.Timestamp
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Magnitude < s.cfg.SpeedingMarginMph {
			break
		}
		streakStart = samples[i].Timestamp
	}
	if event.Timestamp.Sub(streakStart) < s.cfg.SpeedingSustain {
		return nil
	}

	severity := model.AlertSeverityWarning
	if event.Magnitude >= 2*s.cfg.SpeedingMarginMph {
		severity = model.AlertSeverityCritical
	}

	return s.raise(ctx, event, model.AlertReasonSpeeding, severity,
		fmt.Sprintf("%.0f mph over the posted limit sustained for %s", event.Magnitude, event.Timestamp.Sub(streakStart).Round(time.Second)),
		penaltySpeeding)
}

// detectFatigue fires whenever continuous driving exceeds the
// hours-of-service limit. This detection is mandatory and never debounced.
func (s *TelemetryService) detectFatigue(ctx context.Context, event *model.TelemetryEvent) error {
	continuousMins := event.Magnitude
	limit := s.cfg.HOSMaxContinuous.Minutes()
	if continuousMins <= limit {
		return nil
	}

	severity := model.AlertSeverityWarning
	if continuousMins > limit+60 {
		severity = model.AlertSeverityCritical
	}

	return s.raise(ctx, event, model.AlertReasonFatigue, severity,
		fmt.Sprintf("%.0f min continuous driving exceeds %s limit", continuousMins, s.cfg.HOSMaxContinuous),
		penaltyFatigue)
}

// raise records the alert against the vehicle's active trip when one
// exists, otherwise against the vehicle, and applies the driver penalty.
func (s *TelemetryService) raise(ctx context.Context, event *model.TelemetryEvent, reason model.AlertReason, severity model.AlertSeverity, message string, penalty float64) error {
	subjectType := model.AlertSubjectVehicle
	subjectID := event.VehicleID

	trip, err := s.trips.ActiveByVehicle(ctx, event.VehicleID)
	if err != nil {
		return err
	}
	if trip != nil {
		subjectType = model.AlertSubjectTrip
		subjectID = trip.ID
	}

	alert := &model.Alert{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Severity:    severity,
		Reason:      reason,
		Message:     message,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return err
	}

	if trip != nil {
		updated, err := s.drivers.ApplySafetyPenalty(ctx, trip.DriverID, penalty, s.cfg.PenaltyDecay)
		if err != nil {
			return err
		}
		s.log.Info().
			Str("driver_id", trip.DriverID.String()).
			Str("reason", string(reason)).
			Float64("safety_score", updated).
			Msg("driver safety penalty applied")
	}

	return nil
}
