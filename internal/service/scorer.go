package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fleet-safety-service/internal/config"
	"fleet-safety-service/internal/gateway"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
)

// neutralSubscore replaces a factor evaluation that failed or timed out.
// The candidate is flagged partial-scoring instead of failing the pass.
const neutralSubscore = 50.0

// factorWeights is fixed per vehicle class and sums to 1.0 per class.
// Electric carries a nonzero ev-range-risk weight; combustion classes set
// that factor to zero and skip its evaluation.
var factorWeights = map[model.VehicleType]map[model.SafetyFactor]float64{
	model.VehicleTypeDiesel: {
		model.FactorSpeedLimitVolatility: 0.15,
		model.FactorTraffic:              0.20,
		model.FactorComplexity:           0.15,
		model.FactorAccidentDensity:      0.20,
		model.FactorWeather:              0.15,
		model.FactorDriverExperience:     0.15,
	},
	model.VehicleTypeHybrid: {
		model.FactorSpeedLimitVolatility: 0.15,
		model.FactorTraffic:              0.20,
		model.FactorComplexity:           0.15,
		model.FactorAccidentDensity:      0.20,
		model.FactorWeather:              0.15,
		model.FactorDriverExperience:     0.15,
	},
	model.VehicleTypeElectric: {
		model.FactorSpeedLimitVolatility: 0.13,
		model.FactorTraffic:              0.18,
		model.FactorComplexity:           0.13,
		model.FactorAccidentDensity:      0.18,
		model.FactorWeather:              0.14,
		model.FactorDriverExperience:     0.14,
		model.FactorEVRangeRisk:          0.10,
	},
}

// WeightsFor exposes the per-class weight table.
func WeightsFor(vehicleType model.VehicleType) map[model.SafetyFactor]float64 {
	return factorWeights[vehicleType]
}

type accidentCorridor struct {
	name            string
	location        model.Waypoint
	annualIncidents int
}

// Known high-risk corridors; stands in for an accident-history dataset.
var accidentCorridors = []accidentCorridor{
	{name: "M25 London Orbital", location: model.Waypoint{Lat: 51.57, Lng: -0.25}, annualIncidents: 45},
	{name: "M6 Midlands", location: model.Waypoint{Lat: 52.59, Lng: -2.02}, annualIncidents: 67},
	{name: "A9 Scotland", location: model.Waypoint{Lat: 56.80, Lng: -3.95}, annualIncidents: 34},
}

type ScorerService struct {
	routes  *repository.RouteRepository
	gw      gateway.MapsGateway
	weather gateway.WeatherProvider
	cfg     config.ScorerConfig
	log     zerolog.Logger
}

func NewScorerService(
	routes *repository.RouteRepository,
	gw gateway.MapsGateway,
	weather gateway.WeatherProvider,
	cfg config.ScorerConfig,
	log zerolog.Logger,
) *ScorerService {
	return &ScorerService{routes: routes, gw: gw, weather: weather, cfg: cfg, log: log}
}

type scoringContext struct {
	vehicle     *model.Vehicle
	driver      *model.Driver
	candidate   *model.RouteCandidate
	departureAt time.Time
}

// ScoreCandidates evaluates every candidate concurrently, each factor
// concurrently and independently within a candidate, then persists factor
// rows and the composite. Factor failures degrade to the neutral subscore.
func (s *ScorerService) ScoreCandidates(ctx context.Context, vehicle *model.Vehicle, driver *model.Driver, candidates []model.RouteCandidate, departureAt time.Time) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		candidate := &candidates[i]
		g.Go(func() error {
			return s.scoreOne(gctx, scoringContext{
				vehicle:     vehicle,
				driver:      driver,
				candidate:   candidate,
				departureAt: departureAt,
			})
		})
	}
	return g.Wait()
}

func (s *ScorerService) scoreOne(ctx context.Context, sc scoringContext) error {
	weights := factorWeights[sc.vehicle.Type]

	factors := make([]model.SafetyFactor, 0, len(weights))
	for _, factor := range model.AllSafetyFactors() {
		if weights[factor] > 0 {
			factors = append(factors, factor)
		}
	}

	results := make([]model.SafetyFactorResult, len(factors))
	partial := false

	// Fan-in barrier: every factor completes or times out before the
	// composite is computed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, factor := range factors {
		wg.Add(1)
		go func(idx int, factor model.SafetyFactor) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, s.cfg.FactorTimeout)
			defer cancel()

			subscore, tag, err := s.evaluateFactor(fctx, factor, sc)
			if err != nil {
				s.log.Warn().
					Str("factor", string(factor)).
					Str("candidate_id", sc.candidate.ID.String()).
					Err(err).
					Msg("factor evaluation degraded to neutral subscore")
				subscore = neutralSubscore
				tag = "evaluation-failed"
				mu.Lock()
				partial = true
				mu.Unlock()
			}
			results[idx] = model.SafetyFactorResult{
				RouteCandidateID: sc.candidate.ID,
				Factor:           factor,
				Subscore:         subscore,
				Weight:           weights[factor],
				Tag:              tag,
			}
		}(i, factor)
	}
	wg.Wait()

	var weighted float64
	for _, result := range results {
		weighted += result.Weight * result.Subscore
	}
	score := int(math.Round(weighted))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	band := model.RiskBandForScore(score)

	if err := s.routes.SaveScore(ctx, sc.candidate.ID, score, band, partial, results); err != nil {
		return err
	}

	sc.candidate.SafetyScore = &score
	sc.candidate.RiskBand = band
	sc.candidate.PartialScoring = partial
	sc.candidate.Factors = results
	return nil
}

func (s *ScorerService) evaluateFactor(ctx context.Context, factor model.SafetyFactor, sc scoringContext) (float64, string, error) {
	switch factor {
	case model.FactorSpeedLimitVolatility:
		return s.speedLimitVolatility(ctx, sc)
	case model.FactorTraffic:
		return s.trafficRisk(ctx, sc)
	case model.FactorComplexity:
		return s.complexity(sc)
	case model.FactorAccidentDensity:
		return s.accidentDensity(sc)
	case model.FactorWeather:
		return s.weatherRisk(ctx, sc)
	case model.FactorDriverExperience:
		return s.driverExperience(sc)
	case model.FactorEVRangeRisk:
		return s.evRangeRisk(sc)
	default:
		return 0, "", fmt.Errorf("unknown factor %q", factor)
	}
}

// speedLimitVolatility penalises frequent limit changes along the route;
// abrupt speed transitions correlate with rear-end and merge incidents.
func (s *ScorerService) speedLimitVolatility(ctx context.Context, sc scoringContext) (float64, string, error) {
	limits, err := s.gw.GetSpeedLimits(ctx, sc.candidate.Waypoints)
	if err != nil {
		return 0, "", err
	}
	if len(limits) < 2 {
		return 90, "uniform", nil
	}

	var mean float64
	for _, limit := range limits {
		mean += limit
	}
	mean /= float64(len(limits))

	var variance float64
	for _, limit := range limits {
		variance += (limit - mean) * (limit - mean)
	}
	stddev := math.Sqrt(variance / float64(len(limits)))

	score := clampScore(100 - stddev*6)
	return score, fmt.Sprintf("stddev=%.1fmph", stddev), nil
}

func (s *ScorerService) trafficRisk(ctx context.Context, sc scoringContext) (float64, string, error) {
	conditions, err := s.gw.GetTrafficConditions(ctx, sc.candidate.Waypoints)
	if err != nil {
		return 0, "", err
	}

	score := 100.0
	baseline := sc.candidate.DurationMins
	if baseline > 0 {
		delayRatio := conditions.DelayMins / baseline
		score -= delayRatio * 250
	}
	for _, incident := range conditions.Incidents {
		switch incident.Type {
		case gateway.IncidentClosure:
			score -= 40
		case gateway.IncidentAccident:
			score -= 25
		default:
			score -= 10
		}
	}
	return clampScore(score), fmt.Sprintf("delay=%.0fmin incidents=%d", conditions.DelayMins, len(conditions.Incidents)), nil
}

// complexity approximates turn/intersection density from waypoint density.
func (s *ScorerService) complexity(sc scoringContext) (float64, string, error) {
	if sc.candidate.DistanceMiles <= 0 {
		return neutralSubscore, "no-distance", nil
	}
	perTenMiles := float64(len(sc.candidate.Waypoints)) / sc.candidate.DistanceMiles * 10
	score := clampScore(105 - perTenMiles*12)
	return score, fmt.Sprintf("waypoints-per-10mi=%.1f", perTenMiles), nil
}

func (s *ScorerService) accidentDensity(sc scoringContext) (float64, string, error) {
	if len(sc.candidate.Waypoints) == 0 {
		return neutralSubscore, "no-path", nil
	}

	worst := 0
	worstName := "none"
	for _, corridor := range accidentCorridors {
		for _, point := range sc.candidate.Waypoints {
			if model.HaversineMiles(point, corridor.location) < 25 {
				if corridor.annualIncidents > worst {
					worst = corridor.annualIncidents
					worstName = corridor.name
				}
				break
			}
		}
	}

	score := clampScore(95 - float64(worst))
	return score, fmt.Sprintf("corridor=%s incidents=%d", worstName, worst), nil
}

func (s *ScorerService) weatherRisk(ctx context.Context, sc scoringContext) (float64, string, error) {
	mid := sc.candidate.Waypoints[len(sc.candidate.Waypoints)/2]
	conditions, err := s.weather.GetConditions(ctx, mid, sc.departureAt)
	if err != nil {
		return 0, "", err
	}

	var score float64
	switch conditions.SeverityClass {
	case gateway.WeatherSeveritySevere:
		score = 25
	case gateway.WeatherSeverityModerate:
		score = 60
	default:
		score = 90
	}
	if conditions.WindSpeedMph > 40 {
		score -= 15
	}
	if conditions.TemperatureC < 0 {
		score -= 10
	}
	return clampScore(score), conditions.SeverityClass, nil
}

func (s *ScorerService) driverExperience(sc scoringContext) (float64, string, error) {
	var base float64
	switch sc.driver.Experience {
	case model.DriverExperienceExpert:
		base = 90
	case model.DriverExperienceNew:
		base = 55
	default:
		base = 75
	}
	score := clampScore(base*0.7 + sc.driver.SafetyScore*0.3)
	return score, string(sc.driver.Experience), nil
}

// evRangeRisk reflects how much margin the plan leaves: every required
// charging stop is exposure, and a tight reserve adds more.
func (s *ScorerService) evRangeRisk(sc scoringContext) (float64, string, error) {
	chargingStops := 0
	for _, stop := range sc.candidate.Stops {
		if stop.Type == model.StopTypeCharging {
			chargingStops++
		}
	}
	score := clampScore(95 - float64(chargingStops)*15)
	return score, fmt.Sprintf("charging-stops=%d", chargingStops), nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
