package gateway

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"fleet-safety-service/internal/model"
)

// StaticGateway is a deterministic in-process implementation of MapsGateway
// and WeatherProvider. It serves tests and local demo runs; production wires
// a real tool-gateway client behind the same interfaces.
//
// Per-method override hooks let tests inject failures or fixed responses
// without a separate mock type.
type StaticGateway struct {
	// Road distance = great-circle distance * RoadFactor.
	RoadFactor float64
	// Average speed used to derive durations, mph.
	AvgSpeedMph float64
	// Extra minutes of traffic delay applied to the primary route.
	TrafficDelayMins float64

	Weather  WeatherConditions
	Traffic  *TrafficConditions
	Geocodes map[string]model.Waypoint

	DirectionsFn  func(ctx context.Context, req DirectionsRequest) ([]Route, error)
	TrafficFn     func(ctx context.Context, path []model.Waypoint) (TrafficConditions, error)
	SpeedLimitsFn func(ctx context.Context, waypoints []model.Waypoint) ([]float64, error)
	PlacesFn      func(ctx context.Context, req PlaceSearchRequest) ([]Place, error)
	ElevationFn   func(ctx context.Context, path []model.Waypoint) (ElevationProfile, error)
	WeatherFn     func(ctx context.Context, at model.Waypoint, t time.Time) (WeatherConditions, error)
}

func NewStaticGateway() *StaticGateway {
	return &StaticGateway{
		RoadFactor:       1.18,
		AvgSpeedMph:      50,
		TrafficDelayMins: 8,
		Weather:          WeatherConditions{TemperatureC: 14, PrecipitationType: "none", WindSpeedMph: 9, SeverityClass: WeatherSeverityClear},
		Geocodes: map[string]model.Waypoint{
			"london":     {Lat: 51.5074, Lng: -0.1278},
			"manchester": {Lat: 53.4808, Lng: -2.2426},
			"cambridge":  {Lat: 52.2053, Lng: 0.1218},
			"edinburgh":  {Lat: 55.9533, Lng: -3.1883},
			"birmingham": {Lat: 52.4862, Lng: -1.8904},
			"leeds":      {Lat: 53.8008, Lng: -1.5491},
			"bristol":    {Lat: 51.4545, Lng: -2.5879},
		},
	}
}

func (g *StaticGateway) GetDirections(ctx context.Context, req DirectionsRequest) ([]Route, error) {
	if g.DirectionsFn != nil {
		return g.DirectionsFn(ctx, req)
	}

	direct := model.HaversineMiles(req.Origin, req.Destination)
	if direct == 0 {
		return nil, fmt.Errorf("origin and destination are identical")
	}

	primary := g.buildRoute("primary", req.Origin, req.Destination, g.RoadFactor, 0.0)
	primary.TrafficDurationMins = primary.DurationMins + g.TrafficDelayMins
	routes := []Route{primary}

	if req.Alternatives {
		alt := g.buildRoute("alternative", req.Origin, req.Destination, g.RoadFactor*1.12, 0.04)
		alt.TrafficDurationMins = alt.DurationMins + g.TrafficDelayMins/2
		routes = append(routes, alt)
	}

	return routes, nil
}

// buildRoute interpolates waypoints along the straight line between the
// endpoints, with a lateral offset so alternatives take distinct paths.
func (g *StaticGateway) buildRoute(summary string, origin, destination model.Waypoint, roadFactor, lateralOffset float64) Route {
	direct := model.HaversineMiles(origin, destination)
	distance := direct * roadFactor

	segments := int(math.Max(6, math.Min(40, direct/20)))
	waypoints := make([]model.Waypoint, 0, segments+1)
	for i := 0; i <= segments; i++ {
		frac := float64(i) / float64(segments)
		// Offset peaks mid-route and vanishes at the endpoints.
		bow := lateralOffset * math.Sin(frac*math.Pi)
		waypoints = append(waypoints, model.Waypoint{
			Lat: origin.Lat + (destination.Lat-origin.Lat)*frac,
			Lng: origin.Lng + (destination.Lng-origin.Lng)*frac + bow,
		})
	}

	return Route{
		Summary:       summary,
		Waypoints:     waypoints,
		DistanceMiles: distance,
		DurationMins:  distance / g.AvgSpeedMph * 60,
	}
}

func (g *StaticGateway) GetSpeedLimits(ctx context.Context, waypoints []model.Waypoint) ([]float64, error) {
	if g.SpeedLimitsFn != nil {
		return g.SpeedLimitsFn(ctx, waypoints)
	}
	limits := make([]float64, len(waypoints))
	pattern := []float64{70, 70, 60, 70, 50, 70}
	for i := range waypoints {
		limits[i] = pattern[i%len(pattern)]
	}
	return limits, nil
}

func (g *StaticGateway) GetTrafficConditions(ctx context.Context, path []model.Waypoint) (TrafficConditions, error) {
	if g.TrafficFn != nil {
		return g.TrafficFn(ctx, path)
	}
	if g.Traffic != nil {
		return *g.Traffic, nil
	}
	return TrafficConditions{DelayMins: g.TrafficDelayMins, CongestionSegments: 1}, nil
}

func (g *StaticGateway) SearchPlaces(ctx context.Context, req PlaceSearchRequest) ([]Place, error) {
	if g.PlacesFn != nil {
		return g.PlacesFn(ctx, req)
	}
	name := fmt.Sprintf("%s near %.2f,%.2f", req.Category, req.Location.Lat, req.Location.Lng)
	return []Place{{
		Name:     name,
		Category: req.Category,
		Location: model.Waypoint{Lat: req.Location.Lat + 0.01, Lng: req.Location.Lng - 0.01},
	}}, nil
}

func (g *StaticGateway) SnapToRoads(ctx context.Context, points []model.Waypoint) ([]model.Waypoint, error) {
	snapped := make([]model.Waypoint, len(points))
	copy(snapped, points)
	return snapped, nil
}

func (g *StaticGateway) GetRouteElevationGain(ctx context.Context, path []model.Waypoint) (ElevationProfile, error) {
	if g.ElevationFn != nil {
		return g.ElevationFn(ctx, path)
	}
	distance := model.PathDistanceMiles(path)
	return ElevationProfile{TotalGainMeters: distance * 3, TotalLossMeters: distance * 3}, nil
}

func (g *StaticGateway) CalculateDistanceMatrix(ctx context.Context, origins, destinations []model.Waypoint) ([][]DistanceEntry, error) {
	matrix := make([][]DistanceEntry, len(origins))
	for i, origin := range origins {
		row := make([]DistanceEntry, len(destinations))
		for j, dest := range destinations {
			miles := model.HaversineMiles(origin, dest) * g.RoadFactor
			row[j] = DistanceEntry{DistanceMiles: miles, DurationMins: miles / g.AvgSpeedMph * 60}
		}
		matrix[i] = row
	}
	return matrix, nil
}

func (g *StaticGateway) GeocodeAddress(ctx context.Context, text string) (model.Waypoint, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if idx := strings.IndexAny(key, ","); idx > 0 {
		key = key[:idx]
	}
	if point, ok := g.Geocodes[key]; ok {
		return point, nil
	}
	return model.Waypoint{}, fmt.Errorf("unknown address %q", text)
}

func (g *StaticGateway) ReverseGeocode(ctx context.Context, point model.Waypoint) (string, error) {
	bestName := ""
	bestDist := math.MaxFloat64
	for name, loc := range g.Geocodes {
		if d := model.HaversineMiles(point, loc); d < bestDist {
			bestDist = d
			bestName = name
		}
	}
	if bestName == "" {
		return fmt.Sprintf("%.4f,%.4f", point.Lat, point.Lng), nil
	}
	return bestName, nil
}

func (g *StaticGateway) GetConditions(ctx context.Context, at model.Waypoint, t time.Time) (WeatherConditions, error) {
	if g.WeatherFn != nil {
		return g.WeatherFn(ctx, at, t)
	}
	return g.Weather, nil
}
