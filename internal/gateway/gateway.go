package gateway

import (
	"context"
	"time"

	"fleet-safety-service/internal/model"
)

// DirectionsRequest mirrors the tool gateway's get_directions contract.
type DirectionsRequest struct {
	Origin        model.Waypoint
	Destination   model.Waypoint
	Alternatives  bool
	DepartureTime time.Time
}

type Route struct {
	Summary             string
	Waypoints           []model.Waypoint
	DistanceMiles       float64
	DurationMins        float64
	TrafficDurationMins float64
}

type IncidentType string

const (
	IncidentClosure      IncidentType = "CLOSURE"
	IncidentAccident     IncidentType = "ACCIDENT"
	IncidentConstruction IncidentType = "CONSTRUCTION"
)

type Incident struct {
	Type     IncidentType
	Severity string
	Location model.Waypoint
}

type TrafficConditions struct {
	DelayMins          float64
	CongestionSegments int
	Incidents          []Incident
}

type PlaceSearchRequest struct {
	Location model.Waypoint
	Category string
	RadiusM  float64
}

type Place struct {
	Name     string
	Category string
	Location model.Waypoint
}

type ElevationProfile struct {
	TotalGainMeters float64
	TotalLossMeters float64
}

type DistanceEntry struct {
	DistanceMiles float64
	DurationMins  float64
}

// MapsGateway is the uniform contract over routing, places, traffic,
// geocoding, road-snapping, speed-limit and elevation operations. All calls
// are idempotent reads. Implementations signal retryable failures with a
// TransientError so callers can discriminate.
type MapsGateway interface {
	GetDirections(ctx context.Context, req DirectionsRequest) ([]Route, error)
	GetSpeedLimits(ctx context.Context, waypoints []model.Waypoint) ([]float64, error)
	GetTrafficConditions(ctx context.Context, path []model.Waypoint) (TrafficConditions, error)
	SearchPlaces(ctx context.Context, req PlaceSearchRequest) ([]Place, error)
	SnapToRoads(ctx context.Context, points []model.Waypoint) ([]model.Waypoint, error)
	GetRouteElevationGain(ctx context.Context, path []model.Waypoint) (ElevationProfile, error)
	CalculateDistanceMatrix(ctx context.Context, origins, destinations []model.Waypoint) ([][]DistanceEntry, error)
	GeocodeAddress(ctx context.Context, text string) (model.Waypoint, error)
	ReverseGeocode(ctx context.Context, point model.Waypoint) (string, error)
}

type WeatherConditions struct {
	TemperatureC      float64
	PrecipitationType string
	WindSpeedMph      float64
	SeverityClass     string
}

const (
	WeatherSeverityClear    = "CLEAR"
	WeatherSeverityModerate = "MODERATE"
	WeatherSeveritySevere   = "SEVERE"
)

type WeatherProvider interface {
	GetConditions(ctx context.Context, at model.Waypoint, t time.Time) (WeatherConditions, error)
}
