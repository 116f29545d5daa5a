package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fleet-safety-service/internal/model"
)

// Retrying wraps a MapsGateway with bounded exponential backoff. Transient
// errors are retried up to the attempt budget; permanent errors surface
// immediately.
type Retrying struct {
	inner     MapsGateway
	attempts  int
	baseDelay time.Duration
	log       zerolog.Logger
}

func NewRetrying(inner MapsGateway, attempts int, baseDelay time.Duration, log zerolog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{inner: inner, attempts: attempts, baseDelay: baseDelay, log: log}
}

func retry[T any](ctx context.Context, r *Retrying, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := r.baseDelay
	for attempt := 1; attempt <= r.attempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		r.log.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("gateway call failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}
	return zero, lastErr
}

func (r *Retrying) GetDirections(ctx context.Context, req DirectionsRequest) ([]Route, error) {
	return retry(ctx, r, "get_directions", func(ctx context.Context) ([]Route, error) {
		return r.inner.GetDirections(ctx, req)
	})
}

func (r *Retrying) GetSpeedLimits(ctx context.Context, waypoints []model.Waypoint) ([]float64, error) {
	return retry(ctx, r, "get_speed_limits", func(ctx context.Context) ([]float64, error) {
		return r.inner.GetSpeedLimits(ctx, waypoints)
	})
}

func (r *Retrying) GetTrafficConditions(ctx context.Context, path []model.Waypoint) (TrafficConditions, error) {
	return retry(ctx, r, "get_traffic_conditions", func(ctx context.Context) (TrafficConditions, error) {
		return r.inner.GetTrafficConditions(ctx, path)
	})
}

func (r *Retrying) SearchPlaces(ctx context.Context, req PlaceSearchRequest) ([]Place, error) {
	return retry(ctx, r, "search_places", func(ctx context.Context) ([]Place, error) {
		return r.inner.SearchPlaces(ctx, req)
	})
}

func (r *Retrying) SnapToRoads(ctx context.Context, points []model.Waypoint) ([]model.Waypoint, error) {
	return retry(ctx, r, "snap_to_roads", func(ctx context.Context) ([]model.Waypoint, error) {
		return r.inner.SnapToRoads(ctx, points)
	})
}

func (r *Retrying) GetRouteElevationGain(ctx context.Context, path []model.Waypoint) (ElevationProfile, error) {
	return retry(ctx, r, "get_route_elevation_gain", func(ctx context.Context) (ElevationProfile, error) {
		return r.inner.GetRouteElevationGain(ctx, path)
	})
}

func (r *Retrying) CalculateDistanceMatrix(ctx context.Context, origins, destinations []model.Waypoint) ([][]DistanceEntry, error) {
	return retry(ctx, r, "calculate_distance_matrix", func(ctx context.Context) ([][]DistanceEntry, error) {
		return r.inner.CalculateDistanceMatrix(ctx, origins, destinations)
	})
}

func (r *Retrying) GeocodeAddress(ctx context.Context, text string) (model.Waypoint, error) {
	return retry(ctx, r, "geocode_address", func(ctx context.Context) (model.Waypoint, error) {
		return r.inner.GeocodeAddress(ctx, text)
	})
}

func (r *Retrying) ReverseGeocode(ctx context.Context, point model.Waypoint) (string, error) {
	return retry(ctx, r, "reverse_geocode", func(ctx context.Context) (string, error) {
		return r.inner.ReverseGeocode(ctx, point)
	})
}
