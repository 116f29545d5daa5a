package model

import "math"

const earthRadiusMiles = 3958.8

// HaversineMiles returns the great-circle distance between two waypoints.
func HaversineMiles(a, b Waypoint) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

// PathDistanceMiles sums the leg distances along an ordered waypoint path.
func PathDistanceMiles(path []Waypoint) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineMiles(path[i-1], path[i])
	}
	return total
}
