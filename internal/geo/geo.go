// Package geo provides the great-circle and map-projection math used to
// resolve configured locations against upstream stations and to place
// markers on radar imagery.
package geo

import (
	"math"

	"github.com/nlweather/knmi-direct/internal/domain"
)

const (
	// earthRadiusKM is the haversine Earth radius.
	earthRadiusKM = 6371.0
	// mercatorRadiusM is the EPSG:3857 spherical radius.
	mercatorRadiusM = 6378137.0
	// mercatorMaxLat is the latitude bound of the Web Mercator projection.
	mercatorMaxLat = 85.05112878
)

// Haversine returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Closest returns the element nearest to loc by haversine distance, along
// with that distance in kilometers. Ties keep the earlier element. The
// caller guarantees a non-empty slice.
func Closest[T any](items []T, at func(T) (lat, lon float64), loc domain.Location) (T, float64) {
	best := items[0]
	lat, lon := at(best)
	bestKM := Haversine(lat, lon, loc.Latitude, loc.Longitude)
	for _, item := range items[1:] {
		lat, lon = at(item)
		if d := Haversine(lat, lon, loc.Latitude, loc.Longitude); d < bestKM {
			best, bestKM = item, d
		}
	}
	return best, bestKM
}

// ClosestCoverage resolves the nearest coverage to a location.
func ClosestCoverage(coverages []domain.Coverage, loc domain.Location) (domain.Coverage, float64) {
	return Closest(coverages, func(c domain.Coverage) (float64, float64) {
		return c.Latitude, c.Longitude
	}, loc)
}

// ClosestStation resolves the nearest station to a location.
func ClosestStation(stations []domain.Station, loc domain.Location) (domain.Station, float64) {
	return Closest(stations, func(s domain.Station) (float64, float64) {
		return s.Latitude, s.Longitude
	}, loc)
}

// WebMercator projects EPSG:4326 degrees to EPSG:3857 meters. Latitude is
// clamped to the projection's valid range instead of erroring near the poles.
func WebMercator(lon, lat float64) (x, y float64) {
	lat = math.Max(-mercatorMaxLat, math.Min(mercatorMaxLat, lat))
	x = mercatorRadiusM * radians(lon)
	y = mercatorRadiusM * math.Log(math.Tan(math.Pi/4+radians(lat)/2))
	return x, y
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
