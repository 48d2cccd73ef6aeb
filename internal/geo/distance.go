// Package geo provides great-circle distance math for candidate ranking.
// It is intentionally small and dependency-free: callers decide what a
// candidate is and how to sort; this package only answers "how far apart",
// and "is this distance defined at all".
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// points given in decimal degrees. It is symmetric within floating-point
// tolerance: Haversine(a, b) == Haversine(b, a).
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*sinLon*sinLon
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Distance computes the distance between two optionally-known coordinates.
// It returns ok=false when either side lacks a coordinate; such a distance
// is "undefined" and must sort after every defined distance.
func Distance(lat1, lon1, lat2, lon2 *float64) (km float64, ok bool) {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return 0, false
	}
	return Haversine(*lat1, *lon1, *lat2, *lon2), true
}

// Less orders two optionally-defined distances ascending with undefined
// values last. Equal and both-undefined compare false on both sides, which
// keeps a stable sort stable.
func Less(d1 float64, ok1 bool, d2 float64, ok2 bool) bool {
	switch {
	case ok1 && ok2:
		return d1 < d2
	case ok1:
		return true // defined before undefined
	default:
		return false
	}
}
