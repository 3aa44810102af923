package geo

import (
	"math"
	"slices"
)

// EarthRadiusKm is the mean earth radius used by DistanceKm
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees
type Point struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether the point lies inside the usual coordinate ranges
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the great-circle distance between a and b using the
// haversine formula, rounded to 2 decimal places.
func DistanceKm(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(EarthRadiusKm*c*100) / 100
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Ranked is an item annotated with its distance from a reference point
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// RankByDistance annotates every item with its distance from ref and returns
// them nearest first. Items at equal distance keep their input order. The
// input slice is not modified.
func RankByDistance[T any](ref Point, items []T, position func(T) Point) []Ranked[T] {
	ranked := make([]Ranked[T], 0, len(items))
	for _, item := range items {
		ranked = append(ranked, Ranked[T]{
			Item:       item,
			DistanceKm: DistanceKm(ref, position(item)),
		})
	}
	slices.SortStableFunc(ranked, func(a, b Ranked[T]) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return 0
	})
	return ranked
}

// WithinRadius returns the prefix of an already ranked slice whose distance
// does not exceed maxKm.
func WithinRadius[T any](ranked []Ranked[T], maxKm float64) []Ranked[T] {
	for i, r := range ranked {
		if r.DistanceKm > maxKm {
			return ranked[:i]
		}
	}
	return ranked
}
