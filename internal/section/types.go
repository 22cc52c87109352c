// Package section holds user-authored custom sections and their per-activity
// match caches. The store is the system of record: the engine only ever
// receives a derived copy of a section for matching, and losing engine state
// never loses a user's sections.
package section

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// GeoPoint is a single geographic coordinate. Elevation is optional and
// omitted from serialized form when absent.
type GeoPoint struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// CustomSection is a user-authored geographic segment, distinct from the
// engine's auto-detected sections. Only Name is mutable after creation.
type CustomSection struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Polyline         []GeoPoint `json:"polyline"`
	SourceActivityID string     `json:"sourceActivityId"`
	StartIndex       int        `json:"startIndex"`
	EndIndex         int        `json:"endIndex"`
	SportType        string     `json:"sportType"`
	DistanceMeters   float64    `json:"distanceMeters"`
	CreatedAt        string     `json:"createdAt"`
}

// Match records that an activity traverses a section, with the traversed
// index range and direction. At most one match exists per
// (section, activity) pair; AddMatch enforces this at insert time.
type Match struct {
	ActivityID     string  `json:"activityId"`
	StartIndex     int     `json:"startIndex"`
	EndIndex       int     `json:"endIndex"`
	Direction      string  `json:"direction"` // "same" | "reverse"
	DistanceMeters float64 `json:"distanceMeters"`
}

// WithMatches pairs a section with its cached matches for combined reads.
type WithMatches struct {
	Section CustomSection `json:"section"`
	Matches []Match       `json:"matches"`
}

// NewID returns a fresh section id. The "custom_" prefix keeps user-authored
// ids distinguishable from engine-detected section ids.
func NewID() string {
	return "custom_" + uuid.NewString()
}

// Now returns the creation timestamp in the persisted format (RFC 3339 UTC).
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b GeoPoint) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// TrackDistance returns the cumulative point-to-point distance of a polyline
// in meters. Fewer than two points is zero.
func TrackDistance(points []GeoPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1], points[i])
	}
	return total
}
