package engine

import "github.com/veloq/enginesync/internal/section"

// Typed views of engine JSON responses. Field tags use the camelCase wire
// convention; snake_case responses are normalized by the wire adapter before
// decoding into these types.

// Bounds is a geographic bounding box.
type Bounds struct {
	NeLat float64 `json:"neLat"`
	NeLng float64 `json:"neLng"`
	SwLat float64 `json:"swLat"`
	SwLng float64 `json:"swLng"`
}

// RouteGroup is a cluster of activities sharing the same route.
type RouteGroup struct {
	GroupID          string   `json:"groupId"`
	RepresentativeID string   `json:"representativeId"`
	ActivityIDs      []string `json:"activityIds"`
	SportType        string   `json:"sportType"`
	Bounds           *Bounds  `json:"bounds,omitempty"`
	CustomName       string   `json:"customName,omitempty"`
}

// SectionSummary is the lightweight view of a detected section, carrying no
// geometry. List views render from summaries so they never pay the polyline
// transfer cost for items the user has not opened.
type SectionSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	GroupID        string  `json:"groupId,omitempty"`
	SportType      string  `json:"sportType"`
	DistanceMeters float64 `json:"distanceMeters"`
	ActivityCount  int     `json:"activityCount"`
}

// SectionDetail is the full record of a detected section, including its
// polyline. Only single-item views load details.
type SectionDetail struct {
	SectionSummary
	ActivityIDs []string           `json:"activityIds,omitempty"`
	Polyline    []section.GeoPoint `json:"polyline"`
}

// ActivitySummary is the metadata mirror of an engine-owned activity.
type ActivitySummary struct {
	ID             string  `json:"id"`
	SportType      string  `json:"sportType"`
	DistanceMeters float64 `json:"distanceMeters"`
	MovingTime     float64 `json:"movingTime"`
	ElapsedTime    float64 `json:"elapsedTime"`
	ElevationGain  float64 `json:"elevationGain"`
	CreatedAt      int64   `json:"createdAt"`
}

// ActivityMetrics carries the per-activity metric fields for bulk upload.
type ActivityMetrics struct {
	ActivityID     string  `json:"activityId"`
	DistanceMeters float64 `json:"distanceMeters"`
	MovingTime     float64 `json:"movingTime"`
	ElapsedTime    float64 `json:"elapsedTime"`
	ElevationGain  float64 `json:"elevationGain"`
}

// DetectionStatus is the state reported by PollSectionDetection.
type DetectionStatus string

const (
	// DetectionIdle means no run has started, or the last result was
	// already consumed.
	DetectionIdle     DetectionStatus = "idle"
	DetectionRunning  DetectionStatus = "running"
	DetectionComplete DetectionStatus = "complete"
	DetectionError    DetectionStatus = "error"
)

// FlattenTracks concatenates per-activity point slices into one flat
// [lat, lng, lat, lng, ...] array plus an offsets array in point units:
// offsets[0] = 0 and offsets[i+1] = offsets[i] + len(tracks[i]). This is the
// boundary's flattening convention; it avoids per-entity marshalling.
func FlattenTracks(tracks [][]section.GeoPoint) (coords []float64, offsets []uint32) {
	total := 0
	for _, tr := range tracks {
		total += len(tr)
	}
	coords = make([]float64, 0, total*2)
	offsets = make([]uint32, len(tracks)+1)
	for i, tr := range tracks {
		offsets[i+1] = offsets[i] + uint32(len(tr))
		for _, p := range tr {
			coords = append(coords, p.Latitude, p.Longitude)
		}
	}
	return coords, offsets
}

// FlattenStreams concatenates per-activity value arrays with the same
// offsets convention as FlattenTracks.
func FlattenStreams(streams [][]float64) (values []float64, offsets []uint32) {
	total := 0
	for _, st := range streams {
		total += len(st)
	}
	values = make([]float64, 0, total)
	offsets = make([]uint32, len(streams)+1)
	for i, st := range streams {
		offsets[i+1] = offsets[i] + uint32(len(st))
		values = append(values, st...)
	}
	return values, offsets
}

// PointsFromFlat converts a flat [lat, lng, ...] array into point records.
// A trailing unpaired value is dropped.
func PointsFromFlat(flat []float64) []section.GeoPoint {
	points := make([]section.GeoPoint, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		points = append(points, section.GeoPoint{Latitude: flat[i], Longitude: flat[i+1]})
	}
	return points
}
