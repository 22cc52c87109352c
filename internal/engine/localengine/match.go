package localengine

import (
	"encoding/json"

	"github.com/veloq/enginesync/internal/section"
)

// Matching thresholds: an activity matches a section when at least
// coverageThreshold of the section's points have a track point within
// proximityMeters.
const (
	proximityMeters   = 50.0
	coverageThreshold = 0.8
)

type matchRecord struct {
	ActivityID     string  `json:"activity_id"`
	StartIndex     int     `json:"start_index"`
	EndIndex       int     `json:"end_index"`
	Direction      string  `json:"direction"`
	DistanceMeters float64 `json:"distance_meters"`
}

// MatchCustomSection matches a user-authored section against the given
// activities by point proximity coverage. The result is a JSON array of
// match records; activities with no track or insufficient coverage are
// omitted.
func (e *Engine) MatchCustomSection(sectionJSON string, activityIDs []string) string {
	var sec section.CustomSection
	if err := json.Unmarshal([]byte(sectionJSON), &sec); err != nil {
		e.logger.Error("match payload unreadable", "error", err)
		return "[]"
	}
	if len(sec.Polyline) < 2 {
		return "[]"
	}

	matches := []matchRecord{}
	for _, id := range activityIDs {
		track := pointsOf(e.GPSTrack(id))
		if m, ok := matchTrack(sec.Polyline, track); ok {
			m.ActivityID = id
			matches = append(matches, m)
		}
	}
	return marshalOrEmpty(matches)
}

// matchTrack checks one activity track against a section polyline.
func matchTrack(polyline, track []section.GeoPoint) (matchRecord, bool) {
	if len(track) < 2 {
		return matchRecord{}, false
	}

	covered := 0
	for _, p := range polyline {
		if _, d := nearest(track, p); d <= proximityMeters {
			covered++
		}
	}
	if float64(covered)/float64(len(polyline)) < coverageThreshold {
		return matchRecord{}, false
	}

	startIdx, _ := nearest(track, polyline[0])
	endIdx, _ := nearest(track, polyline[len(polyline)-1])
	direction := "same"
	lo, hi := startIdx, endIdx
	if startIdx > endIdx {
		direction = "reverse"
		lo, hi = endIdx, startIdx
	}
	return matchRecord{
		StartIndex:     startIdx,
		EndIndex:       endIdx,
		Direction:      direction,
		DistanceMeters: section.TrackDistance(track[lo : hi+1]),
	}, true
}

// nearest returns the index and distance of the track point closest to p.
func nearest(track []section.GeoPoint, p section.GeoPoint) (int, float64) {
	bestIdx, bestDist := 0, section.Haversine(track[0], p)
	for i := 1; i < len(track); i++ {
		if d := section.Haversine(track[i], p); d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	return bestIdx, bestDist
}
