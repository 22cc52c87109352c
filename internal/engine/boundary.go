package engine

// Boundary is the external call contract of the native engine.
//
// The calling convention mirrors a foreign-function boundary: every
// operation takes only primitives, strings, or flat numeric arrays (plus an
// offsets array for variable-length batches) and returns primitives,
// strings, or JSON-encoded strings. No nested collection types cross the
// boundary directly.
//
// JSON-returning operations may use either snake_case or camelCase keys;
// the client normalizes through the wire adapter. Query-class operations
// are expected to complete sub-frame; the one long-running operation
// (section detection) is exposed as start/poll/cancel so it never blocks
// the caller's event loop.
type Boundary interface {
	// Init opens or creates the engine's backing storage at path.
	// Reports success. Re-initializing replaces the previous storage.
	Init(path string) bool

	// Clear removes all engine-side state.
	Clear()

	// AddActivities bulk-ingests activity geometry. coords holds all
	// tracks concatenated as [lat, lng, ...]; offsets is in point units
	// with offsets[0]=0 and offsets[i+1]=offsets[i]+pointCount(i).
	AddActivities(ids []string, coords []float64, offsets []uint32, sportTypes []string) error

	// RemoveActivities deletes the given activities and any derived state.
	RemoveActivities(ids []string) error

	// CleanupOldActivities removes activities older than retentionDays.
	// Returns the number removed.
	CleanupOldActivities(retentionDays uint32) (uint32, error)

	// SetTimeStreams uploads per-activity time streams using the same
	// flattening convention as AddActivities.
	SetTimeStreams(ids []string, values []float64, offsets []uint32) error

	// SetActivityMetricsJSON stores per-activity metric records supplied
	// as a JSON array.
	SetActivityMetricsJSON(metricsJSON string) error

	// ActivitiesMissingTimeStreams lists up to limit activity ids that
	// have geometry but no time stream.
	ActivitiesMissingTimeStreams(limit uint32) []string

	// Lightweight queries.
	ActivityIDs() []string
	ActivityCount() uint32
	GroupCount() uint32
	SectionCount(sportType string) uint32

	// Summary reads, JSON-encoded.
	GroupsJSON() string
	SectionSummariesJSON(sportType string) string
	SectionsForActivityJSON(activityID string) string
	RecentActivitiesJSON(limit uint32) string

	// Detail reads. The boolean reports presence.
	SectionByIDJSON(sectionID string) (string, bool)
	GroupByIDJSON(groupID string) (string, bool)

	// Flat geometry reads, [lat, lng, ...].
	GPSTrack(activityID string) []float64
	SimplifiedGPSTrack(activityID string) []float64
	ConsensusRoute(groupID string) []float64
	SectionPolyline(sectionID string) []float64

	// QueryViewport returns ids of activities whose bounds intersect the
	// box.
	QueryViewport(minLat, minLng, maxLat, maxLng float64) []string

	// Display names.
	SetRouteName(groupID, name string) error
	RouteName(groupID string) string
	AllRouteNamesJSON() string
	SetSectionName(sectionID, name string) error
	SectionName(sectionID string) string
	AllSectionNamesJSON() string

	// Section detection, start/poll/cancel. StartSectionDetection reports
	// false if a run is already active or the engine is uninitialized.
	// PollSectionDetection returns "idle", "running", "complete" or
	// "error"; a terminal status is consumed by the poll that observes it.
	// There is no implicit cancellation: a caller that stops polling must
	// call CancelSectionDetection.
	StartSectionDetection(sportFilter string) bool
	PollSectionDetection() string
	CancelSectionDetection()

	// MatchCustomSection matches a custom section (JSON, camelCase)
	// against the given activities. Returns a JSON match array.
	MatchCustomSection(sectionJSON string, activityIDs []string) string
}
