// Package engine is the client-side facade over the native engine.
//
// Every other component reaches the engine only through Client, which owns
// the Handle, validates user-supplied values before any native call, adapts
// wire-format responses on read, and runs the pub/sub invalidation bus that
// keeps the reactive UI consistent with engine-side mutations.
package engine

import (
	"encoding/json"
	"log/slog"

	"github.com/veloq/enginesync/internal/section"
	"github.com/veloq/enginesync/internal/validate"
	"github.com/veloq/enginesync/internal/wire"
)

// Client is the single shared engine facade.
//
// Error policy: mutating calls on user-authored paths surface validation and
// native failures synchronously. Read paths degrade gracefully — malformed
// engine JSON becomes the caller's zero value (an empty slice for array
// reads) so a transient failure never crashes a render.
type Client struct {
	handle *Handle
	bus    *eventBus
	logger *slog.Logger

	// detectionActive gates the sections notification so a completed
	// detection run notifies exactly once, no matter how often the caller
	// polls afterwards.
	detectionActive bool
}

// NewClient wraps an engine handle. The handle is owned by the root
// composition; the client does not initialize it.
func NewClient(h *Handle, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{handle: h, bus: newEventBus(), logger: logger}
}

// Init points the engine at its storage location. Idempotent for the same
// path. Gated by the caller on authentication: the engine is created lazily
// on first authenticated use.
func (c *Client) Init(path string) bool {
	ok := c.handle.Init(path)
	if ok {
		c.logger.Info("engine initialized", "path", path)
	} else {
		c.logger.Error("engine init failed", "path", path)
	}
	return ok
}

// IsInitialized reports whether the engine is ready for calls.
func (c *Client) IsInitialized() bool {
	return c.handle.IsInitialized()
}

// Clear resets all engine-side state and invalidates every subscriber view.
func (c *Client) Clear() {
	if !c.handle.IsInitialized() {
		return
	}
	c.handle.boundary.Clear()
	c.logger.Info("engine cleared")
	c.bus.notify(EventActivities)
	c.bus.notify(EventGroups)
	c.bus.notify(EventSections)
	c.bus.notify(EventSyncReset)
}

// ---------------------------------------------------------------------------
// Bulk ingestion
// ---------------------------------------------------------------------------

// AddActivities bulk-ingests flattened activity geometry. ids, sportTypes
// and the offsets array (len(ids)+1 entries, point units) must describe the
// same batch. Fires activities and groups on success.
func (c *Client) AddActivities(ids []string, coords []float64, offsets []uint32, sportTypes []string) error {
	for _, id := range ids {
		if err := validate.ID(id, "activityId"); err != nil {
			return err
		}
	}
	if len(sportTypes) != len(ids) {
		return &validate.Error{Field: "sportTypes", Reason: "must have one entry per activity"}
	}
	if len(offsets) != len(ids)+1 {
		return &validate.Error{Field: "offsets", Reason: "must have len(ids)+1 entries"}
	}
	if err := c.mutable("addActivities"); err != nil {
		return err
	}

	if err := c.handle.boundary.AddActivities(ids, coords, offsets, sportTypes); err != nil {
		return nativeErr("addActivities", err)
	}
	c.logger.Info("activities added", "count", len(ids), "points", len(coords)/2)
	c.bus.notify(EventActivities)
	c.bus.notify(EventGroups)
	return nil
}

// RemoveActivities deletes activities and their derived state. Fires
// activities and groups on success.
func (c *Client) RemoveActivities(ids []string) error {
	for _, id := range ids {
		if err := validate.ID(id, "activityId"); err != nil {
			return err
		}
	}
	if err := c.mutable("removeActivities"); err != nil {
		return err
	}

	if err := c.handle.boundary.RemoveActivities(ids); err != nil {
		return nativeErr("removeActivities", err)
	}
	c.logger.Info("activities removed", "count", len(ids))
	c.bus.notify(EventActivities)
	c.bus.notify(EventGroups)
	return nil
}

// CleanupOldActivities removes activities older than the retention window.
// Notifies only when something was actually removed.
func (c *Client) CleanupOldActivities(retentionDays uint32) (uint32, error) {
	if err := c.mutable("cleanupOldActivities"); err != nil {
		return 0, err
	}
	removed, err := c.handle.boundary.CleanupOldActivities(retentionDays)
	if err != nil {
		return 0, nativeErr("cleanupOldActivities", err)
	}
	if removed > 0 {
		c.logger.Info("old activities removed", "count", removed, "retention_days", retentionDays)
		c.bus.notify(EventActivities)
		c.bus.notify(EventGroups)
	}
	return removed, nil
}

// SetTimeStreams uploads per-activity time streams. The client flattens the
// per-activity arrays into the boundary's offsets convention. Does not
// notify: time streams change derived numbers, not the shape of what
// subscribers render.
func (c *Client) SetTimeStreams(ids []string, streams [][]float64) error {
	for _, id := range ids {
		if err := validate.ID(id, "activityId"); err != nil {
			return err
		}
	}
	if len(streams) != len(ids) {
		return &validate.Error{Field: "timeStreams", Reason: "must have one entry per activity"}
	}
	if err := c.mutable("setTimeStreams"); err != nil {
		return err
	}

	values, offsets := FlattenStreams(streams)
	if err := c.handle.boundary.SetTimeStreams(ids, values, offsets); err != nil {
		return nativeErr("setTimeStreams", err)
	}
	return nil
}

// SetActivityMetrics stores per-activity metrics. Does not notify.
func (c *Client) SetActivityMetrics(metrics []ActivityMetrics) error {
	for _, m := range metrics {
		if err := validate.ID(m.ActivityID, "activityId"); err != nil {
			return err
		}
	}
	if err := c.mutable("setActivityMetrics"); err != nil {
		return err
	}

	payload, err := json.Marshal(metrics)
	if err != nil {
		return nativeErr("setActivityMetrics", err)
	}
	if err := c.handle.boundary.SetActivityMetricsJSON(string(payload)); err != nil {
		return nativeErr("setActivityMetrics", err)
	}
	return nil
}

// ActivitiesMissingTimeStreams lists activities still awaiting a time
// stream upload.
func (c *Client) ActivitiesMissingTimeStreams(limit uint32) []string {
	if !c.handle.IsInitialized() {
		return nil
	}
	return c.handle.boundary.ActivitiesMissingTimeStreams(limit)
}

// ---------------------------------------------------------------------------
// Lightweight queries
// ---------------------------------------------------------------------------

// ActivityIDs returns all stored activity ids.
func (c *Client) ActivityIDs() []string {
	if !c.handle.IsInitialized() {
		return nil
	}
	return c.handle.boundary.ActivityIDs()
}

// ActivityCount returns the number of stored activities.
func (c *Client) ActivityCount() uint32 {
	if !c.handle.IsInitialized() {
		return 0
	}
	return c.handle.boundary.ActivityCount()
}

// GroupCount returns the number of route groups.
func (c *Client) GroupCount() uint32 {
	if !c.handle.IsInitialized() {
		return 0
	}
	return c.handle.boundary.GroupCount()
}

// SectionCount returns the number of detected sections, optionally filtered
// by sport type ("" for all).
func (c *Client) SectionCount(sportType string) uint32 {
	if !c.handle.IsInitialized() {
		return 0
	}
	return c.handle.boundary.SectionCount(sportType)
}

// ---------------------------------------------------------------------------
// Summary and detail reads
// ---------------------------------------------------------------------------

// Groups returns all route groups. Empty on any failure.
func (c *Client) Groups() []RouteGroup {
	if !c.handle.IsInitialized() {
		return []RouteGroup{}
	}
	return wire.SafeParse(c.handle.boundary.GroupsJSON(), []RouteGroup{})
}

// SectionSummaries returns geometry-free section summaries, optionally
// filtered by sport type.
func (c *Client) SectionSummaries(sportType string) []SectionSummary {
	if !c.handle.IsInitialized() {
		return []SectionSummary{}
	}
	return wire.SafeParse(c.handle.boundary.SectionSummariesJSON(sportType), []SectionSummary{})
}

// SectionsForActivity returns summaries of sections traversed by an
// activity.
func (c *Client) SectionsForActivity(activityID string) ([]SectionSummary, error) {
	if err := validate.ID(activityID, "activityId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return []SectionSummary{}, nil
	}
	return wire.SafeParse(c.handle.boundary.SectionsForActivityJSON(activityID), []SectionSummary{}), nil
}

// RecentActivities returns the most recently ingested activities.
func (c *Client) RecentActivities(limit uint32) []ActivitySummary {
	if !c.handle.IsInitialized() {
		return []ActivitySummary{}
	}
	return wire.SafeParse(c.handle.boundary.RecentActivitiesJSON(limit), []ActivitySummary{})
}

// SectionByID returns the full record of one detected section, or nil if it
// does not exist.
func (c *Client) SectionByID(sectionID string) (*SectionDetail, error) {
	if err := validate.ID(sectionID, "sectionId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return nil, nil
	}
	raw, ok := c.handle.boundary.SectionByIDJSON(sectionID)
	if !ok {
		return nil, nil
	}
	detail := wire.SafeParse(raw, SectionDetail{})
	if detail.ID == "" {
		return nil, nil
	}
	return &detail, nil
}

// GroupByID returns one route group, or nil if it does not exist.
func (c *Client) GroupByID(groupID string) (*RouteGroup, error) {
	if err := validate.ID(groupID, "groupId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return nil, nil
	}
	raw, ok := c.handle.boundary.GroupByIDJSON(groupID)
	if !ok {
		return nil, nil
	}
	group := wire.SafeParse(raw, RouteGroup{})
	if group.GroupID == "" {
		return nil, nil
	}
	return &group, nil
}

// ---------------------------------------------------------------------------
// Geometry reads
// ---------------------------------------------------------------------------

// GPSTrack returns an activity's full track, converted pairwise from the
// boundary's flat coordinate array.
func (c *Client) GPSTrack(activityID string) ([]section.GeoPoint, error) {
	if err := validate.ID(activityID, "activityId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return []section.GeoPoint{}, nil
	}
	return PointsFromFlat(c.handle.boundary.GPSTrack(activityID)), nil
}

// SimplifiedGPSTrack returns a decimated track suitable for map rendering.
func (c *Client) SimplifiedGPSTrack(activityID string) ([]section.GeoPoint, error) {
	if err := validate.ID(activityID, "activityId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return []section.GeoPoint{}, nil
	}
	return PointsFromFlat(c.handle.boundary.SimplifiedGPSTrack(activityID)), nil
}

// ConsensusRoute returns a group's consensus route polyline.
func (c *Client) ConsensusRoute(groupID string) ([]section.GeoPoint, error) {
	if err := validate.ID(groupID, "groupId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return []section.GeoPoint{}, nil
	}
	return PointsFromFlat(c.handle.boundary.ConsensusRoute(groupID)), nil
}

// SectionPolyline returns a detected section's polyline.
func (c *Client) SectionPolyline(sectionID string) ([]section.GeoPoint, error) {
	if err := validate.ID(sectionID, "sectionId"); err != nil {
		return nil, err
	}
	if !c.handle.IsInitialized() {
		return []section.GeoPoint{}, nil
	}
	return PointsFromFlat(c.handle.boundary.SectionPolyline(sectionID)), nil
}

// QueryViewport returns ids of activities whose bounds intersect the box.
func (c *Client) QueryViewport(minLat, minLng, maxLat, maxLng float64) []string {
	if !c.handle.IsInitialized() {
		return nil
	}
	return c.handle.boundary.QueryViewport(minLat, minLng, maxLat, maxLng)
}

// ---------------------------------------------------------------------------
// Display names
// ---------------------------------------------------------------------------

type nameEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SetRouteName renames a route group. Fires groups on success.
func (c *Client) SetRouteName(groupID, name string) error {
	if err := validate.ID(groupID, "groupId"); err != nil {
		return err
	}
	if err := validate.Name(name, "name"); err != nil {
		return err
	}
	if err := c.mutable("setRouteName"); err != nil {
		return err
	}
	if err := c.handle.boundary.SetRouteName(groupID, name); err != nil {
		return nativeErr("setRouteName", err)
	}
	c.bus.notify(EventGroups)
	return nil
}

// RouteName returns a group's display name, "" when unset.
func (c *Client) RouteName(groupID string) (string, error) {
	if err := validate.ID(groupID, "groupId"); err != nil {
		return "", err
	}
	if !c.handle.IsInitialized() {
		return "", nil
	}
	return c.handle.boundary.RouteName(groupID), nil
}

// RouteNames returns all route display names keyed by group id.
func (c *Client) RouteNames() map[string]string {
	if !c.handle.IsInitialized() {
		return map[string]string{}
	}
	entries := wire.SafeParse(c.handle.boundary.AllRouteNamesJSON(), []nameEntry{})
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[e.ID] = e.Name
	}
	return names
}

// SetSectionName renames a detected section. Fires sections on success.
func (c *Client) SetSectionName(sectionID, name string) error {
	if err := validate.ID(sectionID, "sectionId"); err != nil {
		return err
	}
	if err := validate.Name(name, "name"); err != nil {
		return err
	}
	if err := c.mutable("setSectionName"); err != nil {
		return err
	}
	if err := c.handle.boundary.SetSectionName(sectionID, name); err != nil {
		return nativeErr("setSectionName", err)
	}
	c.bus.notify(EventSections)
	return nil
}

// SectionName returns a section's display name, "" when unset.
func (c *Client) SectionName(sectionID string) (string, error) {
	if err := validate.ID(sectionID, "sectionId"); err != nil {
		return "", err
	}
	if !c.handle.IsInitialized() {
		return "", nil
	}
	return c.handle.boundary.SectionName(sectionID), nil
}

// SectionNames returns all section display names keyed by section id.
func (c *Client) SectionNames() map[string]string {
	if !c.handle.IsInitialized() {
		return map[string]string{}
	}
	entries := wire.SafeParse(c.handle.boundary.AllSectionNamesJSON(), []nameEntry{})
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[e.ID] = e.Name
	}
	return names
}

// ---------------------------------------------------------------------------
// Section detection
// ---------------------------------------------------------------------------

// StartSectionDetection begins detection across the full activity set,
// optionally filtered by sport type (""). Detection is the one intentionally
// long-running engine operation: callers must poll PollSectionDetection on a
// timer, and must call CancelSectionDetection if they abandon the run —
// there is no implicit cancellation on caller teardown.
func (c *Client) StartSectionDetection(sportFilter string) bool {
	if !c.handle.IsInitialized() {
		return false
	}
	ok := c.handle.boundary.StartSectionDetection(sportFilter)
	if ok {
		c.detectionActive = true
		c.logger.Info("section detection started", "sport_filter", sportFilter)
	}
	return ok
}

// PollSectionDetection returns the current detection status. The poll that
// observes completion fires the sections notification — exactly once per
// completed run.
func (c *Client) PollSectionDetection() DetectionStatus {
	if !c.handle.IsInitialized() {
		return DetectionIdle
	}
	status := DetectionStatus(c.handle.boundary.PollSectionDetection())
	switch status {
	case DetectionComplete:
		if c.detectionActive {
			c.detectionActive = false
			c.logger.Info("section detection complete")
			c.bus.notify(EventSections)
		}
	case DetectionError:
		if c.detectionActive {
			c.detectionActive = false
			c.logger.Error("section detection failed")
		}
	}
	return status
}

// CancelSectionDetection aborts an in-flight detection run.
func (c *Client) CancelSectionDetection() {
	if !c.handle.IsInitialized() {
		return
	}
	c.handle.boundary.CancelSectionDetection()
	c.detectionActive = false
	c.logger.Info("section detection cancelled")
}

// ---------------------------------------------------------------------------
// Custom section matching
// ---------------------------------------------------------------------------

// MatchCustomSection matches a custom section against the given activities.
// The section crosses the boundary as its serialized derived copy; the
// store remains the system of record.
func (c *Client) MatchCustomSection(sec section.CustomSection, activityIDs []string) []section.Match {
	if !c.handle.IsInitialized() {
		return []section.Match{}
	}
	payload, err := json.Marshal(sec)
	if err != nil {
		return []section.Match{}
	}
	raw := c.handle.boundary.MatchCustomSection(string(payload), activityIDs)
	return wire.SafeParse(raw, []section.Match{})
}

// MatchActivityToCustomSection adapts MatchCustomSection to the coordinator's
// per-activity matcher contract. Returns nil when the activity does not
// traverse the section.
func (c *Client) MatchActivityToCustomSection(sec section.CustomSection, activityID string) (*section.Match, error) {
	if err := validate.ID(activityID, "activityId"); err != nil {
		return nil, err
	}
	matches := c.MatchCustomSection(sec, []string{activityID})
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// ---------------------------------------------------------------------------
// Pub/sub
// ---------------------------------------------------------------------------

// Subscribe registers a callback for an event kind. The returned
// subscription's Unsubscribe must be called when the subscriber detaches.
func (c *Client) Subscribe(e Event, fn Callback) *Subscription {
	return c.bus.subscribe(e, fn)
}

// Notify invokes all callbacks registered for e, synchronously, in
// registration order.
func (c *Client) Notify(e Event) {
	c.bus.notify(e)
}

// TriggerRefresh exposes the notify path for manual invalidation, e.g.
// after returning from a detail screen that mutated state out-of-band.
func (c *Client) TriggerRefresh(e Event) {
	c.bus.notify(e)
}

func (c *Client) mutable(op string) error {
	if !c.handle.IsInitialized() {
		return nativeErr(op, ErrNotInitialized)
	}
	return nil
}
