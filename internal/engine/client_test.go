package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloq/enginesync/internal/section"
	"github.com/veloq/enginesync/internal/validate"
)

// fakeBoundary records calls and serves canned responses. Every method has
// a usable zero behavior so tests only set what they exercise.
type fakeBoundary struct {
	initOK       bool
	initCalls    []string
	addCalls     int
	addErr       error
	lastIDs      []string
	lastCoords   []float64
	lastOffsets  []uint32
	lastSports   []string
	streamValues []float64
	streamOffs   []uint32
	removed      []string
	cleared      bool

	groupsJSON    string
	summariesJSON string
	matchJSON     string
	matchCalls    int

	pollResults []string
	startOK     bool
	cancelled   bool
	nameSet     map[string]string
}

func newFakeBoundary() *fakeBoundary {
	return &fakeBoundary{initOK: true, startOK: true, nameSet: map[string]string{}}
}

func (f *fakeBoundary) Init(path string) bool {
	f.initCalls = append(f.initCalls, path)
	return f.initOK
}

func (f *fakeBoundary) Clear() { f.cleared = true }

func (f *fakeBoundary) AddActivities(ids []string, coords []float64, offsets []uint32, sports []string) error {
	f.addCalls++
	f.lastIDs, f.lastCoords, f.lastOffsets, f.lastSports = ids, coords, offsets, sports
	return f.addErr
}

func (f *fakeBoundary) RemoveActivities(ids []string) error {
	f.removed = append(f.removed, ids...)
	return nil
}

func (f *fakeBoundary) CleanupOldActivities(uint32) (uint32, error) { return 0, nil }

func (f *fakeBoundary) SetTimeStreams(ids []string, values []float64, offsets []uint32) error {
	f.streamValues, f.streamOffs = values, offsets
	return nil
}

func (f *fakeBoundary) SetActivityMetricsJSON(string) error          { return nil }
func (f *fakeBoundary) ActivitiesMissingTimeStreams(uint32) []string { return nil }
func (f *fakeBoundary) ActivityIDs() []string                        { return f.lastIDs }
func (f *fakeBoundary) ActivityCount() uint32                        { return uint32(len(f.lastIDs)) }
func (f *fakeBoundary) GroupCount() uint32                           { return 0 }
func (f *fakeBoundary) SectionCount(string) uint32                   { return 0 }
func (f *fakeBoundary) GroupsJSON() string                           { return f.groupsJSON }
func (f *fakeBoundary) SectionSummariesJSON(string) string           { return f.summariesJSON }
func (f *fakeBoundary) SectionsForActivityJSON(string) string        { return "[]" }
func (f *fakeBoundary) RecentActivitiesJSON(uint32) string           { return "[]" }
func (f *fakeBoundary) SectionByIDJSON(string) (string, bool)        { return "", false }
func (f *fakeBoundary) GroupByIDJSON(string) (string, bool)          { return "", false }
func (f *fakeBoundary) GPSTrack(string) []float64                    { return []float64{1, 2, 3, 4} }
func (f *fakeBoundary) SimplifiedGPSTrack(string) []float64          { return nil }
func (f *fakeBoundary) ConsensusRoute(string) []float64              { return nil }
func (f *fakeBoundary) SectionPolyline(string) []float64             { return nil }
func (f *fakeBoundary) QueryViewport(a, b, c, d float64) []string    { return nil }

func (f *fakeBoundary) SetRouteName(id, name string) error {
	f.nameSet["route:"+id] = name
	return nil
}
func (f *fakeBoundary) RouteName(string) string   { return "" }
func (f *fakeBoundary) AllRouteNamesJSON() string { return "[]" }
func (f *fakeBoundary) SetSectionName(id, name string) error {
	f.nameSet["section:"+id] = name
	return nil
}
func (f *fakeBoundary) SectionName(string) string   { return "" }
func (f *fakeBoundary) AllSectionNamesJSON() string { return "[]" }

func (f *fakeBoundary) StartSectionDetection(string) bool { return f.startOK }

func (f *fakeBoundary) PollSectionDetection() string {
	if len(f.pollResults) == 0 {
		return "idle"
	}
	head := f.pollResults[0]
	if len(f.pollResults) > 1 {
		f.pollResults = f.pollResults[1:]
	}
	return head
}

func (f *fakeBoundary) CancelSectionDetection() { f.cancelled = true }

func (f *fakeBoundary) MatchCustomSection(string, []string) string {
	f.matchCalls++
	return f.matchJSON
}

func newTestClient(t *testing.T) (*Client, *fakeBoundary) {
	t.Helper()
	fb := newFakeBoundary()
	c := NewClient(NewHandle(fb), nil)
	require.True(t, c.Init("engine.db"))
	return c, fb
}

func counter(n *int) Callback {
	return func() { *n++ }
}

func TestInit_IdempotentForSamePath(t *testing.T) {
	fb := newFakeBoundary()
	c := NewClient(NewHandle(fb), nil)

	require.True(t, c.Init("a.db"))
	require.True(t, c.Init("a.db"))
	assert.Equal(t, []string{"a.db"}, fb.initCalls, "same path must not re-init")

	require.True(t, c.Init("b.db"))
	assert.Equal(t, []string{"a.db", "b.db"}, fb.initCalls, "different path replaces")
}

func TestInit_FailureLeavesUninitialized(t *testing.T) {
	fb := newFakeBoundary()
	fb.initOK = false
	c := NewClient(NewHandle(fb), nil)

	assert.False(t, c.Init("a.db"))
	assert.False(t, c.IsInitialized())
}

func TestAddActivities_ValidatesBeforeNativeCall(t *testing.T) {
	c, fb := newTestClient(t)

	err := c.AddActivities([]string{""}, nil, []uint32{0, 0}, []string{"Ride"})
	assert.True(t, validate.IsValidationError(err))
	assert.Zero(t, fb.addCalls, "boundary must not be reached on validation failure")
}

func TestAddActivities_NotifiesAfterSuccess(t *testing.T) {
	c, fb := newTestClient(t)

	var activities, groups int
	c.Subscribe(EventActivities, counter(&activities))
	c.Subscribe(EventGroups, counter(&groups))

	coords, offsets := FlattenTracks([][]section.GeoPoint{
		{{Latitude: 1, Longitude: 2}, {Latitude: 1.1, Longitude: 2.1}},
	})
	require.NoError(t, c.AddActivities([]string{"act-1"}, coords, offsets, []string{"Ride"}))

	assert.Equal(t, 1, activities)
	assert.Equal(t, 1, groups)
	assert.Equal(t, []uint32{0, 2}, fb.lastOffsets)
}

func TestAddActivities_NoNotifyOnNativeFailure(t *testing.T) {
	c, fb := newTestClient(t)
	fb.addErr = errors.New("disk full")

	var fired int
	c.Subscribe(EventActivities, counter(&fired))

	err := c.AddActivities([]string{"act-1"}, []float64{1, 2, 3, 4}, []uint32{0, 2}, []string{"Ride"})
	assert.True(t, IsNativeCallError(err))
	assert.Zero(t, fired)
}

func TestSetTimeStreams_FlattensPerActivityArrays(t *testing.T) {
	c, fb := newTestClient(t)

	err := c.SetTimeStreams([]string{"a", "b"}, [][]float64{{0, 1, 2}, {0, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 0, 5}, fb.streamValues)
	assert.Equal(t, []uint32{0, 3, 5}, fb.streamOffs)
}

func TestMutations_FailBeforeInit(t *testing.T) {
	c := NewClient(NewHandle(newFakeBoundary()), nil)

	err := c.AddActivities([]string{"a"}, nil, []uint32{0, 0}, []string{"Ride"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = c.SetSectionName("sec-1", "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestReads_DegradeBeforeInit(t *testing.T) {
	c := NewClient(NewHandle(newFakeBoundary()), nil)

	assert.Empty(t, c.Groups())
	assert.Zero(t, c.ActivityCount())
	assert.Equal(t, DetectionIdle, c.PollSectionDetection())
}

func TestGroups_NormalizesSnakeCaseWire(t *testing.T) {
	c, fb := newTestClient(t)
	fb.groupsJSON = `[{"group_id":"grp-1","representative_id":"act-1","activity_ids":["act-1","act-2"],"sport_type":"Ride"}]`

	groups := c.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "grp-1", groups[0].GroupID)
	assert.Equal(t, "act-1", groups[0].RepresentativeID)
	assert.Equal(t, []string{"act-1", "act-2"}, groups[0].ActivityIDs)
}

func TestGroups_EmptyArrayOnMalformedWire(t *testing.T) {
	c, fb := newTestClient(t)
	fb.groupsJSON = `{"oops`

	assert.Equal(t, []RouteGroup{}, c.Groups())
}

func TestGPSTrack_ConvertsFlatPairs(t *testing.T) {
	c, _ := newTestClient(t)

	track, err := c.GPSTrack("act-1")
	require.NoError(t, err)
	assert.Equal(t, []section.GeoPoint{
		{Latitude: 1, Longitude: 2},
		{Latitude: 3, Longitude: 4},
	}, track)

	_, err = c.GPSTrack("")
	assert.True(t, validate.IsValidationError(err))
}

func TestSetSectionName_ValidatesAndNotifies(t *testing.T) {
	c, fb := newTestClient(t)

	var sections int
	c.Subscribe(EventSections, counter(&sections))

	require.NoError(t, c.SetSectionName("sec-1", "Climb"))
	assert.Equal(t, "Climb", fb.nameSet["section:sec-1"])
	assert.Equal(t, 1, sections)

	err := c.SetSectionName("sec-1", "bad\x07name")
	assert.True(t, validate.IsValidationError(err))
	assert.Equal(t, 1, sections, "no notify on validation failure")
}

func TestClear_FiresAllInvalidationEvents(t *testing.T) {
	c, fb := newTestClient(t)

	var activities, groups, sections, reset int
	c.Subscribe(EventActivities, counter(&activities))
	c.Subscribe(EventGroups, counter(&groups))
	c.Subscribe(EventSections, counter(&sections))
	c.Subscribe(EventSyncReset, counter(&reset))

	c.Clear()

	assert.True(t, fb.cleared)
	assert.Equal(t, []int{1, 1, 1, 1}, []int{activities, groups, sections, reset})
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	c, _ := newTestClient(t)

	var order []string
	first := c.Subscribe(EventActivities, func() { order = append(order, "first") })
	c.Subscribe(EventActivities, func() { order = append(order, "second") })

	c.Notify(EventActivities)
	assert.Equal(t, []string{"first", "second"}, order)

	first.Unsubscribe()
	first.Unsubscribe() // double unsubscribe is a no-op

	order = nil
	c.TriggerRefresh(EventActivities)
	assert.Equal(t, []string{"second"}, order)
}

func TestDetection_NotifiesSectionsExactlyOnce(t *testing.T) {
	c, fb := newTestClient(t)
	fb.pollResults = []string{"running", "complete", "complete"}

	var sections int
	c.Subscribe(EventSections, counter(&sections))

	require.True(t, c.StartSectionDetection(""))
	assert.Equal(t, DetectionRunning, c.PollSectionDetection())
	assert.Equal(t, DetectionComplete, c.PollSectionDetection())
	assert.Equal(t, DetectionComplete, c.PollSectionDetection())

	assert.Equal(t, 1, sections)
}

func TestDetection_Cancel(t *testing.T) {
	c, fb := newTestClient(t)

	require.True(t, c.StartSectionDetection("Ride"))
	c.CancelSectionDetection()
	assert.True(t, fb.cancelled)

	// A late complete after cancel must not notify.
	var sections int
	c.Subscribe(EventSections, counter(&sections))
	fb.pollResults = []string{"complete"}
	c.PollSectionDetection()
	assert.Zero(t, sections)
}

func TestMatchActivityToCustomSection(t *testing.T) {
	c, fb := newTestClient(t)

	sec := section.CustomSection{ID: "custom_1", SourceActivityID: "act-1"}

	fb.matchJSON = "[]"
	m, err := c.MatchActivityToCustomSection(sec, "act-2")
	require.NoError(t, err)
	assert.Nil(t, m)

	fb.matchJSON = `[{"activity_id":"act-2","start_index":3,"end_index":9,"direction":"same","distance_meters":420}]`
	m, err = c.MatchActivityToCustomSection(sec, "act-2")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "act-2", m.ActivityID)
	assert.Equal(t, 3, m.StartIndex)
	assert.Equal(t, "same", m.Direction)

	_, err = c.MatchActivityToCustomSection(sec, "")
	assert.True(t, validate.IsValidationError(err))
	assert.Equal(t, 2, fb.matchCalls, "validation failure must not reach the boundary")
}

func TestFlattenTracks_OffsetsConvention(t *testing.T) {
	coords, offsets := FlattenTracks([][]section.GeoPoint{
		{{Latitude: 1, Longitude: 2}},
		{},
		{{Latitude: 3, Longitude: 4}, {Latitude: 5, Longitude: 6}},
	})
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, coords)
	assert.Equal(t, []uint32{0, 1, 1, 3}, offsets)
}

func TestPointsFromFlat_DropsTrailingUnpairedValue(t *testing.T) {
	points := PointsFromFlat([]float64{1, 2, 3})
	assert.Equal(t, []section.GeoPoint{{Latitude: 1, Longitude: 2}}, points)
	assert.Empty(t, PointsFromFlat(nil))
}
