package syncer

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloq/enginesync/internal/section"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *section.Store {
	t.Helper()
	s, err := section.NewStore(t.TempDir(), discard())
	require.NoError(t, err)
	return s
}

func testSection(id string) section.CustomSection {
	return section.CustomSection{
		ID:   id,
		Name: "Test " + id,
		Polyline: []section.GeoPoint{
			{Latitude: 0, Longitude: 0},
			{Latitude: 0, Longitude: 0.001},
		},
		SourceActivityID: "act-src",
		StartIndex:       0,
		EndIndex:         1,
		SportType:        "Ride",
		DistanceMeters:   111,
		CreatedAt:        section.Now(),
	}
}

// countingMatcher records every (section, activity) pair it is asked about.
type countingMatcher struct {
	mu     sync.Mutex
	calls  []string
	result func(activityID string) (*section.Match, error)
}

func (m *countingMatcher) MatchActivityToCustomSection(sec section.CustomSection, activityID string) (*section.Match, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sec.ID+"/"+activityID)
	m.mu.Unlock()
	if m.result != nil {
		return m.result(activityID)
	}
	return &section.Match{ActivityID: activityID, Direction: "same"}, nil
}

func TestSyncSkipsAlreadyCachedActivities(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Add(testSection("custom_a")))
	require.NoError(t, store.AddMatch("custom_a", section.Match{ActivityID: "act-1", Direction: "same"}))

	matcher := &countingMatcher{}
	coord := New(store, matcher, discard())

	res := coord.Sync([]string{"act-1", "act-2"})
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.SectionsSeen)
	assert.Equal(t, 1, res.MatchesAdded)
	assert.Equal(t, []string{"custom_a/act-2"}, matcher.calls)

	assert.Len(t, store.LoadMatches("custom_a"), 2)

	// A second pass over the same activities finds everything cached.
	res = coord.Sync([]string{"act-1", "act-2"})
	assert.Equal(t, 0, res.MatchesAdded)
	assert.Len(t, matcher.calls, 1)
}

func TestSyncNothingToDo(t *testing.T) {
	store := newStore(t)
	matcher := &countingMatcher{}
	coord := New(store, matcher, discard())

	assert.True(t, coord.Sync(nil).Skipped)

	// Activities but no sections.
	assert.True(t, coord.Sync([]string{"act-1"}).Skipped)
	assert.Empty(t, matcher.calls)
}

func TestSyncContinuesPastMatcherErrors(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Add(testSection("custom_a")))

	matcher := &countingMatcher{result: func(activityID string) (*section.Match, error) {
		if activityID == "act-bad" {
			return nil, errors.New("engine unavailable")
		}
		return &section.Match{ActivityID: activityID, Direction: "same"}, nil
	}}
	coord := New(store, matcher, discard())

	res := coord.Sync([]string{"act-bad", "act-2"})
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.MatchesAdded)

	matches := store.LoadMatches("custom_a")
	require.Len(t, matches, 1)
	assert.Equal(t, "act-2", matches[0].ActivityID)
}

func TestSyncNonMatchesAreNotCached(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Add(testSection("custom_a")))

	matcher := &countingMatcher{result: func(string) (*section.Match, error) {
		return nil, nil
	}}
	coord := New(store, matcher, discard())

	res := coord.Sync([]string{"act-1"})
	assert.Equal(t, 0, res.MatchesAdded)

	assert.Empty(t, store.LoadMatches("custom_a"))

	// Unmatched activities are re-checked on the next pass.
	coord.Sync([]string{"act-1"})
	assert.Len(t, matcher.calls, 2)
}

// recordingStore counts cache writes to pin down the one-save-per-section
// write pattern.
type recordingStore struct {
	sections []section.CustomSection
	matches  map[string][]section.Match
	saves    int
}

func (s *recordingStore) LoadAll() []section.CustomSection      { return s.sections }
func (s *recordingStore) LoadMatches(id string) []section.Match { return s.matches[id] }
func (s *recordingStore) SaveMatches(id string, matches []section.Match) error {
	s.saves++
	s.matches[id] = matches
	return nil
}

func TestSyncWritesEachCacheOnce(t *testing.T) {
	store := &recordingStore{
		sections: []section.CustomSection{testSection("custom_a")},
		matches: map[string][]section.Match{
			"custom_a": {{ActivityID: "act-0", Direction: "same"}},
		},
	}
	coord := New(store, &countingMatcher{}, discard())

	res := coord.Sync([]string{"act-1", "act-2", "act-3"})
	assert.Equal(t, 3, res.MatchesAdded)
	assert.Equal(t, 1, store.saves)

	// The saved cache is the merged list, pre-existing match first.
	require.Len(t, store.matches["custom_a"], 4)
	assert.Equal(t, "act-0", store.matches["custom_a"][0].ActivityID)

	// Nothing new found means nothing written.
	coord.Sync([]string{"act-1", "act-2"})
	assert.Equal(t, 1, store.saves)
}

func TestSyncCollapsesOverlappingPasses(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Add(testSection("custom_a")))

	entered := make(chan struct{})
	release := make(chan struct{})
	matcher := MatcherFunc(func(sec section.CustomSection, activityID string) (*section.Match, error) {
		close(entered)
		<-release
		return nil, nil
	})
	coord := New(store, matcher, discard())

	done := make(chan Result)
	go func() { done <- coord.Sync([]string{"act-1"}) }()
	<-entered

	// While the first pass is inside the matcher, a second pass is refused.
	assert.True(t, coord.Sync([]string{"act-2"}).Skipped)

	close(release)
	res := <-done
	assert.False(t, res.Skipped)
}
