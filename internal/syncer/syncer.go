// Package syncer keeps custom-section match caches current as new activities
// arrive. It is deliberately forgiving: a sync pass skips work it cannot do
// and logs failures instead of surfacing them, because it runs behind
// ingestion paths that must never fail on account of a cache refresh.
package syncer

import (
	"log/slog"
	"sync/atomic"

	"github.com/veloq/enginesync/internal/section"
)

// Matcher matches one activity against one custom section. Nil match means
// the activity does not traverse the section.
type Matcher interface {
	MatchActivityToCustomSection(sec section.CustomSection, activityID string) (*section.Match, error)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(sec section.CustomSection, activityID string) (*section.Match, error)

func (f MatcherFunc) MatchActivityToCustomSection(sec section.CustomSection, activityID string) (*section.Match, error) {
	return f(sec, activityID)
}

// Store is the slice of the section store the coordinator needs. Reads
// degrade to empty rather than failing, matching the store's contract.
type Store interface {
	LoadAll() []section.CustomSection
	LoadMatches(sectionID string) []section.Match
	SaveMatches(sectionID string, matches []section.Match) error
}

// Result summarizes one sync pass.
type Result struct {
	// Skipped is true when the pass did not run: another pass was in
	// flight, or there was nothing to do.
	Skipped      bool `json:"skipped"`
	SectionsSeen int  `json:"sectionsSeen"`
	MatchesAdded int  `json:"matchesAdded"`
}

// Coordinator runs match synchronization passes. One coordinator serves the
// whole process; overlapping passes are collapsed to the first.
type Coordinator struct {
	store   Store
	matcher Matcher
	logger  *slog.Logger
	busy    atomic.Bool
}

// New returns a coordinator over the given store and matcher.
func New(store Store, matcher Matcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, matcher: matcher, logger: logger}
}

// Sync matches the given activities against every stored custom section and
// caches new matches. Activities already present in a section's match cache
// are skipped for that section. Sections are processed sequentially and a
// section's cache is written only when the pass added matches to it.
//
// Sync never fails: per-section and per-activity errors are logged and the
// pass moves on.
func (c *Coordinator) Sync(newActivityIDs []string) Result {
	if len(newActivityIDs) == 0 {
		return Result{Skipped: true}
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug("section sync already running, skipping")
		return Result{Skipped: true}
	}
	defer c.busy.Store(false)

	sections := c.store.LoadAll()
	if len(sections) == 0 {
		return Result{Skipped: true}
	}

	result := Result{SectionsSeen: len(sections)}
	for _, sec := range sections {
		result.MatchesAdded += c.syncSection(sec, newActivityIDs)
	}
	if result.MatchesAdded > 0 {
		c.logger.Info("section sync complete",
			"sections", result.SectionsSeen,
			"activities", len(newActivityIDs),
			"matches_added", result.MatchesAdded)
	}
	return result
}

// syncSection matches the unseen activities against one section and returns
// the number of matches added to its cache.
func (c *Coordinator) syncSection(sec section.CustomSection, activityIDs []string) int {
	cached := c.store.LoadMatches(sec.ID)
	seen := make(map[string]bool, len(cached))
	for _, m := range cached {
		seen[m.ActivityID] = true
	}

	var found []section.Match
	for _, activityID := range activityIDs {
		if seen[activityID] {
			continue
		}
		match, err := c.matcher.MatchActivityToCustomSection(sec, activityID)
		if err != nil {
			c.logger.Error("section sync match failed",
				"section_id", sec.ID, "activity_id", activityID, "error", err)
			continue
		}
		if match == nil {
			continue
		}
		found = append(found, *match)
	}
	if len(found) == 0 {
		return 0
	}

	// One write per section: the merged cache lands in a single save.
	if err := c.store.SaveMatches(sec.ID, append(cached, found...)); err != nil {
		c.logger.Error("section sync could not cache matches",
			"section_id", sec.ID, "error", err)
		return 0
	}
	return len(found)
}
