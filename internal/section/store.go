package section

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const sectionsFile = "sections.json"

// ErrNotFound is returned by write operations that target a missing section.
var ErrNotFound = errors.New("section not found")

// Update carries the mutable fields of a section. Name is the only field
// that may change after creation.
type Update struct {
	Name *string
}

// Store persists custom sections as plain JSON files under a single
// directory: one array file for all section definitions, and one array file
// per section (named by a sanitized section id) for that section's matches.
//
// Failure semantics are asymmetric. Reads never fail: any I/O or parse error
// degrades to an empty value, since section data is supplementary and a
// transient failure must not break a render. Writes propagate errors, since
// silently dropping a user's section is worse than one visible failure.
//
// Writes go through a temp-file-then-rename so a crash mid-write cannot
// truncate a file. There is no cross-process locking: two overlapping
// writers to the same file race and the later write wins.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the storage directory if needed and returns a store
// rooted there.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create section store dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// LoadAll returns every stored section. Missing or unreadable files yield an
// empty slice, never an error.
func (s *Store) LoadAll() []CustomSection {
	var sections []CustomSection
	if !s.readJSON(s.indexPath(), &sections) {
		return []CustomSection{}
	}
	if sections == nil {
		sections = []CustomSection{}
	}
	return sections
}

// SaveAll replaces the full section index.
func (s *Store) SaveAll(sections []CustomSection) error {
	if sections == nil {
		sections = []CustomSection{}
	}
	return s.writeJSON(s.indexPath(), sections)
}

// Add appends a section to the index.
func (s *Store) Add(sec CustomSection) error {
	sections := s.LoadAll()
	sections = append(sections, sec)
	return s.SaveAll(sections)
}

// Update applies the given partial update. Returns ErrNotFound if no section
// has the given id.
func (s *Store) Update(id string, upd Update) error {
	sections := s.LoadAll()
	for i := range sections {
		if sections[i].ID != id {
			continue
		}
		if upd.Name != nil {
			sections[i].Name = *upd.Name
		}
		return s.SaveAll(sections)
	}
	return fmt.Errorf("update section %q: %w", id, ErrNotFound)
}

// Delete removes a section from the index and best-effort deletes its match
// cache. Errors during cache cleanup are swallowed: an orphaned cache file
// is harmless and unreachable once the section is gone.
func (s *Store) Delete(id string) error {
	sections := s.LoadAll()
	kept := sections[:0]
	for _, sec := range sections {
		if sec.ID != id {
			kept = append(kept, sec)
		}
	}
	if err := s.SaveAll(kept); err != nil {
		return err
	}

	if err := os.Remove(s.matchesPath(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("match cache cleanup failed", "section_id", id, "error", err)
	}
	return nil
}

// GetByID returns the section with the given id.
func (s *Store) GetByID(id string) (CustomSection, bool) {
	for _, sec := range s.LoadAll() {
		if sec.ID == id {
			return sec, true
		}
	}
	return CustomSection{}, false
}

// LoadMatches returns the cached matches for a section, empty on any failure.
func (s *Store) LoadMatches(id string) []Match {
	var matches []Match
	if !s.readJSON(s.matchesPath(id), &matches) {
		return []Match{}
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches
}

// SaveMatches replaces a section's match cache.
func (s *Store) SaveMatches(id string, matches []Match) error {
	if matches == nil {
		matches = []Match{}
	}
	return s.writeJSON(s.matchesPath(id), matches)
}

// AddMatch inserts a match unless one already exists for the same activity.
// Idempotent: a duplicate insert is a no-op, not an error.
func (s *Store) AddMatch(id string, m Match) error {
	matches := s.LoadMatches(id)
	for _, existing := range matches {
		if existing.ActivityID == m.ActivityID {
			return nil
		}
	}
	return s.SaveMatches(id, append(matches, m))
}

// RemoveMatch deletes the match for the given activity, if present.
func (s *Store) RemoveMatch(id, activityID string) error {
	matches := s.LoadMatches(id)
	kept := matches[:0]
	for _, m := range matches {
		if m.ActivityID != activityID {
			kept = append(kept, m)
		}
	}
	return s.SaveMatches(id, kept)
}

// LoadAllWithMatches returns every section paired with its match cache.
func (s *Store) LoadAllWithMatches() []WithMatches {
	sections := s.LoadAll()
	out := make([]WithMatches, 0, len(sections))
	for _, sec := range sections {
		out = append(out, WithMatches{Section: sec, Matches: s.LoadMatches(sec.ID)})
	}
	return out
}

// GetByIDWithMatches returns one section paired with its match cache.
func (s *Store) GetByIDWithMatches(id string) (WithMatches, bool) {
	sec, ok := s.GetByID(id)
	if !ok {
		return WithMatches{}, false
	}
	return WithMatches{Section: sec, Matches: s.LoadMatches(id)}, true
}

// GenerateUniqueName probes "Custom Section N" for increasing N until a name
// unused by any stored section is found.
func (s *Store) GenerateUniqueName() string {
	used := make(map[string]bool)
	for _, sec := range s.LoadAll() {
		used[sec.Name] = true
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("Custom Section %d", n)
		if !used[name] {
			return name
		}
	}
}

// ClearAll removes the index and every match cache. Used on full reset,
// e.g. an account switch.
func (s *Store) ClearAll() error {
	if err := os.Remove(s.indexPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear section index: %w", err)
	}
	caches, err := filepath.Glob(filepath.Join(s.dir, "matches_*.json"))
	if err != nil {
		return fmt.Errorf("list match caches: %w", err)
	}
	for _, path := range caches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear match cache %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, sectionsFile)
}

func (s *Store) matchesPath(id string) string {
	return filepath.Join(s.dir, "matches_"+sanitizeID(id)+".json")
}

// readJSON reports whether the file was read and decoded. Any failure other
// than absence is logged at debug level; callers degrade to a default.
func (s *Store) readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("section store read failed", "path", path, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Debug("section store parse failed", "path", path, "error", err)
		return false
	}
	return true
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// sanitizeID maps a section id to a filesystem-safe file name fragment.
// Anything outside [A-Za-z0-9_-] becomes an underscore.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
