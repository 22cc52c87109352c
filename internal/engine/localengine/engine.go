// Package localengine is a SQLite-backed reference implementation of the
// engine boundary contract. It exists so the module is runnable and testable
// without the production spatial engine: storage, flat-array marshalling and
// the call protocol are faithful, while grouping, detection and matching use
// deliberately simple proximity heuristics. Anything implementing
// engine.Boundary can replace it at composition time.
package localengine

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veloq/enginesync/internal/section"
)

//go:embed schema.sql
var schemaSQL string

var errClosed = errors.New("engine storage not opened")

// Engine implements engine.Boundary on a local SQLite database.
//
// The database uses WAL mode with a single connection: SQLite supports one
// writer at a time, and the detection goroutine shares the connection with
// query-class calls.
type Engine struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	logger    *slog.Logger
	detection *detectionRun
}

// New returns an engine with no open storage. Call Init before use.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Init opens or creates the database at path and applies the schema.
// Reports success. An already-open database at a different path is closed
// and replaced.
func (e *Engine) Init(path string) bool {
	if path == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		e.logger.Error("engine storage open failed", "path", path, "error", err)
		return false
	}
	if err := db.Ping(); err != nil {
		db.Close()
		e.logger.Error("engine storage unreachable", "path", path, "error", err)
		return false
	}

	// Single writer avoids SQLITE_BUSY between the detection goroutine and
	// the caller's loop.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			e.logger.Error("engine pragma failed", "pragma", pragma, "error", err)
			return false
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		e.logger.Error("engine schema failed", "error", err)
		return false
	}

	if e.db != nil {
		e.db.Close()
	}
	e.db = db
	e.path = path
	return true
}

// Close releases the database. Not part of the boundary contract; used by
// tests and process shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	e.path = ""
	return err
}

// Clear removes all engine-side state but keeps the database open.
func (e *Engine) Clear() {
	db := e.database()
	if db == nil {
		return
	}
	tables := []string{
		"activity_points", "time_streams", "activity_metrics",
		"display_names", "route_groups", "detected_sections", "activities",
	}
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			e.logger.Error("engine clear failed", "table", table, "error", err)
			return
		}
	}
}

func (e *Engine) database() *sql.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// AddActivities ingests flattened geometry. Re-adding an existing id
// replaces its points.
func (e *Engine) AddActivities(ids []string, coords []float64, offsets []uint32, sportTypes []string) error {
	db := e.database()
	if db == nil {
		return errClosed
	}
	if len(offsets) != len(ids)+1 {
		return fmt.Errorf("offsets length %d does not match %d activities", len(offsets), len(ids))
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin add activities: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for i, id := range ids {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO activities (id, sport_type, created_at) VALUES (?, ?, ?)",
			id, sportTypes[i], now,
		); err != nil {
			return fmt.Errorf("insert activity %s: %w", id, err)
		}
		if _, err := tx.Exec("DELETE FROM activity_points WHERE activity_id = ?", id); err != nil {
			return fmt.Errorf("reset points for %s: %w", id, err)
		}

		start, end := int(offsets[i]), int(offsets[i+1])
		for p := start; p < end; p++ {
			lat, lng := coords[p*2], coords[p*2+1]
			if _, err := tx.Exec(
				"INSERT INTO activity_points (activity_id, seq, latitude, longitude) VALUES (?, ?, ?, ?)",
				id, p-start, lat, lng,
			); err != nil {
				return fmt.Errorf("insert point for %s: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// RemoveActivities deletes activities and any groups or sections that
// reference them.
func (e *Engine) RemoveActivities(ids []string) error {
	db := e.database()
	if db == nil {
		return errClosed
	}
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove activities: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM activities WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete activity %s: %w", id, err)
		}
	}
	if err := dropDerivedState(tx, removed); err != nil {
		return err
	}
	return tx.Commit()
}

// dropDerivedState removes groups and sections referencing any removed
// activity. Derived state is rebuilt by the next detection run.
func dropDerivedState(tx *sql.Tx, removed map[string]bool) error {
	rows, err := tx.Query("SELECT id, activity_ids FROM route_groups")
	if err != nil {
		return fmt.Errorf("scan groups: %w", err)
	}
	var doomed []string
	for rows.Next() {
		var id, memberJSON string
		if err := rows.Scan(&id, &memberJSON); err != nil {
			rows.Close()
			return fmt.Errorf("scan group row: %w", err)
		}
		var members []string
		_ = json.Unmarshal([]byte(memberJSON), &members)
		for _, m := range members {
			if removed[m] {
				doomed = append(doomed, id)
				break
			}
		}
	}
	rows.Close()

	for _, id := range doomed {
		if _, err := tx.Exec("DELETE FROM detected_sections WHERE group_id = ?", id); err != nil {
			return fmt.Errorf("delete sections of group %s: %w", id, err)
		}
		if _, err := tx.Exec("DELETE FROM route_groups WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete group %s: %w", id, err)
		}
	}
	return nil
}

// CleanupOldActivities removes activities older than retentionDays.
func (e *Engine) CleanupOldActivities(retentionDays uint32) (uint32, error) {
	db := e.database()
	if db == nil {
		return 0, errClosed
	}
	cutoff := time.Now().Unix() - int64(retentionDays)*86400

	rows, err := db.Query("SELECT id FROM activities WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan old activities: %w", err)
	}
	var old []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan old activity id: %w", err)
		}
		old = append(old, id)
	}
	rows.Close()

	if len(old) == 0 {
		return 0, nil
	}
	if err := e.RemoveActivities(old); err != nil {
		return 0, err
	}
	return uint32(len(old)), nil
}

// SetTimeStreams stores per-activity time streams from the flattened batch.
func (e *Engine) SetTimeStreams(ids []string, values []float64, offsets []uint32) error {
	db := e.database()
	if db == nil {
		return errClosed
	}
	if len(offsets) != len(ids)+1 {
		return fmt.Errorf("offsets length %d does not match %d activities", len(offsets), len(ids))
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin set time streams: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.Exec("DELETE FROM time_streams WHERE activity_id = ?", id); err != nil {
			return fmt.Errorf("reset time stream for %s: %w", id, err)
		}
		start, end := int(offsets[i]), int(offsets[i+1])
		for v := start; v < end; v++ {
			if _, err := tx.Exec(
				"INSERT INTO time_streams (activity_id, seq, t) VALUES (?, ?, ?)",
				id, v-start, values[v],
			); err != nil {
				return fmt.Errorf("insert time sample for %s: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

type metricsRecord struct {
	ActivityID     string  `json:"activityId"`
	DistanceMeters float64 `json:"distanceMeters"`
	MovingTime     float64 `json:"movingTime"`
	ElapsedTime    float64 `json:"elapsedTime"`
	ElevationGain  float64 `json:"elevationGain"`
}

// SetActivityMetricsJSON stores metric records supplied as a JSON array.
func (e *Engine) SetActivityMetricsJSON(metricsJSON string) error {
	db := e.database()
	if db == nil {
		return errClosed
	}
	var records []metricsRecord
	if err := json.Unmarshal([]byte(metricsJSON), &records); err != nil {
		return fmt.Errorf("parse metrics payload: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin set metrics: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO activity_metrics
			 (activity_id, distance_meters, moving_time, elapsed_time, elevation_gain)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ActivityID, r.DistanceMeters, r.MovingTime, r.ElapsedTime, r.ElevationGain,
		); err != nil {
			return fmt.Errorf("insert metrics for %s: %w", r.ActivityID, err)
		}
	}
	return tx.Commit()
}

// ActivitiesMissingTimeStreams lists ids with geometry but no time stream.
func (e *Engine) ActivitiesMissingTimeStreams(limit uint32) []string {
	db := e.database()
	if db == nil {
		return nil
	}
	rows, err := db.Query(
		`SELECT id FROM activities a
		 WHERE NOT EXISTS (SELECT 1 FROM time_streams t WHERE t.activity_id = a.id)
		 ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ActivityIDs returns all stored activity ids in ingestion order.
func (e *Engine) ActivityIDs() []string {
	db := e.database()
	if db == nil {
		return nil
	}
	rows, err := db.Query("SELECT id FROM activities ORDER BY created_at, id")
	if err != nil {
		return nil
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ActivityCount returns the number of stored activities.
func (e *Engine) ActivityCount() uint32 {
	return e.count("SELECT COUNT(*) FROM activities")
}

// GroupCount returns the number of route groups.
func (e *Engine) GroupCount() uint32 {
	return e.count("SELECT COUNT(*) FROM route_groups")
}

// SectionCount returns the number of detected sections, optionally filtered
// by sport type.
func (e *Engine) SectionCount(sportType string) uint32 {
	if sportType == "" {
		return e.count("SELECT COUNT(*) FROM detected_sections")
	}
	return e.count("SELECT COUNT(*) FROM detected_sections WHERE sport_type = ?", sportType)
}

func (e *Engine) count(query string, args ...any) uint32 {
	db := e.database()
	if db == nil {
		return 0
	}
	var n uint32
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0
	}
	return n
}

func scanStrings(rows *sql.Rows) []string {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return out
		}
		out = append(out, s)
	}
	return out
}

// GPSTrack returns an activity's track as a flat [lat, lng, ...] array.
func (e *Engine) GPSTrack(activityID string) []float64 {
	db := e.database()
	if db == nil {
		return nil
	}
	rows, err := db.Query(
		"SELECT latitude, longitude FROM activity_points WHERE activity_id = ? ORDER BY seq",
		activityID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var flat []float64
	for rows.Next() {
		var lat, lng float64
		if err := rows.Scan(&lat, &lng); err != nil {
			return flat
		}
		flat = append(flat, lat, lng)
	}
	return flat
}

// SimplifiedGPSTrack decimates a track to at most 100 points.
func (e *Engine) SimplifiedGPSTrack(activityID string) []float64 {
	return decimate(e.GPSTrack(activityID), 100)
}

// decimate keeps every step-th coordinate pair so at most maxPoints remain,
// always including the last point.
func decimate(flat []float64, maxPoints int) []float64 {
	points := len(flat) / 2
	if points <= maxPoints {
		return flat
	}
	step := (points + maxPoints - 1) / maxPoints
	out := make([]float64, 0, maxPoints*2)
	for i := 0; i < points; i += step {
		out = append(out, flat[i*2], flat[i*2+1])
	}
	last := (points - 1) * 2
	if len(out) < 2 || out[len(out)-2] != flat[last] || out[len(out)-1] != flat[last+1] {
		out = append(out, flat[last], flat[last+1])
	}
	return out
}

// ConsensusRoute returns the simplified track of a group's representative.
func (e *Engine) ConsensusRoute(groupID string) []float64 {
	db := e.database()
	if db == nil {
		return nil
	}
	var rep string
	if err := db.QueryRow("SELECT representative_id FROM route_groups WHERE id = ?", groupID).Scan(&rep); err != nil {
		return nil
	}
	return e.SimplifiedGPSTrack(rep)
}

// SectionPolyline returns a detected section's polyline as a flat array.
func (e *Engine) SectionPolyline(sectionID string) []float64 {
	db := e.database()
	if db == nil {
		return nil
	}
	var polylineJSON string
	if err := db.QueryRow("SELECT polyline FROM detected_sections WHERE id = ?", sectionID).Scan(&polylineJSON); err != nil {
		return nil
	}
	var points []section.GeoPoint
	if err := json.Unmarshal([]byte(polylineJSON), &points); err != nil {
		return nil
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.Latitude, p.Longitude)
	}
	return flat
}

// QueryViewport returns ids of activities with at least one point inside
// the box.
func (e *Engine) QueryViewport(minLat, minLng, maxLat, maxLng float64) []string {
	db := e.database()
	if db == nil {
		return nil
	}
	rows, err := db.Query(
		`SELECT DISTINCT activity_id FROM activity_points
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		 ORDER BY activity_id`,
		minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SetRouteName stores a group display name.
func (e *Engine) SetRouteName(groupID, name string) error {
	return e.setName("route", groupID, name)
}

// RouteName returns a group display name, "" when unset.
func (e *Engine) RouteName(groupID string) string {
	return e.name("route", groupID)
}

// AllRouteNamesJSON returns every route name as a JSON array of
// {id, name} records.
func (e *Engine) AllRouteNamesJSON() string {
	return e.allNamesJSON("route")
}

// SetSectionName stores a section display name.
func (e *Engine) SetSectionName(sectionID, name string) error {
	return e.setName("section", sectionID, name)
}

// SectionName returns a section display name, "" when unset.
func (e *Engine) SectionName(sectionID string) string {
	return e.name("section", sectionID)
}

// AllSectionNamesJSON returns every section name as a JSON array of
// {id, name} records.
func (e *Engine) AllSectionNamesJSON() string {
	return e.allNamesJSON("section")
}

func (e *Engine) setName(kind, targetID, name string) error {
	db := e.database()
	if db == nil {
		return errClosed
	}
	if name == "" {
		_, err := db.Exec("DELETE FROM display_names WHERE kind = ? AND target_id = ?", kind, targetID)
		return err
	}
	_, err := db.Exec(
		"INSERT OR REPLACE INTO display_names (kind, target_id, name) VALUES (?, ?, ?)",
		kind, targetID, name)
	return err
}

func (e *Engine) name(kind, targetID string) string {
	db := e.database()
	if db == nil {
		return ""
	}
	var name string
	if err := db.QueryRow(
		"SELECT name FROM display_names WHERE kind = ? AND target_id = ?",
		kind, targetID).Scan(&name); err != nil {
		return ""
	}
	return name
}

// Name records are emitted as an array rather than an id-keyed object: the
// wire adapter rewrites object keys, and ids may legitimately contain
// underscore-lowercase sequences.
func (e *Engine) allNamesJSON(kind string) string {
	db := e.database()
	if db == nil {
		return "[]"
	}
	rows, err := db.Query(
		"SELECT target_id, name FROM display_names WHERE kind = ? ORDER BY target_id", kind)
	if err != nil {
		return "[]"
	}
	defer rows.Close()

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	entries := []entry{}
	for rows.Next() {
		var en entry
		if err := rows.Scan(&en.ID, &en.Name); err != nil {
			break
		}
		entries = append(entries, en)
	}
	return marshalOrEmpty(entries)
}

func marshalOrEmpty(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(buf)
}
