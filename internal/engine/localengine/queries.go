package localengine

import (
	"database/sql"
	"encoding/json"
)

// JSON reads are emitted with snake_case keys, matching the native engine's
// serialization. The client normalizes them through the wire adapter, so the
// local engine doubles as a live exercise of that path.
//
// Every read here scans its row cursor to completion and closes it before
// issuing the follow-up bounds/name queries: the pool has a single
// connection, and a nested query under an open cursor would starve it.

type groupRecord struct {
	GroupID          string      `json:"group_id"`
	RepresentativeID string      `json:"representative_id"`
	ActivityIDs      []string    `json:"activity_ids"`
	SportType        string      `json:"sport_type"`
	Bounds           *boundsJSON `json:"bounds,omitempty"`
	CustomName       string      `json:"custom_name,omitempty"`
}

type boundsJSON struct {
	NeLat float64 `json:"ne_lat"`
	NeLng float64 `json:"ne_lng"`
	SwLat float64 `json:"sw_lat"`
	SwLng float64 `json:"sw_lng"`
}

type sectionRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	GroupID        string   `json:"group_id,omitempty"`
	SportType      string   `json:"sport_type"`
	DistanceMeters float64  `json:"distance_meters"`
	ActivityCount  int      `json:"activity_count"`
	ActivityIDs    []string `json:"activity_ids,omitempty"`
}

type activityRecord struct {
	ID             string  `json:"id"`
	SportType      string  `json:"sport_type"`
	DistanceMeters float64 `json:"distance_meters"`
	MovingTime     float64 `json:"moving_time"`
	ElapsedTime    float64 `json:"elapsed_time"`
	ElevationGain  float64 `json:"elevation_gain"`
	CreatedAt      int64   `json:"created_at"`
}

// GroupsJSON returns all route groups as a JSON array.
func (e *Engine) GroupsJSON() string {
	db := e.database()
	if db == nil {
		return "[]"
	}
	rows, err := db.Query(
		"SELECT id, sport_type, representative_id, activity_ids FROM route_groups ORDER BY id")
	if err != nil {
		return "[]"
	}
	groups := scanGroups(rows)
	rows.Close()

	for i := range groups {
		e.enrichGroup(&groups[i])
	}
	return marshalOrEmpty(groups)
}

func scanGroups(rows *sql.Rows) []groupRecord {
	groups := []groupRecord{}
	for rows.Next() {
		var g groupRecord
		var memberJSON string
		if err := rows.Scan(&g.GroupID, &g.SportType, &g.RepresentativeID, &memberJSON); err != nil {
			break
		}
		_ = json.Unmarshal([]byte(memberJSON), &g.ActivityIDs)
		groups = append(groups, g)
	}
	return groups
}

func (e *Engine) enrichGroup(g *groupRecord) {
	g.Bounds = e.groupBounds(g.RepresentativeID)
	g.CustomName = e.name("route", g.GroupID)
}

func (e *Engine) groupBounds(representativeID string) *boundsJSON {
	db := e.database()
	if db == nil {
		return nil
	}
	var b boundsJSON
	err := db.QueryRow(
		`SELECT MAX(latitude), MAX(longitude), MIN(latitude), MIN(longitude)
		 FROM activity_points WHERE activity_id = ?`,
		representativeID).Scan(&b.NeLat, &b.NeLng, &b.SwLat, &b.SwLng)
	if err != nil {
		return nil
	}
	return &b
}

// SectionSummariesJSON returns detected sections without geometry,
// optionally filtered by sport type.
func (e *Engine) SectionSummariesJSON(sportType string) string {
	db := e.database()
	if db == nil {
		return "[]"
	}
	query := `SELECT id, group_id, sport_type, distance_meters, activity_ids
	          FROM detected_sections`
	args := []any{}
	if sportType != "" {
		query += " WHERE sport_type = ?"
		args = append(args, sportType)
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return "[]"
	}
	sections := scanSections(rows)
	rows.Close()

	for i := range sections {
		sections[i].Name = e.name("section", sections[i].ID)
		sections[i].ActivityIDs = nil
	}
	return marshalOrEmpty(sections)
}

// SectionsForActivityJSON returns detected sections containing the activity.
func (e *Engine) SectionsForActivityJSON(activityID string) string {
	db := e.database()
	if db == nil {
		return "[]"
	}
	rows, err := db.Query(
		`SELECT id, group_id, sport_type, distance_meters, activity_ids
		 FROM detected_sections ORDER BY id`)
	if err != nil {
		return "[]"
	}
	all := scanSections(rows)
	rows.Close()

	matching := []sectionRecord{}
	for _, s := range all {
		for _, id := range s.ActivityIDs {
			if id == activityID {
				s.Name = e.name("section", s.ID)
				s.ActivityIDs = nil
				matching = append(matching, s)
				break
			}
		}
	}
	return marshalOrEmpty(matching)
}

// scanSections drains a section cursor, keeping member ids for the caller to
// filter or strip.
func scanSections(rows *sql.Rows) []sectionRecord {
	sections := []sectionRecord{}
	for rows.Next() {
		var s sectionRecord
		var memberJSON string
		if err := rows.Scan(&s.ID, &s.GroupID, &s.SportType, &s.DistanceMeters, &memberJSON); err != nil {
			break
		}
		_ = json.Unmarshal([]byte(memberJSON), &s.ActivityIDs)
		s.ActivityCount = len(s.ActivityIDs)
		sections = append(sections, s)
	}
	return sections
}

// RecentActivitiesJSON returns up to limit activities, newest first, with
// their metric fields.
func (e *Engine) RecentActivitiesJSON(limit uint32) string {
	db := e.database()
	if db == nil {
		return "[]"
	}
	rows, err := db.Query(
		`SELECT a.id, a.sport_type, a.created_at,
		        COALESCE(m.distance_meters, 0), COALESCE(m.moving_time, 0),
		        COALESCE(m.elapsed_time, 0), COALESCE(m.elevation_gain, 0)
		 FROM activities a
		 LEFT JOIN activity_metrics m ON m.activity_id = a.id
		 ORDER BY a.created_at DESC, a.id DESC LIMIT ?`, limit)
	if err != nil {
		return "[]"
	}
	defer rows.Close()

	activities := []activityRecord{}
	for rows.Next() {
		var a activityRecord
		if err := rows.Scan(&a.ID, &a.SportType, &a.CreatedAt,
			&a.DistanceMeters, &a.MovingTime, &a.ElapsedTime, &a.ElevationGain); err != nil {
			break
		}
		activities = append(activities, a)
	}
	return marshalOrEmpty(activities)
}

type sectionDetailRecord struct {
	sectionRecord
	PolylinePoints json.RawMessage `json:"polyline"`
}

// SectionByIDJSON returns the full record of one detected section. The
// boolean reports presence.
func (e *Engine) SectionByIDJSON(sectionID string) (string, bool) {
	db := e.database()
	if db == nil {
		return "", false
	}
	var d sectionDetailRecord
	var memberJSON, polylineJSON string
	err := db.QueryRow(
		`SELECT id, group_id, sport_type, distance_meters, activity_ids, polyline
		 FROM detected_sections WHERE id = ?`, sectionID).
		Scan(&d.ID, &d.GroupID, &d.SportType, &d.DistanceMeters, &memberJSON, &polylineJSON)
	if err != nil {
		return "", false
	}
	_ = json.Unmarshal([]byte(memberJSON), &d.ActivityIDs)
	d.ActivityCount = len(d.ActivityIDs)
	d.Name = e.name("section", d.ID)
	d.PolylinePoints = json.RawMessage(polylineJSON)

	buf, err := json.Marshal(d)
	if err != nil {
		return "", false
	}
	return string(buf), true
}

// GroupByIDJSON returns one route group. The boolean reports presence.
func (e *Engine) GroupByIDJSON(groupID string) (string, bool) {
	db := e.database()
	if db == nil {
		return "", false
	}
	rows, err := db.Query(
		"SELECT id, sport_type, representative_id, activity_ids FROM route_groups WHERE id = ?",
		groupID)
	if err != nil {
		return "", false
	}
	groups := scanGroups(rows)
	rows.Close()
	if len(groups) == 0 {
		return "", false
	}

	e.enrichGroup(&groups[0])
	buf, err := json.Marshal(groups[0])
	if err != nil {
		return "", false
	}
	return string(buf), true
}
