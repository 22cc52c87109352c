package localengine

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/veloq/enginesync/internal/section"
)

// Endpoint proximity within which two activities of the same sport are
// considered the same route.
const groupProximityMeters = 200.0

// detectionRun is one background detection pass. status moves
// running -> complete|error; cancellation closes cancel and the worker exits
// at its next checkpoint.
type detectionRun struct {
	status atomic.Value // string
	cancel chan struct{}
	done   chan struct{}
}

// StartSectionDetection launches a detection pass over stored activities,
// optionally restricted to one sport type. Reports false if the engine is
// uninitialized or a pass is still running; an unconsumed terminal result is
// discarded and replaced.
func (e *Engine) StartSectionDetection(sportFilter string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return false
	}
	if e.detection != nil && e.detection.status.Load().(string) == "running" {
		return false
	}

	run := &detectionRun{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	run.status.Store("running")
	e.detection = run

	go func() {
		defer close(run.done)
		if err := e.detect(run, sportFilter); err != nil {
			e.logger.Error("section detection failed", "error", err)
			run.status.Store("error")
			return
		}
		run.status.Store("complete")
	}()
	return true
}

// PollSectionDetection reports the current detection state. A terminal
// status is consumed: the poll that observes "complete" or "error" resets
// the engine to "idle".
func (e *Engine) PollSectionDetection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detection == nil {
		return "idle"
	}
	status := e.detection.status.Load().(string)
	if status == "complete" || status == "error" {
		e.detection = nil
	}
	return status
}

// CancelSectionDetection stops an in-flight pass and discards its result.
// Waits for the worker to exit so no write lands after cancellation.
func (e *Engine) CancelSectionDetection() {
	e.mu.Lock()
	run := e.detection
	e.detection = nil
	e.mu.Unlock()
	if run == nil {
		return
	}
	close(run.cancel)
	<-run.done
}

func cancelled(run *detectionRun) bool {
	select {
	case <-run.cancel:
		return true
	default:
		return false
	}
}

type endpoint struct {
	id        string
	sportType string
	start     section.GeoPoint
	end       section.GeoPoint
}

// detect rebuilds route groups and detected sections. Activities of the same
// sport whose start and end points both lie within groupProximityMeters of a
// group representative's join that group; groups with at least two members
// yield a section along the representative's simplified track.
func (e *Engine) detect(run *detectionRun, sportFilter string) error {
	endpoints, err := e.loadEndpoints(sportFilter)
	if err != nil {
		return err
	}

	type group struct {
		rep     endpoint
		members []string
	}
	var groups []*group
	for _, ep := range endpoints {
		if cancelled(run) {
			return nil
		}
		placed := false
		for _, g := range groups {
			if g.rep.sportType != ep.sportType {
				continue
			}
			if section.Haversine(g.rep.start, ep.start) <= groupProximityMeters &&
				section.Haversine(g.rep.end, ep.end) <= groupProximityMeters {
				g.members = append(g.members, ep.id)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{rep: ep, members: []string{ep.id}})
		}
	}
	if cancelled(run) {
		return nil
	}

	// Geometry reads must finish before the write transaction opens: the
	// pool has a single connection, so a query issued mid-transaction
	// would wait on it forever.
	type seed struct {
		groupID    string
		sportType  string
		repID      string
		memberJSON string
		points     []section.GeoPoint
	}
	seeds := make([]seed, 0, len(groups))
	for _, g := range groups {
		s := seed{
			groupID:    "group_" + g.rep.id,
			sportType:  g.rep.sportType,
			repID:      g.rep.id,
			memberJSON: marshalOrEmpty(g.members),
		}
		if len(g.members) >= 2 {
			s.points = pointsOf(e.SimplifiedGPSTrack(g.rep.id))
		}
		seeds = append(seeds, s)
	}
	if cancelled(run) {
		return nil
	}

	db := e.database()
	if db == nil {
		return errClosed
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin detection write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM detected_sections"); err != nil {
		return fmt.Errorf("reset sections: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM route_groups"); err != nil {
		return fmt.Errorf("reset groups: %w", err)
	}

	for _, s := range seeds {
		if _, err := tx.Exec(
			"INSERT INTO route_groups (id, sport_type, representative_id, activity_ids) VALUES (?, ?, ?, ?)",
			s.groupID, s.sportType, s.repID, s.memberJSON,
		); err != nil {
			return fmt.Errorf("insert group %s: %w", s.groupID, err)
		}
		if len(s.points) < 2 {
			continue
		}
		polyline, err := json.Marshal(s.points)
		if err != nil {
			return fmt.Errorf("encode polyline for %s: %w", s.groupID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO detected_sections
			 (id, group_id, sport_type, distance_meters, activity_ids, polyline)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			"section_"+s.repID, s.groupID, s.sportType,
			section.TrackDistance(s.points), s.memberJSON, string(polyline),
		); err != nil {
			return fmt.Errorf("insert section for %s: %w", s.groupID, err)
		}
	}
	return tx.Commit()
}

func (e *Engine) loadEndpoints(sportFilter string) ([]endpoint, error) {
	db := e.database()
	if db == nil {
		return nil, errClosed
	}
	query := "SELECT id, sport_type FROM activities"
	args := []any{}
	if sportFilter != "" {
		query += " WHERE sport_type = ?"
		args = append(args, sportFilter)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}
	type idSport struct{ id, sport string }
	var metas []idSport
	for rows.Next() {
		var m idSport
		if err := rows.Scan(&m.id, &m.sport); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		metas = append(metas, m)
	}
	rows.Close()

	endpoints := make([]endpoint, 0, len(metas))
	for _, m := range metas {
		flat := e.GPSTrack(m.id)
		if len(flat) < 4 {
			continue
		}
		endpoints = append(endpoints, endpoint{
			id:        m.id,
			sportType: m.sport,
			start:     section.GeoPoint{Latitude: flat[0], Longitude: flat[1]},
			end:       section.GeoPoint{Latitude: flat[len(flat)-2], Longitude: flat[len(flat)-1]},
		})
	}
	return endpoints, nil
}

func pointsOf(flat []float64) []section.GeoPoint {
	points := make([]section.GeoPoint, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		points = append(points, section.GeoPoint{Latitude: flat[i], Longitude: flat[i+1]})
	}
	return points
}
