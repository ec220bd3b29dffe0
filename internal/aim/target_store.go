package aim

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists tracking reports and diagnostic measurements for
// one pipeline session. It implements TargetStore.
type SQLStore struct {
	db        *sql.DB
	sessionID string
}

// NewSQLStore registers a new session row and returns a store bound to
// it.
func NewSQLStore(db *sql.DB, targetFrame string, startedAt time.Time) (*SQLStore, error) {
	sessionID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO aim_sessions (session_id, started_unix_nanos, target_frame)
		VALUES (?, ?, ?)
	`, sessionID, startedAt.UnixNano(), targetFrame)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &SQLStore{db: db, sessionID: sessionID}, nil
}

// SessionID returns the session this store writes under.
func (s *SQLStore) SessionID() string { return s.sessionID }

// PersistReport upserts the target row and, for tracking reports,
// appends a full-state observation. Non-tracking reports only touch
// the target row when one exists.
func (s *SQLStore) PersistReport(r TrackingReport) error {
	if !r.Tracking {
		return nil
	}

	nanos := r.Stamp.UnixNano()
	// ON CONFLICT DO UPDATE rather than INSERT OR REPLACE: replacing
	// would cascade-delete the observation rows.
	_, err := s.db.Exec(`
		INSERT INTO aim_targets (
			session_id, tracked_id, armors_num,
			first_unix_nanos, last_unix_nanos, report_count
		) VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(session_id, tracked_id) DO UPDATE SET
			armors_num = excluded.armors_num,
			last_unix_nanos = excluded.last_unix_nanos,
			report_count = report_count + 1
	`, s.sessionID, r.ID, r.ArmorsNum, nanos, nanos)
	if err != nil {
		return fmt.Errorf("upsert target %s: %w", r.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO aim_target_obs (
			session_id, tracked_id, ts_unix_nanos, world_frame,
			x, y, z, vx, vy, vz, yaw, v_yaw, radius_1, radius_2, dz
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.sessionID, r.ID, nanos, r.Frame,
		r.Position.X, r.Position.Y, r.Position.Z,
		r.Velocity.X, r.Velocity.Y, r.Velocity.Z,
		r.Yaw, r.VYaw, r.Radius1, r.Radius2, r.DZ)
	if err != nil {
		return fmt.Errorf("insert observation for target %s: %w", r.ID, err)
	}
	return nil
}

// PersistMeasurement appends one diagnostic measurement row.
func (s *SQLStore) PersistMeasurement(stamp time.Time, m Measurement) error {
	_, err := s.db.Exec(`
		INSERT INTO aim_measurements (session_id, ts_unix_nanos, x, y, z, yaw)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.sessionID, stamp.UnixNano(), m.X, m.Y, m.Z, m.Yaw)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

// TargetObservation is one persisted full-state row, read back for
// diagnostics and charting.
type TargetObservation struct {
	TrackedID   string
	TSUnixNanos int64
	X, Y, Z     float64
	Yaw, VYaw   float64
	Radius1     float64
	Radius2     float64
	DZ          float64
}

// RecentObservations returns up to limit observations for the session,
// newest first.
func (s *SQLStore) RecentObservations(limit int) ([]TargetObservation, error) {
	rows, err := s.db.Query(`
		SELECT tracked_id, ts_unix_nanos, x, y, z, yaw, v_yaw, radius_1, radius_2, dz
		FROM aim_target_obs
		WHERE session_id = ?
		ORDER BY ts_unix_nanos DESC
		LIMIT ?
	`, s.sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []TargetObservation
	for rows.Next() {
		var o TargetObservation
		if err := rows.Scan(&o.TrackedID, &o.TSUnixNanos,
			&o.X, &o.Y, &o.Z, &o.Yaw, &o.VYaw,
			&o.Radius1, &o.Radius2, &o.DZ); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
