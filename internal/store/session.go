package store

import (
	"database/sql"
	"time"
)

// UpsertSession records sessionID, leaving an existing row untouched apart
// from updated_at.
func (db *DB) UpsertSession(sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sessions (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, now)
	return err
}

// ListSessions returns cached sessions, most recently updated first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT s.id, s.last_snapshot_at, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.LastSnapshotAt, &s.MessageCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns a single session, or nil when it was never cached.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	err := db.QueryRow(`
		SELECT s.id, s.last_snapshot_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?`, sessionID).
		Scan(&s.ID, &s.LastSnapshotAt, &s.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
