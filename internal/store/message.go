package store

import (
	"fmt"
	"strings"
	"time"
)

// ReplaceSessionMessages swaps the cached history of a session for msgs, in
// the given order, and stamps the snapshot time.
func (db *DB) ReplaceSessionMessages(sessionID string, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO sessions (id, last_snapshot_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_snapshot_at = excluded.last_snapshot_at,
			updated_at = excluded.updated_at`,
		sessionID, now, now); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, msg_id, client_id, body, sent_at, edited_at, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, msg_id) DO UPDATE SET
			client_id = excluded.client_id,
			body = excluded.body,
			sent_at = excluded.sent_at,
			edited_at = excluded.edited_at`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range msgs {
		if _, err := stmt.Exec(sessionID, m.MsgID, m.ClientID, m.Body, m.SentAt, m.EditedAt, i+1, now); err != nil {
			return fmt.Errorf("insert message %s: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// UpsertMessage appends m to its session, or updates it in place when the id
// is already cached.
func (db *DB) UpsertMessage(m *Message) error {
	if err := db.UpsertSession(m.SessionID); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (session_id, msg_id, client_id, body, sent_at, edited_at, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?)
		ON CONFLICT(session_id, msg_id) DO UPDATE SET
			client_id = excluded.client_id,
			body = excluded.body,
			sent_at = excluded.sent_at,
			edited_at = excluded.edited_at`,
		m.SessionID, m.MsgID, m.ClientID, m.Body, m.SentAt, m.EditedAt, m.SessionID, now)
	return err
}

// PatchMessage applies the present fields of p. It reports false when the
// message is not cached.
func (db *DB) PatchMessage(sessionID, msgID string, p MessagePatch) (bool, error) {
	var sets []string
	var args []any
	if p.ClientID != nil {
		sets = append(sets, "client_id = ?")
		args = append(args, *p.ClientID)
	}
	if p.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *p.Body)
	}
	if p.SentAt != nil {
		sets = append(sets, "sent_at = ?")
		args = append(args, *p.SentAt)
	}
	if p.EditedAt != nil {
		sets = append(sets, "edited_at = ?")
		args = append(args, *p.EditedAt)
	}
	if len(sets) == 0 {
		return db.hasMessage(sessionID, msgID)
	}

	args = append(args, sessionID, msgID)
	res, err := db.Exec(`UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE session_id = ? AND msg_id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteMessages removes the given ids from a session and returns how many
// were cached.
func (db *DB) DeleteMessages(sessionID string, msgIDs []string) (int64, error) {
	if len(msgIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(msgIDs)+1)
	args = append(args, sessionID)
	for _, id := range msgIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgIDs)), ",")
	res, err := db.Exec(`DELETE FROM messages WHERE session_id = ? AND msg_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMessages returns the latest limit messages of a session in arrival
// order. A non-positive limit returns the whole history.
func (db *DB) ListMessages(sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, session_id, msg_id, client_id, body, sent_at, edited_at, seq FROM (
			SELECT id, session_id, msg_id, client_id, body, sent_at, edited_at, seq
			FROM messages
			WHERE session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MsgID, &m.ClientID, &m.Body, &m.SentAt, &m.EditedAt, &m.Seq); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (db *DB) hasMessage(sessionID, msgID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND msg_id = ?`, sessionID, msgID).Scan(&n)
	return n > 0, err
}
