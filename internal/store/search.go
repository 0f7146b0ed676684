package store

import (
	"strings"
	"unicode/utf8"
)

const snippetRadius = 32

// SearchMessages finds messages whose body contains query, case-insensitively.
// An empty sessionID searches every cached session.
func (db *DB) SearchMessages(query string, sessionID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, session_id, msg_id, client_id, body, sent_at, edited_at, seq
		FROM messages
		WHERE body LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if sessionID != "" {
		q += " AND session_id = ?"
		args = append(args, sessionID)
	}
	q += " ORDER BY sent_at DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.SessionID, &r.Message.MsgID,
			&r.Message.ClientID, &r.Message.Body, &r.Message.SentAt,
			&r.Message.EditedAt, &r.Message.Seq,
		); err != nil {
			return nil, err
		}
		r.Snippet = snippet(r.Message.Body, query)
		results = append(results, r)
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet marks the first match of query in body with << >> and trims the
// surrounding text to snippetRadius bytes on each side.
func snippet(body, query string) string {
	i := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if i < 0 || query == "" {
		return body
	}
	end := i + len(query)

	start := max(i-snippetRadius, 0)
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	stop := min(end+snippetRadius, len(body))
	for stop < len(body) && !utf8.RuneStart(body[stop]) {
		stop++
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(body[start:i])
	b.WriteString("<<")
	b.WriteString(body[i:end])
	b.WriteString(">>")
	b.WriteString(body[end:stop])
	if stop < len(body) {
		b.WriteString("...")
	}
	return b.String()
}
