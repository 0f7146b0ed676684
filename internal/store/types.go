package store

// Session is a chat room the daemon has cached.
type Session struct {
	ID             string
	LastSnapshotAt int64
	MessageCount   int
}

// Message is a cached chat message. Times are unix milliseconds; EditedAt is
// zero for messages never edited. Seq is the arrival position within the
// session.
type Message struct {
	ID        int64
	SessionID string
	MsgID     string
	ClientID  string
	Body      string
	SentAt    int64
	EditedAt  int64
	Seq       int64
}

// MessagePatch carries the fields of an edit. Nil fields are left unchanged.
type MessagePatch struct {
	ClientID *string
	Body     *string
	SentAt   *int64
	EditedAt *int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
