package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the chat core.
const (
	KindFrameReceived  = "frame.received"
	KindSnapshot       = "chat.snapshot"
	KindMessageNew     = "chat.message_new"
	KindMessageEdited  = "chat.message_edited"
	KindMessageDeleted = "chat.message_deleted"
	KindStateChanged   = "connection.state_changed"
	KindTimeline       = "timeline.changed"
	KindCacheUpdated   = "cache.updated"
)
