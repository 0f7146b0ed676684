// Package timeline holds the ordered message list of one chat session and
// projects it into render rows with synthetic date headers.
package timeline

import (
	"sync"
	"time"

	"github.com/fitlive/livechat/internal/protocol"
)

// RowKind distinguishes header rows from message rows.
type RowKind int

const (
	RowHeader RowKind = iota
	RowMessage
)

// Row is one rendered line: a date header or a message.
type Row struct {
	Kind    RowKind
	Day     time.Time // midnight in the timeline's location; set on both kinds
	Message protocol.Message
}

// Timeline is the sole mutator of a session's messages. Display order is
// arrival order; entries are never re-sorted.
//
// Headers are computed in full only by ReplaceAll. Append adds one when the
// day changes, and RemoveMany leaves headers in place even when every message
// of that day is gone.
type Timeline struct {
	loc *time.Location

	mu   sync.RWMutex
	rows []Row
}

// New creates an empty timeline bucketing days in loc (time.Local when nil).
func New(loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.Local
	}
	return &Timeline{loc: loc}
}

// ReplaceAll discards the current contents and rebuilds rows from msgs.
func (t *Timeline) ReplaceAll(msgs []protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make([]Row, 0, len(msgs)*2)
	at := make(map[protocol.MessageID]int, len(msgs))
	var last time.Time
	for _, m := range msgs {
		if i, ok := at[m.ID]; ok {
			t.rows[i].Message = m
			continue
		}
		day := t.day(m.SentAt)
		if len(t.rows) == 0 || !last.Equal(day) {
			t.rows = append(t.rows, Row{Kind: RowHeader, Day: day})
		}
		at[m.ID] = len(t.rows)
		t.rows = append(t.rows, Row{Kind: RowMessage, Day: day, Message: m})
		last = day
	}
}

// Append adds msg at the end, preceded by a header when its day differs from
// the last message's. A message whose id is already present replaces the
// existing entry in place.
func (t *Timeline) Append(msg protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(msg)
}

func (t *Timeline) appendLocked(msg protocol.Message) {
	if i := t.indexLocked(msg.ID); i >= 0 {
		t.rows[i].Message = msg
		return
	}
	day := t.day(msg.SentAt)
	if last, ok := t.lastMessageLocked(); !ok || !last.Day.Equal(day) {
		t.rows = append(t.rows, Row{Kind: RowHeader, Day: day})
	}
	t.rows = append(t.rows, Row{Kind: RowMessage, Day: day, Message: msg})
}

// Merge applies patch to the message with id. It reports false when the id is
// unknown, leaving the timeline untouched.
func (t *Timeline) Merge(id protocol.MessageID, patch protocol.Patch) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	patch.ApplyTo(&t.rows[i].Message)
	return true
}

// RemoveMany drops every message whose id is in ids and returns how many were
// removed. Unknown ids are ignored.
func (t *Timeline) RemoveMany(ids []protocol.MessageID) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[protocol.MessageID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.rows[:0]
	removed := 0
	for _, r := range t.rows {
		if r.Kind == RowMessage {
			if _, ok := drop[r.Message.ID]; ok {
				removed++
				continue
			}
		}
		kept = append(kept, r)
	}
	clear(t.rows[len(kept):])
	t.rows = kept
	return removed
}

// Apply routes a decoded inbound event to the matching mutation and reports
// whether the timeline changed.
func (t *Timeline) Apply(evt protocol.Event) bool {
	switch e := evt.(type) {
	case protocol.OldMessages:
		t.ReplaceAll(e.Messages)
		return true
	case protocol.NewMessage:
		t.Append(e.Message)
		return true
	case protocol.EditMessage:
		return t.Merge(e.ID, e.Patch)
	case protocol.DeleteMessage:
		return t.RemoveMany(e.IDs) > 0
	default:
		return false
	}
}

// Rows returns a copy of the render sequence.
func (t *Timeline) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Messages returns the messages in display order, without headers.
func (t *Timeline) Messages() []protocol.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]protocol.Message, 0, len(t.rows))
	for _, r := range t.rows {
		if r.Kind == RowMessage {
			out = append(out, r.Message)
		}
	}
	return out
}

// Get returns the message with id.
func (t *Timeline) Get(id protocol.MessageID) (protocol.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.rows[i].Message, true
	}
	return protocol.Message{}, false
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, r := range t.rows {
		if r.Kind == RowMessage {
			n++
		}
	}
	return n
}

func (t *Timeline) indexLocked(id protocol.MessageID) int {
	for i := len(t.rows) - 1; i >= 0; i-- {
		if t.rows[i].Kind == RowMessage && t.rows[i].Message.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) lastMessageLocked() (Row, bool) {
	for i := len(t.rows) - 1; i >= 0; i-- {
		if t.rows[i].Kind == RowMessage {
			return t.rows[i], true
		}
	}
	return Row{}, false
}

func (t *Timeline) day(ts time.Time) time.Time {
	y, m, d := ts.In(t.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc)
}
