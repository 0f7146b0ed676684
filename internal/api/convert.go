package api

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// StatusInfo is the Status response.
type StatusInfo struct {
	SessionID   string
	ClientID    string
	State       string
	Uptime      time.Duration
	Pending     int
	Messages    int
	LastEventAt time.Time
}

// Row is one rendered timeline row. Kind is "header" or "message"; Day is
// set on headers as YYYY-MM-DD.
type Row struct {
	Kind     string
	Day      string
	ID       string
	ClientID string
	Text     string
	SentAt   time.Time
	Edited   bool
	Own      bool
}

// SearchHit is one Search result.
type SearchHit struct {
	SessionID string
	ID        string
	Text      string
	Snippet   string
	SentAt    time.Time
}

// WatchEvent is one streamed bus event.
type WatchEvent struct {
	ID         string
	Kind       string
	OccurredAt time.Time
	Summary    string
}

func (s StatusInfo) toStruct() (*structpb.Struct, error) {
	m := map[string]any{
		"session_id": s.SessionID,
		"client_id":  s.ClientID,
		"state":      s.State,
		"uptime_ms":  s.Uptime.Milliseconds(),
		"pending":    s.Pending,
		"messages":   s.Messages,
	}
	if !s.LastEventAt.IsZero() {
		m["last_event_at_ms"] = s.LastEventAt.UnixMilli()
	}
	return structpb.NewStruct(m)
}

func statusFromStruct(pb *structpb.Struct) StatusInfo {
	f := pb.GetFields()
	s := StatusInfo{
		SessionID: f["session_id"].GetStringValue(),
		ClientID:  f["client_id"].GetStringValue(),
		State:     f["state"].GetStringValue(),
		Uptime:    time.Duration(f["uptime_ms"].GetNumberValue()) * time.Millisecond,
		Pending:   int(f["pending"].GetNumberValue()),
		Messages:  int(f["messages"].GetNumberValue()),
	}
	if v, ok := f["last_event_at_ms"]; ok {
		s.LastEventAt = time.UnixMilli(int64(v.GetNumberValue()))
	}
	return s
}

func (r Row) toValue() any {
	if r.Kind == "header" {
		return map[string]any{"kind": r.Kind, "day": r.Day}
	}
	return map[string]any{
		"kind":       r.Kind,
		"id":         r.ID,
		"client_id":  r.ClientID,
		"text":       r.Text,
		"sent_at_ms": r.SentAt.UnixMilli(),
		"edited":     r.Edited,
		"own":        r.Own,
	}
}

func rowFromValue(v *structpb.Value) Row {
	f := v.GetStructValue().GetFields()
	r := Row{
		Kind:     f["kind"].GetStringValue(),
		Day:      f["day"].GetStringValue(),
		ID:       f["id"].GetStringValue(),
		ClientID: f["client_id"].GetStringValue(),
		Text:     f["text"].GetStringValue(),
		Edited:   f["edited"].GetBoolValue(),
		Own:      f["own"].GetBoolValue(),
	}
	if ms, ok := f["sent_at_ms"]; ok {
		r.SentAt = time.UnixMilli(int64(ms.GetNumberValue()))
	}
	return r
}

func (h SearchHit) toValue() any {
	return map[string]any{
		"session_id": h.SessionID,
		"id":         h.ID,
		"text":       h.Text,
		"snippet":    h.Snippet,
		"sent_at_ms": h.SentAt.UnixMilli(),
	}
}

func hitFromValue(v *structpb.Value) SearchHit {
	f := v.GetStructValue().GetFields()
	return SearchHit{
		SessionID: f["session_id"].GetStringValue(),
		ID:        f["id"].GetStringValue(),
		Text:      f["text"].GetStringValue(),
		Snippet:   f["snippet"].GetStringValue(),
		SentAt:    time.UnixMilli(int64(f["sent_at_ms"].GetNumberValue())),
	}
}

func (e WatchEvent) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"event_id":       e.ID,
		"kind":           e.Kind,
		"occurred_at_ms": e.OccurredAt.UnixMilli(),
		"summary":        e.Summary,
	})
}

func watchEventFromStruct(pb *structpb.Struct) WatchEvent {
	f := pb.GetFields()
	return WatchEvent{
		ID:         f["event_id"].GetStringValue(),
		Kind:       f["kind"].GetStringValue(),
		OccurredAt: time.UnixMilli(int64(f["occurred_at_ms"].GetNumberValue())),
		Summary:    f["summary"].GetStringValue(),
	}
}

// listStruct wraps values under key as a list.
func listStruct(key string, values []any) (*structpb.Struct, error) {
	if values == nil {
		values = []any{}
	}
	return structpb.NewStruct(map[string]any{key: values})
}

func stringList(v *structpb.Value) []string {
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
