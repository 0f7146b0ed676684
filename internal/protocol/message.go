package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MessageID is a server-assigned message identifier. The server may encode it
// as a JSON number or string; both decode to the same textual form.
type MessageID string

// UnmarshalJSON accepts both `"42"` and `42`.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: empty message id", ErrMalformed)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: message id %s", ErrMalformed, data)
	}
	*id = MessageID(n.String())
	return nil
}

// MarshalJSON writes purely numeric ids as JSON numbers so they round-trip
// in the form the server issued them.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id MessageID) numeric() bool {
	if id == "" || len(id) > 18 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return id == "0" || id[0] != '0'
}

// Message is a single chat message as delivered by the server.
type Message struct {
	ID       MessageID  `json:"id"`
	ClientID string     `json:"client_id"`
	Text     string     `json:"message"`
	SentAt   time.Time  `json:"sent_at"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
}

// Patch holds the fields carried by an edit_message frame. Nil fields were
// absent from the frame and must not overwrite the stored value.
type Patch struct {
	ClientID *string
	Text     *string
	SentAt   *time.Time
	EditedAt *time.Time
}

// ApplyTo shallow-merges the present fields into m.
func (p Patch) ApplyTo(m *Message) {
	if p.ClientID != nil {
		m.ClientID = *p.ClientID
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.SentAt != nil {
		m.SentAt = *p.SentAt
	}
	if p.EditedAt != nil {
		t := *p.EditedAt
		m.EditedAt = &t
	}
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.ClientID == nil && p.Text == nil && p.SentAt == nil && p.EditedAt == nil
}
