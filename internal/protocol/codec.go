package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON objects,
	// lack an action, or carry an unparsable data payload.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownAction is returned for well-formed frames with an action this
	// client does not understand.
	ErrUnknownAction = errors.New("unknown action")
)

// Inbound actions.
const (
	ActionOldMessages   = "old_messages"
	ActionNewMessage    = "new_message"
	ActionEditMessage   = "edit_message"
	ActionDeleteMessage = "delete_message"
)

// Outbound actions.
const (
	ActionSend   = "send"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Event is a decoded inbound frame. It is one of OldMessages, NewMessage,
// EditMessage or DeleteMessage.
type Event interface {
	Action() string
}

// OldMessages is a full snapshot that replaces local state.
type OldMessages struct {
	Messages []Message
}

// NewMessage appends one message.
type NewMessage struct {
	Message Message
}

// EditMessage merges Patch into the message with ID.
type EditMessage struct {
	ID    MessageID
	Patch Patch
}

// DeleteMessage removes every listed id.
type DeleteMessage struct {
	IDs []MessageID
}

func (OldMessages) Action() string   { return ActionOldMessages }
func (NewMessage) Action() string    { return ActionNewMessage }
func (EditMessage) Action() string   { return ActionEditMessage }
func (DeleteMessage) Action() string { return ActionDeleteMessage }

type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type editData struct {
	ID       MessageID  `json:"id"`
	ClientID *string    `json:"client_id"`
	Text     *string    `json:"message"`
	SentAt   *time.Time `json:"sent_at"`
	EditedAt *time.Time `json:"edited_at"`
}

type deleteData struct {
	IDs []MessageID `json:"message_ids"`
}

// Decode parses one inbound frame.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformed)
	}

	switch env.Action {
	case ActionOldMessages:
		var msgs []Message
		if err := decodeData(env.Data, &msgs); err != nil {
			return nil, err
		}
		return OldMessages{Messages: msgs}, nil
	case ActionNewMessage:
		var msg Message
		if err := decodeData(env.Data, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, fmt.Errorf("%w: new_message without id", ErrMalformed)
		}
		return NewMessage{Message: msg}, nil
	case ActionEditMessage:
		var d editData
		if err := decodeData(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: edit_message without id", ErrMalformed)
		}
		return EditMessage{
			ID: d.ID,
			Patch: Patch{
				ClientID: d.ClientID,
				Text:     d.Text,
				SentAt:   d.SentAt,
				EditedAt: d.EditedAt,
			},
		}, nil
	case ActionDeleteMessage:
		var d deleteData
		if err := decodeData(env.Data, &d); err != nil {
			return nil, err
		}
		return DeleteMessage{IDs: d.IDs}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	return nil
}

type sendCommand struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

type editCommand struct {
	Action    string    `json:"action"`
	MessageID MessageID `json:"message_id"`
	Message   string    `json:"message"`
}

type deleteCommand struct {
	Action     string      `json:"action"`
	MessageIDs []MessageID `json:"message_ids"`
}

// EncodeSend builds a send command frame.
func EncodeSend(clientID, text string) []byte {
	return mustMarshal(sendCommand{Action: ActionSend, ClientID: clientID, Message: text})
}

// EncodeEdit builds an edit command frame.
func EncodeEdit(id MessageID, text string) []byte {
	return mustMarshal(editCommand{Action: ActionEdit, MessageID: id, Message: text})
}

// EncodeDelete builds a delete command frame. A nil slice is sent as [].
func EncodeDelete(ids []MessageID) []byte {
	if ids == nil {
		ids = []MessageID{}
	}
	return mustMarshal(deleteCommand{Action: ActionDelete, MessageIDs: ids})
}

// Ping returns the keepalive frame.
func Ping() []byte {
	return []byte("{}")
}

// mustMarshal is only used with the command structs above, which always
// marshal.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return b
}
