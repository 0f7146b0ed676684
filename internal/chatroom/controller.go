// Package chatroom implements the per-screen chat state machine: composing,
// editing one message, and selecting messages for bulk delete.
package chatroom

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrMounted is returned by Mount when the controller is already mounted.
var ErrMounted = errors.New("chatroom already mounted")

// Transport is the connection the controller drives. *transport.Manager
// satisfies it.
type Transport interface {
	Connect(sessionID string) error
	Send(frame []byte)
	Subscribe(h bus.Handler) func()
	Close()
}

// Mode is the controller's interaction state.
type Mode int

const (
	Composing Mode = iota
	Editing
	Selecting
)

func (m Mode) String() string {
	switch m {
	case Composing:
		return "composing"
	case Editing:
		return "editing"
	case Selecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Draft is the in-flight edit: the message as it was when editing started and
// the working text.
type Draft struct {
	Target protocol.Message
	Text   string
}

// Params configures a Controller. Bus, Logger, Dropped and the callbacks are
// optional.
type Params struct {
	ClientID  string
	Transport Transport
	Timeline  *timeline.Timeline
	Bus       *bus.Bus
	Logger    *zap.Logger
	Dropped   prometheus.Counter

	ScrollDebounce time.Duration
	// OnScroll is called, debounced, after every decoded inbound event.
	OnScroll func()
	// OnChange is called after any change to the timeline or controller state.
	OnChange func()
}

// Controller coordinates outgoing intents for one mounted session.
type Controller struct {
	clientID  string
	transport Transport
	timeline  *timeline.Timeline
	bus       *bus.Bus
	logger    *zap.Logger
	dropped   prometheus.Counter
	debounce  time.Duration
	onScroll  func()
	onChange  func()

	mu        sync.Mutex
	mode      Mode
	text      string
	draft     *Draft
	selected  []protocol.MessageID
	sessionID string
	mounted   bool
	unsub     func()

	scrollMu    sync.Mutex
	scrollTimer *time.Timer
	scrollOff   bool
}

// New creates a controller in Composing mode.
func New(p Params) *Controller {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Timeline == nil {
		p.Timeline = timeline.New(nil)
	}
	if p.ScrollDebounce <= 0 {
		p.ScrollDebounce = 100 * time.Millisecond
	}
	return &Controller{
		clientID:  p.ClientID,
		transport: p.Transport,
		timeline:  p.Timeline,
		bus:       p.Bus,
		logger:    p.Logger,
		dropped:   p.Dropped,
		debounce:  p.ScrollDebounce,
		onScroll:  p.OnScroll,
		onChange:  p.OnChange,
	}
}

// Mount subscribes to inbound frames and connects the transport to sessionID.
func (c *Controller) Mount(sessionID string) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrMounted
	}
	c.mounted = true
	c.sessionID = sessionID
	c.mu.Unlock()

	c.scrollMu.Lock()
	c.scrollOff = false
	c.scrollMu.Unlock()

	// Connect may wait on a previous reader goroutine, so no lock is held here.
	unsub := c.transport.Subscribe(c.handleFrame)
	if err := c.transport.Connect(sessionID); err != nil {
		unsub()
		c.mu.Lock()
		c.mounted = false
		c.sessionID = ""
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()

	c.logger.Info("chat mounted", zap.String("session_id", sessionID))
	return nil
}

// Unmount unsubscribes, stops the scroll timer and closes the transport.
// Calls after the first are no-ops. It must not be called from OnChange or
// OnScroll.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	unsub := c.unsub
	c.unsub = nil
	c.resetLocked()
	sessionID := c.sessionID
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.stopScroll()
	c.transport.Close()
	c.logger.Info("chat unmounted", zap.String("session_id", sessionID))
}

// SessionID returns the mounted session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return ""
	}
	return c.sessionID
}

// Timeline returns the projection the controller feeds.
func (c *Controller) Timeline() *timeline.Timeline {
	return c.timeline
}

// LongPress enters Selecting with id. It only applies while Composing and only
// to messages authored by this client.
func (c *Controller) LongPress(id protocol.MessageID) bool {
	msg, ok := c.timeline.Get(id)
	if !ok || msg.ClientID != c.clientID {
		return false
	}
	c.mu.Lock()
	if c.mode != Composing {
		c.mu.Unlock()
		return false
	}
	c.mode = Selecting
	c.selected = []protocol.MessageID{id}
	c.mu.Unlock()
	c.changed()
	return true
}

// Tap toggles id in the selection. Emptying the selection returns to
// Composing.
func (c *Controller) Tap(id protocol.MessageID) bool {
	c.mu.Lock()
	if c.mode != Selecting {
		c.mu.Unlock()
		return false
	}
	if i := slices.Index(c.selected, id); i >= 0 {
		c.selected = slices.Delete(c.selected, i, i+1)
	} else {
		if _, ok := c.timeline.Get(id); !ok {
			c.mu.Unlock()
			return false
		}
		c.selected = append(c.selected, id)
	}
	if len(c.selected) == 0 {
		c.resetLocked()
	}
	c.mu.Unlock()
	c.changed()
	return true
}

// CanEdit reports whether exactly one message is selected.
func (c *Controller) CanEdit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == Selecting && len(c.selected) == 1
}

// CanDelete reports whether at least one message is selected.
func (c *Controller) CanDelete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == Selecting && len(c.selected) > 0
}

// StartEdit moves the single selected message into an edit draft.
func (c *Controller) StartEdit() bool {
	c.mu.Lock()
	if c.mode != Selecting || len(c.selected) != 1 {
		c.mu.Unlock()
		return false
	}
	msg, ok := c.timeline.Get(c.selected[0])
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.selected = nil
	c.mode = Editing
	c.draft = &Draft{Target: msg, Text: msg.Text}
	c.mu.Unlock()
	c.changed()
	return true
}

// SetText sets the working text: the edit draft while Editing, the composer
// otherwise.
func (c *Controller) SetText(s string) {
	c.mu.Lock()
	if c.mode == Editing {
		c.draft.Text = s
	} else {
		c.text = s
	}
	c.mu.Unlock()
}

// Text returns the working text.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Editing {
		return c.draft.Text
	}
	return c.text
}

// Submit sends an edit while Editing or a new message while Composing.
// Blank text is a no-op.
func (c *Controller) Submit() bool {
	c.mu.Lock()
	var frame []byte
	switch c.mode {
	case Editing:
		if strings.TrimSpace(c.draft.Text) == "" {
			c.mu.Unlock()
			return false
		}
		frame = protocol.EncodeEdit(c.draft.Target.ID, c.draft.Text)
		c.resetLocked()
	case Composing:
		if strings.TrimSpace(c.text) == "" {
			c.mu.Unlock()
			return false
		}
		frame = protocol.EncodeSend(c.clientID, c.text)
		c.text = ""
	default:
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	c.transport.Send(frame)
	c.changed()
	return true
}

// Cancel drops any edit draft and selection and returns to Composing. The
// composer text is kept.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.mode == Composing {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.mu.Unlock()
	c.changed()
}

// Delete sends a delete for every selected message once confirm approves the
// ids. confirm runs without the controller lock held; a nil confirm approves.
func (c *Controller) Delete(confirm func(ids []string) bool) bool {
	c.mu.Lock()
	if c.mode != Selecting || len(c.selected) == 0 {
		c.mu.Unlock()
		return false
	}
	ids := slices.Clone(c.selected)
	c.mu.Unlock()

	if confirm != nil {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = string(id)
		}
		if !confirm(names) {
			return false
		}
	}

	c.mu.Lock()
	// the selection may have changed while the prompt was up
	if c.mode != Selecting || !slices.Equal(c.selected, ids) {
		c.mu.Unlock()
		return false
	}
	c.resetLocked()
	c.mu.Unlock()

	c.transport.Send(protocol.EncodeDelete(ids))
	c.changed()
	return true
}

// Mode returns the current interaction state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Selected returns the selected ids in selection order.
func (c *Controller) Selected() []protocol.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.selected)
}

// IsSelected reports whether id is in the selection.
func (c *Controller) IsSelected(id protocol.MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.selected, id)
}

// Draft returns the edit draft while Editing.
func (c *Controller) Draft() (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return Draft{}, false
	}
	return *c.draft, true
}

func (c *Controller) resetLocked() {
	c.mode = Composing
	c.selected = nil
	c.draft = nil
}

// handleFrame runs on the transport reader goroutine.
func (c *Controller) handleFrame(evt bus.Event) {
	frame, _ := evt.Payload.([]byte)
	decoded, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Debug("dropping inbound frame", zap.Error(err), zap.Int("bytes", len(frame)))
		if c.dropped != nil {
			c.dropped.Inc()
		}
		return
	}

	changed := c.timeline.Apply(decoded)
	switch ev := decoded.(type) {
	case protocol.DeleteMessage:
		c.forget(ev.IDs)
	case protocol.OldMessages:
		c.forgetMissing()
	}

	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: eventKind(decoded), Timestamp: evt.Timestamp, Payload: decoded})
		if changed {
			c.bus.Publish(bus.Event{Kind: bus.KindTimeline, Timestamp: evt.Timestamp, Payload: c.timeline.Len()})
		}
	}
	if changed {
		c.changed()
	}
	c.requestScroll()
}

// forget drops server-deleted ids from the selection and abandons an edit
// whose target is gone.
func (c *Controller) forget(ids []protocol.MessageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case Selecting:
		c.selected = slices.DeleteFunc(c.selected, func(id protocol.MessageID) bool {
			return slices.Contains(ids, id)
		})
		if len(c.selected) == 0 {
			c.resetLocked()
		}
	case Editing:
		if slices.Contains(ids, c.draft.Target.ID) {
			c.resetLocked()
		}
	}
}

// forgetMissing runs forget for every selected id and draft target the
// timeline no longer holds, as after a snapshot replaced it.
func (c *Controller) forgetMissing() {
	c.mu.Lock()
	var ids []protocol.MessageID
	for _, id := range c.selected {
		if _, ok := c.timeline.Get(id); !ok {
			ids = append(ids, id)
		}
	}
	if c.draft != nil {
		if _, ok := c.timeline.Get(c.draft.Target.ID); !ok {
			ids = append(ids, c.draft.Target.ID)
		}
	}
	c.mu.Unlock()
	if len(ids) > 0 {
		c.forget(ids)
	}
}

func eventKind(e protocol.Event) string {
	switch e.(type) {
	case protocol.OldMessages:
		return bus.KindSnapshot
	case protocol.NewMessage:
		return bus.KindMessageNew
	case protocol.EditMessage:
		return bus.KindMessageEdited
	default:
		return bus.KindMessageDeleted
	}
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller) requestScroll() {
	if c.onScroll == nil {
		return
	}
	c.scrollMu.Lock()
	defer c.scrollMu.Unlock()
	if c.scrollOff {
		return
	}
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
	}
	c.scrollTimer = time.AfterFunc(c.debounce, c.onScroll)
}

func (c *Controller) stopScroll() {
	c.scrollMu.Lock()
	defer c.scrollMu.Unlock()
	c.scrollOff = true
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
		c.scrollTimer = nil
	}
}
