package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/store"
	"go.uber.org/zap"
)

// CacheUpdate is the payload of bus.KindCacheUpdated.
type CacheUpdate struct {
	SessionID string
	Op        string
	Count     int
}

// Engine mirrors one session's decoded chat events into the cache.
// It subscribes to "chat." events and applies them on its own goroutine so
// the socket reader never waits on SQLite.
type Engine struct {
	db         *store.DB
	bus        *bus.Bus
	sessionID  string
	reconciler *Reconciler
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewEngine creates a sync engine for sessionID.
func NewEngine(db *store.DB, b *bus.Bus, sessionID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		bus:        b,
		sessionID:  sessionID,
		reconciler: NewReconciler(db, logger),
		logger:     logger,
	}
}

// Start subscribes to chat events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch := make(chan bus.Event, 256)
	unsub := e.bus.Subscribe("chat.", func(evt bus.Event) {
		select {
		case ch <- evt:
		case <-ctx.Done():
		}
	})

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the worker to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case protocol.OldMessages:
		err = e.IngestSnapshot(p.Messages)
	case protocol.NewMessage:
		err = e.IngestMessage(p.Message)
	case protocol.EditMessage:
		_, err = e.ApplyEdit(p.ID, p.Patch)
	case protocol.DeleteMessage:
		_, err = e.ApplyDelete(p.IDs)
	default:
		return
	}
	if err != nil {
		e.logger.Error("failed to sync chat event", zap.String("kind", evt.Kind), zap.Error(err))
		return
	}
	if err := e.reconciler.MarkEvent(e.sessionID, evt.Timestamp); err != nil {
		e.logger.Warn("failed to update checkpoint", zap.Error(err))
	}
}

// IngestSnapshot replaces the cached history with msgs.
func (e *Engine) IngestSnapshot(msgs []protocol.Message) error {
	rows := make([]store.Message, len(msgs))
	for i, m := range msgs {
		rows[i] = ToStore(e.sessionID, m)
	}
	if err := e.db.ReplaceSessionMessages(e.sessionID, rows); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	e.logger.Info("snapshot cached", zap.Int("messages", len(msgs)))
	e.publish("snapshot", len(msgs))
	return nil
}

// IngestMessage appends or updates one message (idempotent on id).
func (e *Engine) IngestMessage(msg protocol.Message) error {
	row := ToStore(e.sessionID, msg)
	if err := e.db.UpsertMessage(&row); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	e.publish("upsert", 1)
	return nil
}

// ApplyEdit patches a cached message. Unknown ids are ignored.
func (e *Engine) ApplyEdit(id protocol.MessageID, patch protocol.Patch) (bool, error) {
	ok, err := e.db.PatchMessage(e.sessionID, string(id), toStorePatch(patch))
	if err != nil {
		return false, fmt.Errorf("patch message: %w", err)
	}
	if ok {
		e.publish("edit", 1)
	}
	return ok, nil
}

// ApplyDelete removes cached messages. Unknown ids are ignored.
func (e *Engine) ApplyDelete(ids []protocol.MessageID) (int64, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	n, err := e.db.DeleteMessages(e.sessionID, raw)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	if n > 0 {
		e.publish("delete", int(n))
	}
	return n, nil
}

func (e *Engine) publish(op string, count int) {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindCacheUpdated,
		Timestamp: time.Now(),
		Payload:   CacheUpdate{SessionID: e.sessionID, Op: op, Count: count},
	})
}

// LoadHistory returns the cached messages of sessionID in arrival order, the
// latest limit of them when limit is positive.
func LoadHistory(db *store.DB, sessionID string, limit int) ([]protocol.Message, error) {
	rows, err := db.ListMessages(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]protocol.Message, len(rows))
	for i, r := range rows {
		msgs[i] = FromStore(r)
	}
	return msgs, nil
}

// ToStore converts a wire message to its cached form.
func ToStore(sessionID string, m protocol.Message) store.Message {
	row := store.Message{
		SessionID: sessionID,
		MsgID:     string(m.ID),
		ClientID:  m.ClientID,
		Body:      m.Text,
		SentAt:    m.SentAt.UnixMilli(),
	}
	if m.EditedAt != nil {
		row.EditedAt = m.EditedAt.UnixMilli()
	}
	return row
}

// FromStore converts a cached row back to a wire message.
func FromStore(r store.Message) protocol.Message {
	m := protocol.Message{
		ID:       protocol.MessageID(r.MsgID),
		ClientID: r.ClientID,
		Text:     r.Body,
		SentAt:   time.UnixMilli(r.SentAt),
	}
	if r.EditedAt != 0 {
		t := time.UnixMilli(r.EditedAt)
		m.EditedAt = &t
	}
	return m
}

func toStorePatch(p protocol.Patch) store.MessagePatch {
	sp := store.MessagePatch{ClientID: p.ClientID, Body: p.Text}
	if p.SentAt != nil {
		ms := p.SentAt.UnixMilli()
		sp.SentAt = &ms
	}
	if p.EditedAt != nil {
		ms := p.EditedAt.UnixMilli()
		sp.EditedAt = &ms
	}
	return sp
}
