package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/store"
	intsync "github.com/fitlive/livechat/internal/sync"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const watchBuffer = 256

// Transport is the part of the connection manager the service drives.
type Transport interface {
	Send(frame []byte)
	Pending() int
	State() status.State
}

// ChatService implements ChatServer for one session.
type ChatService struct {
	sessionID  string
	clientID   string
	startedAt  time.Time
	transport  Transport
	timeline   *timeline.Timeline
	db         *store.DB
	reconciler *intsync.Reconciler
	bus        *bus.Bus
	logger     *zap.Logger
}

// NewChatService creates the service. db and reconciler may be nil, in which
// case Search is unavailable and Rows only reflects the live timeline.
func NewChatService(sessionID, clientID string, t Transport, tl *timeline.Timeline, db *store.DB, rec *intsync.Reconciler, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessionID:  sessionID,
		clientID:   clientID,
		startedAt:  time.Now(),
		transport:  t,
		timeline:   tl,
		db:         db,
		reconciler: rec,
		bus:        b,
		logger:     logger,
	}
}

func (s *ChatService) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info := StatusInfo{
		SessionID: s.sessionID,
		ClientID:  s.clientID,
		State:     string(s.transport.State()),
		Uptime:    time.Since(s.startedAt),
		Pending:   s.transport.Pending(),
		Messages:  s.timeline.Len(),
	}
	if s.reconciler != nil {
		if at, ok, err := s.reconciler.LastEvent(s.sessionID); err == nil && ok {
			info.LastEventAt = at
		}
	}
	return info.toStruct()
}

func (s *ChatService) Send(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text := req.GetFields()["text"].GetStringValue()
	if strings.TrimSpace(text) == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "text is empty")
	}
	s.transport.Send(protocol.EncodeSend(s.clientID, text))
	return accepted(s.transport)
}

func (s *ChatService) Edit(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	id := protocol.MessageID(f["message_id"].GetStringValue())
	text := f["text"].GetStringValue()
	if strings.TrimSpace(text) == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "text is empty")
	}
	if err := s.checkOwn(id); err != nil {
		return nil, err
	}
	s.transport.Send(protocol.EncodeEdit(id, text))
	return accepted(s.transport)
}

func (s *ChatService) Delete(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := stringList(req.GetFields()["message_ids"])
	if len(raw) == 0 {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "no message ids")
	}
	ids := make([]protocol.MessageID, len(raw))
	for i, r := range raw {
		ids[i] = protocol.MessageID(r)
		if err := s.checkOwn(ids[i]); err != nil {
			return nil, err
		}
	}
	s.transport.Send(protocol.EncodeDelete(ids))
	return accepted(s.transport)
}

// checkOwn applies the same guard as a long-press: only messages this client
// authored can be edited or deleted.
func (s *ChatService) checkOwn(id protocol.MessageID) error {
	if id == "" {
		return grpcstatus.Errorf(codes.InvalidArgument, "message id is empty")
	}
	msg, ok := s.timeline.Get(id)
	if !ok {
		return grpcstatus.Errorf(codes.NotFound, "message %q not found", id)
	}
	if msg.ClientID != s.clientID {
		return grpcstatus.Errorf(codes.PermissionDenied, "message %q was not sent by this client", id)
	}
	return nil
}

func (s *ChatService) Rows(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())

	rows := s.timeline.Rows()
	if len(rows) == 0 && s.db != nil {
		// no snapshot yet; project the cached history instead
		msgs, err := intsync.LoadHistory(s.db, s.sessionID, 0)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "load cache: %v", err)
		}
		cached := timeline.New(nil)
		cached.ReplaceAll(msgs)
		rows = cached.Rows()
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = s.rowToAPI(r).toValue()
	}
	return listStruct("rows", values)
}

func (s *ChatService) rowToAPI(r timeline.Row) Row {
	if r.Kind == timeline.RowHeader {
		return Row{Kind: "header", Day: r.Day.Format(time.DateOnly)}
	}
	m := r.Message
	return Row{
		Kind:     "message",
		ID:       string(m.ID),
		ClientID: m.ClientID,
		Text:     m.Text,
		SentAt:   m.SentAt,
		Edited:   m.EditedAt != nil,
		Own:      m.ClientID == s.clientID,
	}
}

func (s *ChatService) Search(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "message cache disabled")
	}
	f := req.GetFields()
	query := f["query"].GetStringValue()
	if strings.TrimSpace(query) == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "query is empty")
	}
	sessionID := s.sessionID
	if f["all_sessions"].GetBoolValue() {
		sessionID = ""
	}

	results, err := s.db.SearchMessages(query, sessionID, int(f["limit"].GetNumberValue()))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	values := make([]any, len(results))
	for i, r := range results {
		values[i] = SearchHit{
			SessionID: r.Message.SessionID,
			ID:        r.Message.MsgID,
			Text:      r.Message.Body,
			Snippet:   r.Snippet,
			SentAt:    time.UnixMilli(r.Message.SentAt),
		}.toValue()
	}
	return listStruct("results", values)
}

// Watch streams bus events whose kind starts with the requested prefix.
// Events are dropped rather than blocking the publisher when the client
// falls behind.
func (s *ChatService) Watch(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	prefix := req.GetFields()["prefix"].GetStringValue()
	ch := make(chan bus.Event, watchBuffer)
	unsub := s.bus.Subscribe(prefix, func(evt bus.Event) {
		if evt.Kind == bus.KindFrameReceived && prefix == "" {
			return
		}
		select {
		case ch <- evt:
		default:
			s.logger.Warn("watch client too slow, event dropped", zap.String("kind", evt.Kind))
		}
	})
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := WatchEvent{
				ID:         uuid.New().String(),
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Summary:    Summarize(evt),
			}.toStruct()
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// Summarize renders a one-line description of a bus event payload.
func Summarize(evt bus.Event) string {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		return fmt.Sprintf("%s -> %s", p.From, p.To)
	case protocol.OldMessages:
		return fmt.Sprintf("%d messages", len(p.Messages))
	case protocol.NewMessage:
		return fmt.Sprintf("#%s %s: %s", p.Message.ID, p.Message.ClientID, p.Message.Text)
	case protocol.EditMessage:
		if p.Patch.Text != nil {
			return fmt.Sprintf("#%s: %s", p.ID, *p.Patch.Text)
		}
		return "#" + string(p.ID)
	case protocol.DeleteMessage:
		ids := make([]string, len(p.IDs))
		for i, id := range p.IDs {
			ids[i] = "#" + string(id)
		}
		return strings.Join(ids, " ")
	case intsync.CacheUpdate:
		return fmt.Sprintf("%s %d", p.Op, p.Count)
	case int:
		return fmt.Sprintf("%d messages", p)
	default:
		return ""
	}
}

func accepted(t Transport) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"accepted": true,
		"queued":   t.State() != status.Open,
	})
}
