package api

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/store"
	intsync "github.com/fitlive/livechat/internal/sync"
	"github.com/fitlive/livechat/internal/timeline"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames []string
	state  status.State
}

func (f *fakeTransport) Send(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(frame))
}

func (f *fakeTransport) Pending() int { return 0 }

func (f *fakeTransport) State() status.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

type env struct {
	client    *Client
	transport *fakeTransport
	timeline  *timeline.Timeline
	db        *store.DB
	bus       *bus.Bus
}

func day(d int, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		transport: &fakeTransport{state: status.Open},
		timeline:  timeline.New(time.UTC),
		db:        db,
		bus:       bus.New(logger),
	}
	svc := NewChatService("s1", "me", e.transport, e.timeline, db, intsync.NewReconciler(db, logger), e.bus, logger)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterChatServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	e.client = NewClient(conn)
	return e
}

func (e *env) seed() {
	e.timeline.ReplaceAll([]protocol.Message{
		{ID: "1", ClientID: "me", Text: "morning run done", SentAt: day(1, 8)},
		{ID: "2", ClientID: "coach", Text: "nice pace", SentAt: day(2, 9)},
	})
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %v (%v), want %v", got, err, code)
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	e.seed()

	info, err := e.client.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.SessionID != "s1" || info.ClientID != "me" || info.State != "OPEN" || info.Messages != 2 {
		t.Errorf("status = %+v", info)
	}
	if !info.LastEventAt.IsZero() {
		t.Errorf("LastEventAt = %v, want zero before any event", info.LastEventAt)
	}
}

func TestSendEncodesCommand(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	queued, err := e.client.Send(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if queued {
		t.Error("queued = true while OPEN")
	}
	if got := e.transport.sent(); len(got) != 1 || got[0] != string(protocol.EncodeSend("me", "hello")) {
		t.Errorf("frames = %v", got)
	}

	_, err = e.client.Send(ctx, "  ")
	wantCode(t, err, codes.InvalidArgument)

	e.transport.mu.Lock()
	e.transport.state = status.Closed
	e.transport.mu.Unlock()
	queued, err = e.client.Send(ctx, "later")
	if err != nil || !queued {
		t.Errorf("Send while closed = %v, %v; want queued", queued, err)
	}
}

func TestEditAndDeleteGuards(t *testing.T) {
	e := newEnv(t)
	e.seed()
	ctx := context.Background()

	_, err := e.client.Edit(ctx, "2", "not mine")
	wantCode(t, err, codes.PermissionDenied)
	_, err = e.client.Edit(ctx, "404", "missing")
	wantCode(t, err, codes.NotFound)
	_, err = e.client.Edit(ctx, "1", "")
	wantCode(t, err, codes.InvalidArgument)
	_, err = e.client.Delete(ctx, nil)
	wantCode(t, err, codes.InvalidArgument)
	_, err = e.client.Delete(ctx, []string{"1", "2"})
	wantCode(t, err, codes.PermissionDenied)

	if len(e.transport.sent()) != 0 {
		t.Fatalf("rejected commands sent frames: %v", e.transport.sent())
	}

	if _, err := e.client.Edit(ctx, "1", "evening run done"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.client.Delete(ctx, []string{"1"}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		string(protocol.EncodeEdit("1", "evening run done")),
		string(protocol.EncodeDelete([]protocol.MessageID{"1"})),
	}
	got := e.transport.sent()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("frames = %v, want %v", got, want)
	}
}

func TestRowsIncludeHeaders(t *testing.T) {
	e := newEnv(t)
	e.seed()

	rows, err := e.client.Rows(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0].Kind != "header" || rows[0].Day != "2024-01-01" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].ID != "1" || !rows[1].Own || !rows[1].SentAt.Equal(day(1, 8)) {
		t.Errorf("rows[1] = %+v", rows[1])
	}
	if rows[3].ID != "2" || rows[3].Own {
		t.Errorf("rows[3] = %+v", rows[3])
	}

	rows, err = e.client.Rows(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Day != "2024-01-02" {
		t.Errorf("limited rows = %+v", rows)
	}
}

func TestRowsFallBackToCache(t *testing.T) {
	e := newEnv(t)
	if err := e.db.ReplaceSessionMessages("s1", []store.Message{
		{MsgID: "c1", ClientID: "me", Body: "cached", SentAt: day(3, 10).UnixMilli()},
	}); err != nil {
		t.Fatal(err)
	}

	rows, err := e.client.Rows(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Text != "cached" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, m := range []store.Message{
		{SessionID: "s1", MsgID: "1", Body: "squat day", SentAt: 1000},
		{SessionID: "s2", MsgID: "2", Body: "squat form check", SentAt: 2000},
	} {
		if err := e.db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := e.client.Search(ctx, "squat", 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "1" || hits[0].Snippet != "<<squat>> day" {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = e.client.Search(ctx, "squat", 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits across sessions, want 2", len(hits))
	}

	_, err = e.client.Search(ctx, "", 10, false)
	wantCode(t, err, codes.InvalidArgument)
}

func TestWatchStreamsMatchingEvents(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan WatchEvent, 8)
	done := make(chan error, 1)
	go func() {
		done <- e.client.Watch(ctx, "chat.", func(evt WatchEvent) error {
			got <- evt
			if evt.Kind == bus.KindMessageDeleted {
				return errStop
			}
			return nil
		})
	}()

	// wait for the server-side subscription before publishing
	for e.bus.Len() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("watch never subscribed")
		case <-time.After(2 * time.Millisecond):
		}
	}

	e.bus.Publish(bus.Event{Kind: bus.KindStateChanged, Timestamp: time.Now(), Payload: status.StatusChange{From: status.Connecting, To: status.Open}})
	e.bus.Publish(bus.Event{Kind: bus.KindMessageNew, Timestamp: time.Now(), Payload: protocol.NewMessage{Message: protocol.Message{ID: "7", ClientID: "me", Text: "hi"}}})
	e.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, Timestamp: time.Now(), Payload: protocol.DeleteMessage{IDs: []protocol.MessageID{"7"}}})

	if err := <-done; !errors.Is(err, errStop) {
		t.Fatalf("Watch returned %v", err)
	}
	close(got)
	var events []WatchEvent
	for evt := range got {
		events = append(events, evt)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Kind != bus.KindMessageNew || events[0].Summary != "#7 me: hi" || events[0].ID == "" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Summary != "#7" {
		t.Errorf("events[1] = %+v", events[1])
	}
}

var errStop = errors.New("stop")

func TestSummarize(t *testing.T) {
	text := "edited"
	tests := []struct {
		name string
		evt  bus.Event
		want string
	}{
		{"state", bus.Event{Payload: status.StatusChange{From: status.Open, To: status.Closed}}, "OPEN -> CLOSED"},
		{"snapshot", bus.Event{Payload: protocol.OldMessages{Messages: make([]protocol.Message, 3)}}, "3 messages"},
		{"edit", bus.Event{Payload: protocol.EditMessage{ID: "4", Patch: protocol.Patch{Text: &text}}}, "#4: edited"},
		{"edit without text", bus.Event{Payload: protocol.EditMessage{ID: "4"}}, "#4"},
		{"delete", bus.Event{Payload: protocol.DeleteMessage{IDs: []protocol.MessageID{"1", "2"}}}, "#1 #2"},
		{"cache", bus.Event{Payload: intsync.CacheUpdate{Op: "upsert", Count: 1}}, "upsert 1"},
		{"unknown", bus.Event{Payload: struct{}{}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.evt); got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}
