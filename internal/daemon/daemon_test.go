package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fitlive/livechat/internal/api"
	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/lock"
	"github.com/fitlive/livechat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

const snapshotFrame = `{"action":"old_messages","data":[
	{"id":1,"client_id":"me","message":"morning","sent_at":"2024-03-01T08:00:00Z"},
	{"id":2,"client_id":"coach","message":"hi there","sent_at":"2024-03-02T09:00:00Z"}
]}`

// chatBackend is a websocket server that sends a snapshot on accept and
// records every non-keepalive frame it receives.
func chatBackend(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	received := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte(snapshotFrame))
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if string(data) != "{}" {
				received <- string(data)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

// testParams lays the session out under a short /tmp path to stay within the
// Unix socket path limit.
func testParams(t *testing.T, baseURL string) Params {
	t.Helper()
	tmpDir, err := os.MkdirTemp("/tmp", "chatd-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	cfg := *config.Default()
	cfg.BaseURL = baseURL
	cfg.ReconnectDelay = config.Duration{Duration: 10 * time.Millisecond}
	cfg.ResendInterval = config.Duration{Duration: 5 * time.Millisecond}

	return Params{
		SessionID:  "s1",
		ClientID:   "me",
		Config:     cfg,
		SocketPath: filepath.Join(tmpDir, "d.sock"),
		LockDir:    tmpDir,
		DBPath:     filepath.Join(tmpDir, "cache.db"),
		LogPath:    filepath.Join(tmpDir, "logs", "chatd.log"),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonLifecycle(t *testing.T) {
	backend, received := chatBackend(t)
	p := testParams(t, backend.URL)

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	stopped := false
	defer func() {
		if !stopped {
			app.RequireStop()
		}
	}()

	client, err := api.Dial(p.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waitFor(t, "snapshot", func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.State == "OPEN" && st.Messages == 2
	})

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if st.SessionID != "s1" || st.ClientID != "me" {
		t.Errorf("status = %+v", st)
	}

	rows, err := client.Rows(ctx, 0)
	if err != nil {
		t.Fatalf("Rows error = %v", err)
	}
	// Two messages on different days: header, message, header, message.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0].Kind != "header" || rows[1].ID != "1" || !rows[1].Own || rows[3].Own {
		t.Errorf("rows = %+v", rows)
	}

	queued, err := client.Send(ctx, "on my way")
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if queued {
		t.Error("send while open should not report queued")
	}
	select {
	case frame := <-received:
		want := `{"action":"send","client_id":"me","message":"on my way"}`
		if frame != want {
			t.Errorf("frame = %s, want %s", frame, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("backend never received the send")
	}

	// The sync engine mirrors the snapshot into the cache.
	waitFor(t, "cache search", func() bool {
		hits, err := client.Search(ctx, "hi", 10, false)
		return err == nil && len(hits) == 1
	})

	app.RequireStop()
	stopped = true

	if _, err := os.Stat(p.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}

	// The lock is released, so a second daemon could take the session.
	lk, err := lock.Acquire(p.LockDir)
	if err != nil {
		t.Fatalf("lock after stop: %v", err)
	}
	_ = lk.Release()
}

// TestCachedHistoryServedBeforeConnect verifies the timeline is seeded from
// the cache at startup, so Rows answers even while the backend is unreachable.
func TestCachedHistoryServedBeforeConnect(t *testing.T) {
	p := testParams(t, "ws://127.0.0.1:1")
	p.Config.MaxReconnects = 1

	db, err := store.Open(p.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceSessionMessages("s1", []store.Message{
		{MsgID: "9", ClientID: "coach", Body: "cached", SentAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()},
	}); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	client, err := api.Dial(p.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	rows, err := client.Rows(context.Background(), 0)
	if err != nil {
		t.Fatalf("Rows error = %v", err)
	}
	if len(rows) != 2 || rows[1].ID != "9" || rows[1].Text != "cached" {
		t.Errorf("rows = %+v", rows)
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without
// starting anything.
func TestFxModuleWiring(t *testing.T) {
	p := testParams(t, "ws://127.0.0.1:1")
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("fx wiring error: %v", err)
	}
}

func TestMetricsServerDisabledWithoutAddr(t *testing.T) {
	m := NewMetricsServer(Params{}, nil, nil)
	if m.http != nil {
		t.Fatal("metrics server should be disabled")
	}
	m.Start()
	m.Stop(context.Background())
}
