package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func msgIDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MsgID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + sync_state)", result.Version)
	}
}

func TestMigrateFreshReportsFromZero(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.From != 0 || result.Version != 2 || !result.Changed {
		t.Errorf("result = %+v, want 0 -> 2 changed", result)
	}
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	if _, err := OpenReadOnly(path); err == nil {
		t.Fatal("expected an error for a missing file")
	}

	rw, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := rw.ReplaceSessionMessages("s1", []Message{{MsgID: "1", ClientID: "me", Body: "hi", SentAt: 1000}}); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rw.Close() }()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ro.Close() }()

	if !ro.ReadOnly() {
		t.Error("ReadOnly() = false")
	}
	msgs, err := ro.ListMessages("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hi" {
		t.Errorf("msgs = %+v", msgs)
	}
	if _, err := ro.Migrate(); err == nil {
		t.Error("Migrate on a read-only handle should fail")
	}
	if err := ro.UpsertMessage(&Message{SessionID: "s1", MsgID: "2", Body: "x"}); err == nil {
		t.Error("write through a read-only handle should fail")
	}
}

func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	ops := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert session", "INSERT INTO sessions (id, last_snapshot_at, updated_at) VALUES (?, ?, ?)", []any{"s1", 1, 1}},
		{"insert message", "INSERT INTO messages (session_id, msg_id, client_id, body, sent_at, edited_at, seq, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", []any{"s1", "m1", "c1", "hello", 1000, 0, 1, 1}},
		{"set sync state", "INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)", []any{"k", "v", 1}},
	}
	for _, op := range ops {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestReplaceSessionMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: "stale", Body: "gone soon"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{SessionID: "s2", MsgID: "other", Body: "kept"}); err != nil {
		t.Fatal(err)
	}

	snapshot := []Message{
		{MsgID: "2", ClientID: "a", Body: "second by time", SentAt: 2000},
		{MsgID: "1", ClientID: "b", Body: "first by time", SentAt: 1000},
	}
	if err := db.ReplaceSessionMessages("s1", snapshot); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	// arrival order, not timestamp order
	if got := msgIDs(msgs); !equalIDs(got, []string{"2", "1"}) {
		t.Errorf("ids = %v, want [2 1]", got)
	}

	other, err := db.ListMessages("s2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 {
		t.Errorf("s2 has %d messages, want 1", len(other))
	}

	s, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || s.LastSnapshotAt == 0 || s.MessageCount != 2 {
		t.Errorf("session = %+v", s)
	}
}

func TestUpsertMessageAppendsAndUpdatesInPlace(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: id, Body: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: "a", Body: "a updated"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := msgIDs(msgs); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Fatalf("ids = %v, want [a b c]", got)
	}
	if msgs[0].Body != "a updated" {
		t.Errorf("body = %q, want a updated", msgs[0].Body)
	}
}

func TestListMessagesLimitKeepsLatest(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"1", "2", "3", "4"} {
		if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: id}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := msgIDs(msgs); !equalIDs(got, []string{"3", "4"}) {
		t.Errorf("ids = %v, want [3 4]", got)
	}
}

func TestPatchMessage(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: "m1", ClientID: "c1", Body: "old", SentAt: 1000}); err != nil {
		t.Fatal(err)
	}

	body := "new"
	edited := int64(5000)
	ok, err := db.PatchMessage("s1", "m1", MessagePatch{Body: &body, EditedAt: &edited})
	if err != nil || !ok {
		t.Fatalf("PatchMessage = %v, %v", ok, err)
	}

	msgs, _ := db.ListMessages("s1", 0)
	m := msgs[0]
	if m.Body != "new" || m.EditedAt != 5000 || m.ClientID != "c1" || m.SentAt != 1000 {
		t.Errorf("patched message = %+v", m)
	}

	ok, err = db.PatchMessage("s1", "missing", MessagePatch{Body: &body})
	if err != nil || ok {
		t.Errorf("PatchMessage(missing) = %v, %v; want false, nil", ok, err)
	}
	ok, err = db.PatchMessage("s1", "m1", MessagePatch{})
	if err != nil || !ok {
		t.Errorf("empty PatchMessage = %v, %v; want true, nil", ok, err)
	}
}

func TestDeleteMessages(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"1", "2", "3"} {
		if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: id}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.DeleteMessages("s1", []string{"1", "3", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	msgs, _ := db.ListMessages("s1", 0)
	if got := msgIDs(msgs); !equalIDs(got, []string{"2"}) {
		t.Errorf("ids = %v, want [2]", got)
	}

	n, err = db.DeleteMessages("s1", nil)
	if err != nil || n != 0 {
		t.Errorf("DeleteMessages(nil) = %d, %v", n, err)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)
	seed := []Message{
		{SessionID: "s1", MsgID: "m1", Body: "Leg day tomorrow at the gym", SentAt: 1000},
		{SessionID: "s1", MsgID: "m2", Body: "rest day", SentAt: 2000},
		{SessionID: "s2", MsgID: "m3", Body: "LEG press PR", SentAt: 3000},
		{SessionID: "s2", MsgID: "m4", Body: "100% effort_today", SentAt: 4000},
	}
	for i := range seed {
		if err := db.UpsertMessage(&seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.SearchMessages("leg", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Message.MsgID != "m3" || results[1].Message.MsgID != "m1" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Snippet != "<<LEG>> press PR" {
		t.Errorf("snippet = %q", results[0].Snippet)
	}

	results, err = db.SearchMessages("leg", "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MsgID != "m1" {
		t.Errorf("scoped results = %+v", results)
	}

	// LIKE wildcards in the query match literally
	results, err = db.SearchMessages("0% effort_", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MsgID != "m4" {
		t.Errorf("escaped results = %+v", results)
	}
	results, err = db.SearchMessages("_", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("underscore matched %d messages, want 1", len(results))
	}
}

func TestSnippetTrimsLongBodies(t *testing.T) {
	body := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa needle bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	got := snippet(body, "needle")
	want := "...aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa <<needle>> bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb..."
	if got != want {
		t.Errorf("snippet = %q\nwant      %q", got, want)
	}
}

func TestListSessions(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{SessionID: "s1", MsgID: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertSession("s2"); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	counts := map[string]int{}
	for _, s := range sessions {
		counts[s.ID] = s.MessageCount
	}
	if counts["s1"] != 1 || counts["s2"] != 0 {
		t.Errorf("counts = %v", counts)
	}

	missing, err := db.GetSession("nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(nope) = %v, %v", missing, err)
	}
}
