package timeline

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/fitlive/livechat/internal/protocol"
)

func msg(id string, ts string) protocol.Message {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return protocol.Message{ID: protocol.MessageID(id), ClientID: "c1", Text: "text " + id, SentAt: t}
}

// render flattens rows to "h:YYYY-MM-DD" / "m:<id>" for comparison.
func render(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		switch r.Kind {
		case RowHeader:
			out = append(out, "h:"+r.Day.Format(time.DateOnly))
		case RowMessage:
			out = append(out, "m:"+string(r.Message.ID))
		}
	}
	return out
}

func assertRows(t *testing.T, tl *Timeline, want ...string) {
	t.Helper()
	if got := render(tl.Rows()); !slices.Equal(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestSessionScenario(t *testing.T) {
	tl := New(time.UTC)

	tl.Apply(protocol.OldMessages{Messages: []protocol.Message{
		msg("1", "2024-01-01T10:00:00Z"),
		msg("2", "2024-01-02T09:00:00Z"),
	}})
	assertRows(t, tl, "h:2024-01-01", "m:1", "h:2024-01-02", "m:2")

	tl.Apply(protocol.NewMessage{Message: msg("3", "2024-01-02T18:30:00Z")})
	assertRows(t, tl, "h:2024-01-01", "m:1", "h:2024-01-02", "m:2", "m:3")

	tl.Apply(protocol.DeleteMessage{IDs: []protocol.MessageID{"1"}})
	assertRows(t, tl, "h:2024-01-01", "h:2024-01-02", "m:2", "m:3")
}

func TestReplaceAllIsIdempotent(t *testing.T) {
	msgs := []protocol.Message{
		msg("1", "2024-03-01T08:00:00Z"),
		msg("2", "2024-03-01T09:00:00Z"),
		msg("3", "2024-03-04T09:00:00Z"),
		msg("4", "2024-03-02T09:00:00Z"),
	}
	tl := New(time.UTC)
	tl.ReplaceAll(msgs)
	first := tl.Rows()
	tl.ReplaceAll(msgs)
	second := tl.Rows()

	if !slices.Equal(render(first), render(second)) {
		t.Errorf("replace twice: %v then %v", render(first), render(second))
	}
	// arrival order is kept even when timestamps go backwards
	assertRows(t, tl, "h:2024-03-01", "m:1", "m:2", "h:2024-03-04", "m:3", "h:2024-03-02", "m:4")
}

func TestReplaceAllDiscardsPreviousContents(t *testing.T) {
	tl := New(time.UTC)
	tl.Append(msg("old", "2024-01-01T00:00:00Z"))
	tl.ReplaceAll([]protocol.Message{msg("new", "2024-01-05T00:00:00Z")})
	assertRows(t, tl, "h:2024-01-05", "m:new")

	tl.ReplaceAll(nil)
	assertRows(t, tl)
	if tl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tl.Len())
	}
}

func TestReplaceAllDuplicateIDKeepsFirstPosition(t *testing.T) {
	dup := msg("1", "2024-01-03T10:00:00Z")
	dup.Text = "latest"
	tl := New(time.UTC)
	tl.ReplaceAll([]protocol.Message{
		msg("1", "2024-01-01T10:00:00Z"),
		msg("2", "2024-01-02T10:00:00Z"),
		dup,
	})

	assertRows(t, tl, "h:2024-01-01", "m:1", "h:2024-01-02", "m:2")
	if got, _ := tl.Get("1"); got.Text != "latest" {
		t.Errorf("Get(1).Text = %q, want latest", got.Text)
	}
}

func TestReplaceAllLargeSnapshot(t *testing.T) {
	const n = 50000
	msgs := make([]protocol.Message, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range msgs {
		msgs[i] = protocol.Message{ID: protocol.MessageID(fmt.Sprint(i)), SentAt: base.Add(time.Duration(i) * time.Minute)}
	}
	tl := New(time.UTC)

	start := time.Now()
	tl.ReplaceAll(msgs)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ReplaceAll(%d) took %s", n, elapsed)
	}
	if tl.Len() != n {
		t.Errorf("Len() = %d, want %d", tl.Len(), n)
	}
	if _, ok := tl.Get(protocol.MessageID(fmt.Sprint(n - 1))); !ok {
		t.Error("last message missing")
	}
}

func TestAppendHeaderFollowsLastRealMessage(t *testing.T) {
	tl := New(time.UTC)
	tl.Append(msg("1", "2024-01-01T10:00:00Z"))
	tl.Append(msg("2", "2024-01-02T10:00:00Z"))
	tl.RemoveMany([]protocol.MessageID{"2"})

	// the trailing 01-02 header is orphaned; the last real message is on 01-01
	tl.Append(msg("3", "2024-01-01T11:00:00Z"))
	assertRows(t, tl, "h:2024-01-01", "m:1", "h:2024-01-02", "m:3")
}

func TestAppendDuplicateIDReplacesInPlace(t *testing.T) {
	tl := New(time.UTC)
	tl.Append(msg("1", "2024-01-01T10:00:00Z"))
	tl.Append(msg("2", "2024-01-01T11:00:00Z"))

	dup := msg("1", "2024-01-01T10:00:00Z")
	dup.Text = "again"
	tl.Append(dup)

	assertRows(t, tl, "h:2024-01-01", "m:1", "m:2")
	got, ok := tl.Get("1")
	if !ok || got.Text != "again" {
		t.Errorf("Get(1) = %+v, %v", got, ok)
	}
}

func TestDaysUseTimelineLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	tl := New(loc)
	// 03:00Z on the 2nd is still the 1st at UTC-5
	tl.Append(msg("1", "2024-01-01T20:00:00Z"))
	tl.Append(msg("2", "2024-01-02T03:00:00Z"))
	tl.Append(msg("3", "2024-01-02T06:00:00Z"))
	assertRows(t, tl, "h:2024-01-01", "m:1", "m:2", "h:2024-01-02", "m:3")
}

func TestMergeUnknownIDIsNoop(t *testing.T) {
	tl := New(time.UTC)
	tl.ReplaceAll([]protocol.Message{msg("1", "2024-01-01T10:00:00Z")})
	before := tl.Messages()

	text := "changed"
	if tl.Merge("missing", protocol.Patch{Text: &text}) {
		t.Error("Merge(missing) reported a change")
	}
	if !slices.Equal(before, tl.Messages()) {
		t.Errorf("messages changed: %v -> %v", before, tl.Messages())
	}
}

func TestMergeOnlyTouchesPresentFields(t *testing.T) {
	tl := New(time.UTC)
	orig := msg("1", "2024-01-01T10:00:00Z")
	tl.Append(orig)

	text := "edited"
	edited := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !tl.Apply(protocol.EditMessage{ID: "1", Patch: protocol.Patch{Text: &text, EditedAt: &edited}}) {
		t.Fatal("Apply(edit) reported no change")
	}

	got, _ := tl.Get("1")
	if got.Text != "edited" || got.EditedAt == nil || !got.EditedAt.Equal(edited) {
		t.Errorf("merged message = %+v", got)
	}
	if got.ClientID != orig.ClientID || !got.SentAt.Equal(orig.SentAt) {
		t.Errorf("absent fields overwritten: %+v", got)
	}
}

func TestRemoveManyUnknownIDsIsNoop(t *testing.T) {
	tl := New(time.UTC)
	tl.ReplaceAll([]protocol.Message{
		msg("1", "2024-01-01T10:00:00Z"),
		msg("2", "2024-01-02T10:00:00Z"),
	})

	if n := tl.RemoveMany([]protocol.MessageID{"x", "y"}); n != 0 {
		t.Errorf("RemoveMany(unknown) = %d, want 0", n)
	}
	if n := tl.RemoveMany(nil); n != 0 {
		t.Errorf("RemoveMany(nil) = %d, want 0", n)
	}
	if tl.Apply(protocol.DeleteMessage{IDs: []protocol.MessageID{"x"}}) {
		t.Error("Apply(delete unknown) reported a change")
	}
	assertRows(t, tl, "h:2024-01-01", "m:1", "h:2024-01-02", "m:2")
}

func TestRemoveManyMixedIDs(t *testing.T) {
	tl := New(time.UTC)
	tl.ReplaceAll([]protocol.Message{
		msg("1", "2024-01-01T10:00:00Z"),
		msg("2", "2024-01-01T11:00:00Z"),
		msg("3", "2024-01-01T12:00:00Z"),
	})
	if n := tl.RemoveMany([]protocol.MessageID{"3", "missing", "1"}); n != 2 {
		t.Errorf("RemoveMany = %d, want 2", n)
	}
	assertRows(t, tl, "h:2024-01-01", "m:2")
	if tl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tl.Len())
	}
}

func TestRowsReturnsCopy(t *testing.T) {
	tl := New(time.UTC)
	tl.Append(msg("1", "2024-01-01T10:00:00Z"))
	rows := tl.Rows()
	rows[1].Message.Text = "mutated"

	got, _ := tl.Get("1")
	if got.Text == "mutated" {
		t.Error("Rows() exposed internal storage")
	}
}
