package views

import (
	"strings"
	"testing"
	"time"

	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/timeline"
)

func msgRow(id, client, text string, at time.Time) timeline.Row {
	return timeline.Row{Kind: timeline.RowMessage, Message: protocol.Message{
		ID: protocol.MessageID(id), ClientID: client, Text: text, SentAt: at,
	}}
}

func TestDayLabel(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		day  time.Time
		want string
	}{
		{day(2024, 3, 10), "Today"},
		{day(2024, 3, 9), "Yesterday"},
		{day(2024, 3, 1), "Fri, Mar 1"},
		{day(2023, 12, 31), "Sun, Dec 31 2023"},
	}
	for _, tt := range tests {
		if got := DayLabel(tt.day, now); got != tt.want {
			t.Errorf("DayLabel(%s) = %q, want %q", tt.day.Format(time.DateOnly), got, tt.want)
		}
	}
}

func TestRenderRowsMarksCursorAndSelection(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	edited := at.Add(time.Minute)
	rows := []timeline.Row{
		{Kind: timeline.RowHeader, Day: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		msgRow("1", "me", "first\nsecond line", at),
		msgRow("2", "coach", "[red]not a tag", at),
	}
	rows[2].Message.EditedAt = &edited

	out, cursorLine := RenderRows(rows, RenderOptions{
		ClientID: "me",
		Cursor:   "2",
		Selected: func(id protocol.MessageID) bool { return id == "1" },
		Now:      time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "── Today ──") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "●") || !strings.Contains(lines[1], "You") {
		t.Errorf("own selected line = %q", lines[1])
	}
	if strings.TrimSpace(lines[2]) != "second line" {
		t.Errorf("continuation line = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "▶") || !strings.Contains(lines[3], "coach") || !strings.Contains(lines[3], "(edited)") {
		t.Errorf("cursor line = %q", lines[3])
	}
	if !strings.Contains(lines[3], "[red[]") {
		t.Errorf("message text not escaped: %q", lines[3])
	}
	if cursorLine != 3 {
		t.Errorf("cursorLine = %d, want 3", cursorLine)
	}
}

func TestRenderRowsWithoutCursor(t *testing.T) {
	_, cursorLine := RenderRows([]timeline.Row{msgRow("1", "me", "hi", time.Now())}, RenderOptions{})
	if cursorLine != -1 {
		t.Errorf("cursorLine = %d, want -1", cursorLine)
	}
}

func TestThreadViewCursorFollowsNewest(t *testing.T) {
	v := NewThreadView(nil)
	at := time.Now()
	rows := []timeline.Row{msgRow("1", "a", "x", at), msgRow("2", "a", "y", at)}
	v.SetRows(rows, RenderOptions{})
	if id, _ := v.CursorID(); id != "2" {
		t.Fatalf("cursor = %q, want newest", id)
	}

	v.MoveCursor(-1)
	rows = append(rows, msgRow("3", "a", "z", at))
	v.SetRows(rows, RenderOptions{})
	if id, _ := v.CursorID(); id != "1" {
		t.Errorf("cursor = %q, want it to stay on 1", id)
	}

	v.MoveCursor(10)
	v.SetRows(append(rows, msgRow("4", "a", "w", at)), RenderOptions{})
	if id, _ := v.CursorID(); id != "4" {
		t.Errorf("cursor = %q, want newest after returning to the end", id)
	}
}
