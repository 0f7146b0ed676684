package views

import (
	"strings"
	"testing"
	"time"

	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/tui/ui"
)

func TestStatusBarFlashExpires(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sb := NewStatusBar(ui.DefaultTheme())
	sb.now = func() time.Time { return now }

	sb.SetSession("s1")
	sb.SetState(status.Open)
	sb.SetMode("selecting", []string{"e:edit", "d:delete"})
	sb.SetFlash("Delete 2 messages?")

	line := sb.Line()
	for _, want := range []string{"s1", "OPEN", "selecting", "e:edit", "d:delete", "Delete 2 messages?"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	now = now.Add(flashFor)
	if strings.Contains(sb.Line(), "Delete 2 messages?") {
		t.Error("flash should expire")
	}
}
