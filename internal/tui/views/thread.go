package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/rivo/tview"
)

// RenderOptions controls how timeline rows are drawn.
type RenderOptions struct {
	ClientID string
	Cursor   protocol.MessageID
	Editing  protocol.MessageID
	Selected func(protocol.MessageID) bool
	Now      time.Time
	Theme    *ui.Theme
}

// RenderRows formats rows as tview markup, one header line per day header and
// one or more lines per message. It also returns the line the cursor message
// starts on, or -1.
func RenderRows(rows []timeline.Row, o RenderOptions) (string, int) {
	theme := o.Theme
	if theme == nil {
		theme = ui.DefaultTheme()
	}
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}

	var b strings.Builder
	line, cursorLine := 0, -1
	for _, r := range rows {
		if r.Kind == timeline.RowHeader {
			fmt.Fprintf(&b, "[%s::b]── %s ──[-:-:-]\n", ui.Tag(theme.HeaderColor), DayLabel(r.Day, now))
			line++
			continue
		}

		m := r.Message
		cur, sym := " ", " "
		switch {
		case m.ID == o.Editing:
			sym = fmt.Sprintf("[%s]✎[-]", ui.Tag(theme.EditingColor))
		case o.Selected != nil && o.Selected(m.ID):
			sym = fmt.Sprintf("[%s]●[-]", ui.Tag(theme.SelectedColor))
		}
		if m.ID == o.Cursor {
			cursorLine = line
			cur = "▶"
		}
		marker := cur + sym + " "

		who, color := m.ClientID, theme.PeerColor
		if m.ClientID == o.ClientID {
			who, color = "You", theme.OwnColor
		}
		edited := ""
		if m.EditedAt != nil {
			edited = " [::d](edited)[-:-:-]"
		}

		text := tview.Escape(sanitizeForTerminal(m.Text))
		parts := strings.Split(text, "\n")
		fmt.Fprintf(&b, "%s[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s  %s\n",
			marker, ui.Tag(color), tview.Escape(sanitizeForTerminal(who)),
			m.SentAt.Local().Format("15:04"), edited, parts[0])
		line++
		for _, p := range parts[1:] {
			fmt.Fprintf(&b, "      %s\n", p)
			line++
		}
	}
	return b.String(), cursorLine
}

// DayLabel names a calendar day relative to now.
func DayLabel(day, now time.Time) string {
	y, m, d := now.In(day.Location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == y:
		return day.Format("Mon, Jan 2")
	default:
		return day.Format("Mon, Jan 2 2006")
	}
}

// ThreadView shows the session timeline with a message cursor.
type ThreadView struct {
	*tview.TextView
	theme  *ui.Theme
	ids    []protocol.MessageID
	cursor int
	follow bool
}

// NewThreadView creates an empty thread view.
func NewThreadView(theme *ui.Theme) *ThreadView {
	if theme == nil {
		theme = ui.DefaultTheme()
	}
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Chat ")
	tv.SetTitleColor(theme.TitleColor)

	return &ThreadView{TextView: tv, theme: theme, cursor: -1, follow: true}
}

// SetRows replaces the drawn rows. The cursor stays on the same message when
// it still exists and follows the newest message when it was already there.
func (v *ThreadView) SetRows(rows []timeline.Row, o RenderOptions) {
	prev, hadCursor := v.CursorID()
	v.ids = v.ids[:0]
	for _, r := range rows {
		if r.Kind == timeline.RowMessage {
			v.ids = append(v.ids, r.Message.ID)
		}
	}

	v.cursor = len(v.ids) - 1
	if hadCursor && !v.follow {
		for i, id := range v.ids {
			if id == prev {
				v.cursor = i
				break
			}
		}
	}

	o.Cursor, _ = v.CursorID()
	if o.Theme == nil {
		o.Theme = v.theme
	}
	text, cursorLine := RenderRows(rows, o)
	v.Clear()
	_, _ = fmt.Fprint(v, text)
	if cursorLine >= 0 && !v.follow {
		v.ScrollTo(cursorLine, 0)
	} else {
		v.ScrollToEnd()
	}
}

// CursorID returns the message under the cursor.
func (v *ThreadView) CursorID() (protocol.MessageID, bool) {
	if v.cursor < 0 || v.cursor >= len(v.ids) {
		return "", false
	}
	return v.ids[v.cursor], true
}

// MoveCursor moves the cursor by delta messages. Reaching the newest message
// turns following back on.
func (v *ThreadView) MoveCursor(delta int) {
	if len(v.ids) == 0 {
		return
	}
	v.cursor = min(max(v.cursor+delta, 0), len(v.ids)-1)
	v.follow = v.cursor == len(v.ids)-1
}

// Follow moves the cursor to the newest message and keeps it there.
func (v *ThreadView) Follow() {
	v.follow = true
	v.cursor = len(v.ids) - 1
}
