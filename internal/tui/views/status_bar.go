package views

import (
	"fmt"
	"time"

	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, connection state, mode and key hints.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	state   status.State
	mode    string
	hints   []string
	flash   string
	flashAt time.Time
	now     func() time.Time
}

const flashFor = 5 * time.Second

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, state: status.Idle, now: time.Now}
}

// SetSession updates the session id display.
func (sb *StatusBar) SetSession(id string) {
	sb.session = id
	sb.render()
}

// SetState updates the connection state.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetMode updates the interaction mode and hints for it.
func (sb *StatusBar) SetMode(mode string, hints []string) {
	sb.mode = mode
	sb.hints = hints
	sb.render()
}

// SetFlash shows msg for a few seconds.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.flashAt = sb.now()
	sb.render()
}

// Line returns the current bar text.
func (sb *StatusBar) Line() string {
	stateColor := sb.theme.StateWarnColor
	if sb.state == status.Open {
		stateColor = sb.theme.StateOKColor
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s",
		tview.Escape(sb.session), ui.Tag(stateColor), sb.state, sb.mode)
	for _, h := range sb.hints {
		line += "  " + h
	}
	if sb.flash != "" && sb.now().Sub(sb.flashAt) < flashFor {
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(sb.theme.FlashInfoColor), tview.Escape(sb.flash))
	}
	return line
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.Line())
}
