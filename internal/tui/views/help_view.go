package views

import (
	"fmt"

	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Thread[-:-:-]

  [%[1]s]j/Down[-:-:-] Next message       [%[1]s]k/Up[-:-:-]   Previous message
  [%[1]s]G[-:-:-]      Jump to newest     [%[1]s]i[-:-:-]      Focus composer
  [%[1]s]v[-:-:-]      Select own message [%[1]s]Space[-:-:-]  Toggle selection
  [%[1]s]e[-:-:-]      Edit selected      [%[1]s]d[-:-:-]      Delete selected
  [%[1]s]Esc[-:-:-]    Clear selection

  [::b]Composer[-:-:-]

  [%[1]s]Enter[-:-:-]  Send or save edit  [%[1]s]Esc[-:-:-]    Cancel edit / leave

  [::b]Global[-:-:-]

  [%[1]s]s[-:-:-]      Share session QR   [%[1]s]?[-:-:-]      Help
  [%[1]s]q[-:-:-]      Quit               [%[1]s]Ctrl-C[-:-:-] Quit immediately
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
