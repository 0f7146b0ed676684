package views

import (
	"fmt"
	"strings"

	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// ShareView shows the session endpoint as a QR code so another device can
// join the same chat.
type ShareView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewShareView creates a new share view.
func NewShareView(theme *ui.Theme) *ShareView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Share Session ")
	tv.SetTitleColor(theme.TitleColor)

	return &ShareView{TextView: tv, theme: theme}
}

// Show renders url as a QR code with the url printed below it.
func (sv *ShareView) Show(url string) {
	sv.Clear()
	qr, err := RenderQR(url)
	if err != nil {
		_, _ = fmt.Fprintf(sv, "\n\n  QR generation failed: %s", tview.Escape(err.Error()))
		return
	}
	_, _ = fmt.Fprintf(sv, "\n%s\n  %s\n\n  [::d]Esc to go back", qr, tview.Escape(url))
}

// RenderQR converts content to a compact QR code using Unicode half-block
// characters, two bitmap rows per text line.
func RenderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", err
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
