package views

import (
	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for new messages and edit drafts.
type Composer struct {
	*tview.InputField
	theme    *ui.Theme
	onSubmit func(text string)
	onCancel func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	c := &Composer{InputField: input, theme: theme}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if c.onSubmit != nil {
				c.onSubmit(c.GetText())
			}
		case tcell.KeyEscape:
			if c.onCancel != nil {
				c.onCancel()
			}
		}
	})
	c.SetEditing(false)

	return c
}

// SetOnSubmit sets the callback for Enter.
func (c *Composer) SetOnSubmit(fn func(text string)) {
	c.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (c *Composer) SetOnCancel(fn func()) {
	c.onCancel = fn
}

// SetEditing switches the label and title between composing and editing.
func (c *Composer) SetEditing(editing bool) {
	if editing {
		c.SetLabel(" edit > ")
		c.SetLabelColor(c.theme.EditingColor)
		c.SetTitle(" Editing (Enter save, Esc cancel) ")
		return
	}
	c.SetLabel(" > ")
	c.SetLabelColor(c.theme.MenuKeyColor)
	c.SetTitle(" Compose (i to focus) ")
}
