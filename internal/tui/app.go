// Package tui is the terminal chat screen. It drives a chatroom.Controller
// in-process and redraws from the timeline on every change.
package tui

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/chatroom"
	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/fitlive/livechat/internal/tui/keys"
	"github.com/fitlive/livechat/internal/tui/ui"
	"github.com/fitlive/livechat/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageMain  = "main"
	pageShare = "share"
	pageHelp  = "help"
	pageAsk   = "confirm"

	scopeThread = "thread"
)

// AppParams wires the screen to the chat core.
type AppParams struct {
	SessionID      string
	ClientID       string
	ShareURL       string
	Transport      chatroom.Transport
	Timeline       *timeline.Timeline
	Bus            *bus.Bus
	Logger         *zap.Logger
	Dropped        prometheus.Counter
	ScrollDebounce time.Duration
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	theme     *ui.Theme
	registry  *keys.Registry
	thread    *views.ThreadView
	composer  *views.Composer
	statusBar *views.StatusBar
	share     *views.ShareView
	help      *views.HelpView

	ctrl      *chatroom.Controller
	timeline  *timeline.Timeline
	sessionID string
	clientID  string
	shareURL  string
	logger    *zap.Logger
	unsub     func()

	// editing mirrors whether the composer currently holds an edit draft.
	editing bool
	pending atomic.Bool
	follow  atomic.Bool
}

// NewApp creates the TUI application and its controller.
func NewApp(p AppParams) *App {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Timeline == nil {
		p.Timeline = timeline.New(nil)
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		theme:     theme,
		registry:  keys.NewRegistry(),
		thread:    views.NewThreadView(theme),
		composer:  views.NewComposer(theme),
		statusBar: views.NewStatusBar(theme),
		share:     views.NewShareView(theme),
		help:      views.NewHelpView(theme),
		timeline:  p.Timeline,
		sessionID: p.SessionID,
		clientID:  p.ClientID,
		shareURL:  p.ShareURL,
		logger:    p.Logger,
	}

	a.ctrl = chatroom.New(chatroom.Params{
		ClientID:       p.ClientID,
		Transport:      p.Transport,
		Timeline:       p.Timeline,
		Bus:            p.Bus,
		Logger:         p.Logger.Named("chatroom"),
		Dropped:        p.Dropped,
		ScrollDebounce: p.ScrollDebounce,
		OnChange:       a.scheduleRefresh,
		OnScroll: func() {
			a.follow.Store(true)
			a.scheduleRefresh()
		},
	})

	if p.Bus != nil {
		a.unsub = p.Bus.Subscribe(bus.KindStateChanged, func(evt bus.Event) {
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() { a.statusBar.SetState(change.To) })
		})
	}

	a.statusBar.SetSession(p.SessionID)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	a.refresh()

	return a
}

// Controller returns the chat controller the screen drives.
func (a *App) Controller() *chatroom.Controller {
	return a.ctrl
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.app.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 's',
		Description: "s:share", Visible: true,
		Handler: a.showShare,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "?:help", Visible: true,
		Handler: func() { a.pages.SwitchToPage(pageHelp) },
	})

	move := func(delta int) func() {
		return func() {
			a.thread.MoveCursor(delta)
			a.refresh()
		}
	}
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyRune, Rune: 'j', Handler: move(1)})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyDown, Handler: move(1)})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyRune, Rune: 'k', Handler: move(-1)})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyUp, Handler: move(-1)})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyRune, Rune: 'G', Handler: func() {
		a.thread.Follow()
		a.refresh()
	}})
	a.registry.Add(scopeThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer) },
	})
	a.registry.Add(scopeThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'v',
		Description: "v:select", Visible: true,
		Handler: a.longPress,
	})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyRune, Rune: ' ', Handler: a.tap})
	a.registry.Add(scopeThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'e',
		Description: "e:edit", Visible: true,
		Handler: a.startEdit,
	})
	a.registry.Add(scopeThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Description: "d:delete", Visible: true,
		Handler: a.confirmDelete,
	})
	a.registry.Add(scopeThread, &keys.Action{Key: tcell.KeyEscape, Handler: a.ctrl.Cancel})
}

func (a *App) setupCallbacks() {
	a.composer.SetChangedFunc(func(text string) {
		a.ctrl.SetText(text)
	})
	a.composer.SetOnSubmit(func(string) {
		wasEditing := a.ctrl.Mode() == chatroom.Editing
		if !a.ctrl.Submit() {
			if wasEditing {
				a.statusBar.SetFlash("Edit text is empty")
			}
			return
		}
		// refresh puts the compose text back after an edit
		if !wasEditing {
			a.composer.SetText("")
		}
		a.thread.Follow()
	})
	a.composer.SetOnCancel(func() {
		if a.ctrl.Mode() == chatroom.Editing {
			a.ctrl.Cancel()
			return
		}
		a.app.SetFocus(a.thread)
	})
}

func (a *App) setupLayout() {
	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, true).
		AddItem(a.composer, 3, 0, false)

	a.pages.AddPage(pageMain, layout, true, true)
	a.pages.AddPage(pageShare, a.share, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.thread)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		switch page {
		case pageShare, pageHelp:
			if event.Key() == tcell.KeyEscape || (event.Key() == tcell.KeyRune && event.Rune() == 'q') {
				a.pages.SwitchToPage(pageMain)
				a.app.SetFocus(a.thread)
				return nil
			}
			return event
		case pageAsk:
			return event
		}

		// The composer handles its own keys, including Enter and Esc.
		if a.composer.HasFocus() {
			return event
		}
		if a.registry.HandleEvent(scopeThread, event) {
			return nil
		}
		return event
	})
}

func (a *App) longPress() {
	id, ok := a.thread.CursorID()
	if !ok {
		return
	}
	if !a.ctrl.LongPress(id) {
		a.statusBar.SetFlash("Only your own messages can be selected")
	}
}

func (a *App) tap() {
	if id, ok := a.thread.CursorID(); ok {
		a.ctrl.Tap(id)
	}
}

func (a *App) startEdit() {
	if !a.ctrl.CanEdit() {
		a.statusBar.SetFlash("Select exactly one message to edit")
		return
	}
	if a.ctrl.StartEdit() {
		a.app.SetFocus(a.composer)
	}
}

func (a *App) confirmDelete() {
	if !a.ctrl.CanDelete() {
		a.statusBar.SetFlash("Select messages to delete first")
		return
	}
	selected := a.ctrl.Selected()
	want := make([]string, len(selected))
	for i, id := range selected {
		want[i] = string(id)
	}

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %d message(s)?", len(selected))).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage(pageAsk)
			a.app.SetFocus(a.thread)
			if label != "Delete" {
				return
			}
			// the server may have pruned the selection while the modal was up
			if !a.ctrl.Delete(func(ids []string) bool { return slices.Equal(ids, want) }) {
				a.statusBar.SetFlash("Selection changed, nothing deleted")
			}
		})
	a.pages.AddPage(pageAsk, modal, true, true)
	a.app.SetFocus(modal)
}

func (a *App) showShare() {
	a.share.Show(a.shareURL)
	a.pages.SwitchToPage(pageShare)
}

// scheduleRefresh coalesces redraw requests from the transport goroutine.
func (a *App) scheduleRefresh() {
	if a.pending.Swap(true) {
		return
	}
	go a.app.QueueUpdateDraw(func() {
		a.pending.Store(false)
		a.refresh()
	})
}

// refresh redraws everything from controller and timeline state. It runs on
// the UI goroutine.
func (a *App) refresh() {
	if a.follow.Swap(false) {
		a.thread.Follow()
	}

	mode := a.ctrl.Mode()
	draft, editing := a.ctrl.Draft()

	switch {
	case editing && !a.editing:
		a.editing = true
		a.composer.SetEditing(true)
		a.composer.SetText(draft.Text)
	case !editing && a.editing:
		a.editing = false
		a.composer.SetEditing(false)
		a.composer.SetText(a.ctrl.Text())
	}

	opts := views.RenderOptions{
		ClientID: a.clientID,
		Selected: a.ctrl.IsSelected,
	}
	if editing {
		opts.Editing = draft.Target.ID
	}
	a.thread.SetRows(a.timeline.Rows(), opts)
	a.thread.SetTitle(fmt.Sprintf(" %s (%d) ", a.sessionID, a.timeline.Len()))

	hints := a.registry.Hints(scopeThread)
	if mode == chatroom.Selecting {
		hints = append([]string{fmt.Sprintf("%d selected", len(a.ctrl.Selected()))}, hints...)
	}
	a.statusBar.SetMode(mode.String(), hints)
}

// Mount connects the controller to the session.
func (a *App) Mount() error {
	return a.ctrl.Mount(a.sessionID)
}

// Run starts the TUI application. Blocks until quit.
func (a *App) Run() error {
	return a.app.Run()
}

// Close unmounts the controller and detaches from the bus. Call after Run
// returns.
func (a *App) Close() {
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
	a.ctrl.Unmount()
}
