package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings by scope. Bindings keep registration order so
// hints render stably and the first match wins.
type Registry struct {
	global []*Action
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// AddGlobal registers a binding active in every scope.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// Add registers a binding for one scope.
func (r *Registry) Add(scope string, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Hints returns visible descriptions for scope, scope bindings first.
func (r *Registry) Hints(scope string) []string {
	var hints []string
	for _, a := range r.scopes[scope] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.global {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent dispatches ev to the first matching action in scope, then the
// global bindings. Returns true if a handler ran.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, a := range r.scopes[scope] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
