package platform

import "sync"

// State is the app's foreground/background state.
type State int

const (
	// StateForeground means the app is visible and interactive.
	StateForeground State = iota
	// StateBackground means the app has been backgrounded by the host OS.
	StateBackground
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateForeground:
		return "foreground"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Lifecycle emits foreground/background transitions.
type Lifecycle interface {
	State() State
	Subscribe(fn func(State)) (cancel func())
}

// AppLifecycle is a manually driven Lifecycle the embedding app feeds
// from host OS callbacks.
type AppLifecycle struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewAppLifecycle creates a lifecycle source starting in the foreground.
func NewAppLifecycle() *AppLifecycle {
	return &AppLifecycle{state: StateForeground, subs: make(map[int]func(State))}
}

// State returns the current state.
func (l *AppLifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe registers a transition listener.
func (l *AppLifecycle) Subscribe(fn func(State)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// SetState records a transition and notifies subscribers when it changes
// the state.
func (l *AppLifecycle) SetState(state State) {
	l.mu.Lock()
	changed := l.state != state
	l.state = state
	fns := make([]func(State), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range fns {
		fn(state)
	}
}
