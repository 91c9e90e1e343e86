// Package mock provides a recording [alert.Alerter] for tests.
package mock

import (
	"sync"

	"github.com/MrWong99/visionvoice/internal/alert"
)

// Call records a single Alert invocation.
type Call struct {
	Title   string
	Message string
}

// Alerter records every alert it receives. Safe for concurrent use.
type Alerter struct {
	mu    sync.Mutex
	calls []Call
}

var _ alert.Alerter = (*Alerter)(nil)

// Alert implements [alert.Alerter].
func (a *Alerter) Alert(title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Title: title, Message: message})
}

// Calls returns a copy of the recorded alerts.
func (a *Alerter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Count returns the number of recorded alerts.
func (a *Alerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// Player is a mock [alert.Player].
type Player struct {
	mu    sync.Mutex
	Err   error
	Plays int
}

var _ alert.Player = (*Player)(nil)

// Chime implements [alert.Player].
func (p *Player) Chime() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Plays++
	return p.Err
}
