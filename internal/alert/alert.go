// Package alert delivers user-facing error notifications.
//
// Alerts are fire-and-forget: an [Alerter] never reports failure back to the
// caller and must not block the recording state machine for long. The
// messages the capture cycle raises are defined here so every sink shows the
// same text.
package alert

import (
	"log/slog"
	"sync"
)

// TitleError is the title used for every capture failure alert.
const TitleError = "Erro"

// User-facing messages raised by the capture cycle.
const (
	MessageStartFailed      = "Não foi possível iniciar a gravação."
	MessageUnreadableAudio  = "Não foi possível ler o arquivo de áudio"
	MessageTranscribeFailed = "Não foi possível transcrever o áudio. Verifique se o serviço de transcrição está disponível."
)

// Alerter shows a titled message to the user.
type Alerter interface {
	Alert(title, message string)
}

// Func adapts an ordinary function to the [Alerter] interface.
type Func func(title, message string)

// Alert calls f(title, message).
func (f Func) Alert(title, message string) { f(title, message) }

// LogAlerter writes alerts to a structured logger at warn level.
type LogAlerter struct {
	// Logger receives the alerts. Nil means [slog.Default].
	Logger *slog.Logger
}

var _ Alerter = LogAlerter{}

// Alert implements [Alerter].
func (a LogAlerter) Alert(title, message string) {
	l := a.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn("alert", "title", title, "message", message)
}

// Broadcast fans an alert out to several alerters in order. Nil entries are
// skipped.
type Broadcast []Alerter

var _ Alerter = Broadcast(nil)

// Alert implements [Alerter].
func (b Broadcast) Alert(title, message string) {
	for _, a := range b {
		if a != nil {
			a.Alert(title, message)
		}
	}
}

// Player plays a short notification sound.
type Player interface {
	Chime() error
}

// Chime plays an audible tone for every alert. Playback errors are logged
// once per distinct message and otherwise ignored.
type Chime struct {
	player Player

	mu     sync.Mutex
	warned map[string]bool
}

var _ Alerter = (*Chime)(nil)

// NewChime returns a [Chime] that plays through p.
func NewChime(p Player) *Chime {
	return &Chime{player: p, warned: make(map[string]bool)}
}

// Alert implements [Alerter].
func (c *Chime) Alert(_, _ string) {
	err := c.player.Chime()
	if err == nil {
		return
	}
	c.mu.Lock()
	first := !c.warned[err.Error()]
	c.warned[err.Error()] = true
	c.mu.Unlock()
	if first {
		slog.Warn("alert: chime failed", "err", err)
	}
}

// Subscriber receives alerts forwarded by a [Hub].
type Subscriber func(title, message string)

// Hub is an [Alerter] that forwards alerts to a dynamic set of subscribers,
// such as connected event stream clients.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]Subscriber
}

var _ Alerter = (*Hub)(nil)

// NewHub returns an empty [Hub].
func NewHub() *Hub {
	return &Hub{subs: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Alert implements [Alerter].
func (h *Hub) Alert(title, message string) {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(title, message)
	}
}
