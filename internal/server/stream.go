package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event types sent on /v1/events.
const (
	EventState   = "state"
	EventCommand = "command"
	EventAlert   = "alert"
)

// subscriberBuffer is the number of events queued per client before new
// events are dropped for that client.
const subscriberBuffer = 32

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Event is one message on the event stream. Exactly one of the payload
// fields is set, matching Type.
type Event struct {
	Type    string       `json:"type"`
	State   *StateView   `json:"state,omitempty"`
	Command *CommandView `json:"command,omitempty"`
	Alert   *AlertView   `json:"alert,omitempty"`
}

// CommandView reports the command a finished cycle was classified as.
type CommandView struct {
	RequestID  uint64 `json:"request_id"`
	Transcript string `json:"transcript"`
	Command    string `json:"command"`
}

// AlertView is a user-facing alert.
type AlertView struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// broker fans events out to stream clients. A slow client loses events
// rather than blocking the publisher.
type broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("server: dropping event for slow client", "type", ev.Type)
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := s.broker.subscribe()
	defer unsubscribe()
	if s.alerts != nil {
		stop := s.alerts.Subscribe(func(title, message string) {
			s.broker.publishTo(events, Event{Type: EventAlert, Alert: &AlertView{Title: title, Message: message}})
		})
		defer stop()
	}

	ctx := conn.CloseRead(r.Context())
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	initial := newStateView(s.recorder.State())
	if err := write(ctx, conn, Event{Type: EventState, State: &initial}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				slog.Debug("server: event stream write failed", "err", err)
				return
			}
		}
	}
}

// publishTo delivers ev to a single subscriber if it is still registered.
func (b *broker) publishTo(ch <-chan Event, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub != ch {
			continue
		}
		select {
		case sub <- ev:
		default:
		}
		return
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
