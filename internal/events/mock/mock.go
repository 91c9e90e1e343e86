// Package mock provides a recording test double for [events.Publisher].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/visionvoice/internal/events"
)

// Publisher records every published cycle.
type Publisher struct {
	mu sync.Mutex

	// Err is returned by [Publisher.Publish]. The cycle is recorded either way.
	Err error

	cycles []events.Cycle
}

var _ events.Publisher = (*Publisher)(nil)

// Publish implements [events.Publisher].
func (p *Publisher) Publish(_ context.Context, c events.Cycle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles = append(p.cycles, c)
	return p.Err
}

// Cycles returns a copy of the published cycles.
func (p *Publisher) Cycles() []events.Cycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Cycle, len(p.cycles))
	copy(out, p.cycles)
	return out
}
