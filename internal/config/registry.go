package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	transcription map[string]func(ProviderEntry) (stt.Transcriber, error)
	device        map[string]func(ProviderEntry) (audio.Device, error)
	playback      map[string]func(ProviderEntry) (audio.Playback, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcription: make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		device:        make(map[string]func(ProviderEntry) (audio.Device, error)),
		playback:      make(map[string]func(ProviderEntry) (audio.Playback, error)),
	}
}

// RegisterTranscriber registers a transcription backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription[name] = factory
}

// RegisterDevice registers a recording device factory under name.
func (r *Registry) RegisterDevice(name string, factory func(ProviderEntry) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device[name] = factory
}

// RegisterPlayback registers a playback factory under name.
func (r *Registry) RegisterPlayback(name string, factory func(ProviderEntry) (audio.Playback, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback[name] = factory
}

// CreateTranscriber instantiates a transcription backend using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.transcription[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcription/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDevice instantiates a recording device using the factory registered under entry.Name.
func (r *Registry) CreateDevice(entry ProviderEntry) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.device[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePlayback instantiates a playback channel using the factory registered under entry.Name.
func (r *Registry) CreatePlayback(entry ProviderEntry) (audio.Playback, error) {
	r.mu.RLock()
	factory, ok := r.playback[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: playback/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted names registered for kind ("transcription",
// "device", or "playback"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "transcription":
		for n := range r.transcription {
			names = append(names, n)
		}
	case "device":
		for n := range r.device {
			names = append(names, n)
		}
	case "playback":
		for n := range r.playback {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// OptionString returns entry.Options[key] as a string, or def when absent or
// not a string.
func (e ProviderEntry) OptionString(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// OptionBool returns entry.Options[key] as a bool, or def when absent or not
// a bool.
func (e ProviderEntry) OptionBool(key string, def bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return def
}

// OptionInt returns entry.Options[key] as an int, or def when absent or not
// numeric.
func (e ProviderEntry) OptionInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
