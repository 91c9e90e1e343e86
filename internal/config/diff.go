package config

import (
	"fmt"
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the command classifier and the log level are applied live; every
// other section that changed is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CommandsChanged is true when the phrase overrides or the fuzzy
	// threshold changed.
	CommandsChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Commands.FuzzyThreshold != new.Commands.FuzzyThreshold ||
		!maps.EqualFunc(old.Commands.Phrases, new.Commands.Phrases, slices.Equal[[]string]) {
		d.CommandsChanged = true
	}

	if !serverEqual(old.Server, new.Server) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !captureEqual(old.Capture, new.Capture) {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Events != new.Events {
		d.RestartRequired = append(d.RestartRequired, "events")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// serverEqual ignores LogLevel, which is applied live.
func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.LogFormat != b.LogFormat {
		return false
	}
	switch {
	case a.TLS == nil && b.TLS == nil:
		return true
	case a.TLS == nil || b.TLS == nil:
		return false
	}
	return *a.TLS == *b.TLS
}

func captureEqual(a, b CaptureConfig) bool {
	return a.GraceDelay == b.GraceDelay &&
		slices.Equal(a.TeardownDelays, b.TeardownDelays) &&
		a.Quality == b.Quality &&
		a.SampleRate == b.SampleRate &&
		a.Language == b.Language &&
		a.RecordingsDir == b.RecordingsDir
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.Transcription, b.Transcription) &&
		slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual) &&
		entryEqual(a.Device, b.Device) &&
		entryEqual(a.Playback, b.Playback)
}

// entryEqual compares provider entries. Options are compared by key set and
// by the printed form of each value, which is enough for values decoded from
// YAML.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Proxy != b.Proxy || len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
