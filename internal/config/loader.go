package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/visionvoice/internal/command"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcription": {"google", "openai", "whisper", "whisper-native"},
	"device":        {"portaudio"},
	"playback":      {"speaker", "none"},
}

// LoadEnv loads KEY=value pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are skipped so a deployment without a .env file still starts.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("config: env file not found", "path", p)
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("config: env file loaded", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} and $VAR references are expanded from the environment before
// decoding. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, tint", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Capture
	switch cfg.Capture.Quality {
	case "", "low", "high":
	default:
		errs = append(errs, fmt.Errorf("capture.quality %q is invalid; valid values: low, high", cfg.Capture.Quality))
	}
	for i, d := range cfg.Capture.TeardownDelays {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("capture.teardown_delays[%d] %s must be positive", i, d))
		}
	}

	// Providers
	if cfg.Providers.Transcription.Name == "" {
		errs = append(errs, errors.New("providers.transcription.name is required"))
	}
	validateProviderName("transcription", cfg.Providers.Transcription.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("transcription", fb.Name)
	}
	validateProviderName("device", cfg.Providers.Device.Name)
	validateProviderName("playback", cfg.Providers.Playback.Name)

	// Commands
	if _, err := cfg.Commands.Table(); err != nil {
		errs = append(errs, fmt.Errorf("commands.phrases: %w", err))
	}
	if t := cfg.Commands.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("commands.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}

	// Events
	if cfg.Events.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("events.redis_db %d must not be negative", cfg.Events.RedisDB))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// Table builds the classifier table described by c. With no overrides it
// returns [command.DefaultTable].
func (c CommandsConfig) Table() (command.Table, error) {
	if len(c.Phrases) == 0 {
		return command.DefaultTable(), nil
	}
	phrases := make(map[command.Command][]string, len(c.Phrases))
	for name, list := range c.Phrases {
		phrases[command.Command(name)] = list
	}
	return command.TableFromPhrases(phrases)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
