package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"lealta/internal/models"
)

// Preset names, ordered from safest to fastest. These mirror the provider
// tiers: conservative for new/sandbox accounts, normal for verified
// accounts, aggressive for approved high-volume senders.
const (
	PresetConservative = "conservative"
	PresetNormal       = "normal"
	PresetAggressive   = "aggressive"
)

// presetFile is the YAML shape of the pacing presets file. Durations are
// written as Go duration strings ("2s", "500ms").
type presetFile struct {
	Presets map[string]presetEntry `yaml:"presets"`
}

type presetEntry struct {
	BatchSize    int    `yaml:"batch_size"`
	MessageDelay string `yaml:"message_delay"`
	MaxAttempts  int    `yaml:"max_attempts"`
	BackoffBase  string `yaml:"backoff_base"`
	BackoffCap   string `yaml:"backoff_cap"`
}

// PresetStore serves named pacing presets. When backed by a file it can
// hot-reload on change; without a file it serves built-in defaults.
type PresetStore struct {
	mu      sync.RWMutex
	presets map[string]models.PacingConfig

	path    string
	watcher *fsnotify.Watcher
	log     zerolog.Logger
}

// builtinPresets returns the compiled-in tiers used when no presets file
// is configured.
func builtinPresets() map[string]models.PacingConfig {
	return map[string]models.PacingConfig{
		PresetConservative: {
			BatchSize:    5,
			MessageDelay: 2 * time.Second,
			MaxAttempts:  4,
			BackoffBase:  10 * time.Second,
			BackoffCap:   2 * time.Minute,
		},
		PresetNormal: {
			BatchSize:    10,
			MessageDelay: time.Second,
			MaxAttempts:  3,
			BackoffBase:  2 * time.Second,
			BackoffCap:   60 * time.Second,
		},
		PresetAggressive: {
			BatchSize:    20,
			MessageDelay: 500 * time.Millisecond,
			MaxAttempts:  2,
			BackoffBase:  time.Second,
			BackoffCap:   30 * time.Second,
		},
	}
}

// NewPresetStore creates a preset store. path may be empty, in which case
// only the built-in presets are served.
func NewPresetStore(path string, log zerolog.Logger) (*PresetStore, error) {
	s := &PresetStore{
		presets: builtinPresets(),
		path:    path,
		log:     log,
	}
	if path != "" {
		if err := s.reload(); err != nil {
			return nil, fmt.Errorf("failed to load pacing presets: %w", err)
		}
	}
	return s, nil
}

// Get returns the preset for the given name. The lookup is
// case-insensitive; unknown names return ok=false.
func (s *PresetStore) Get(name string) (models.PacingConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[strings.ToLower(name)]
	return p, ok
}

// Recommend picks a preset tier by recipient count: small sends get the
// conservative tier, mid-size the normal tier, large the aggressive tier.
func (s *PresetStore) Recommend(recipientCount int) (string, models.PacingConfig) {
	name := PresetAggressive
	switch {
	case recipientCount <= 50:
		name = PresetConservative
	case recipientCount <= 500:
		name = PresetNormal
	}
	p, _ := s.Get(name)
	return name, p
}

// Watch starts a file watcher that reloads presets on change. It returns
// immediately; reloads happen in the background until the watcher closes.
func (s *PresetStore) Watch() error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create preset watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch preset dir: %w", err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := s.reload(); err != nil {
					s.log.Warn().Err(err).Msg("preset reload failed, keeping previous presets")
					continue
				}
				s.log.Info().Str("path", s.path).Msg("pacing presets reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("preset watcher error")
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (s *PresetStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// reload parses the presets file and swaps the preset table. Built-in
// tiers remain available for names the file does not define.
func (s *PresetStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	merged := builtinPresets()
	for name, entry := range file.Presets {
		pacing, err := entry.toPacing(name)
		if err != nil {
			return err
		}
		merged[strings.ToLower(name)] = pacing
	}

	s.mu.Lock()
	s.presets = merged
	s.mu.Unlock()
	return nil
}

func (e presetEntry) toPacing(name string) (models.PacingConfig, error) {
	p := models.PacingConfig{
		BatchSize:   e.BatchSize,
		MaxAttempts: e.MaxAttempts,
	}

	var err error
	if p.MessageDelay, err = parsePresetDuration(name, "message_delay", e.MessageDelay); err != nil {
		return p, err
	}
	if p.BackoffBase, err = parsePresetDuration(name, "backoff_base", e.BackoffBase); err != nil {
		return p, err
	}
	if p.BackoffCap, err = parsePresetDuration(name, "backoff_cap", e.BackoffCap); err != nil {
		return p, err
	}

	p.Normalize()
	return p, nil
}

func parsePresetDuration(preset, field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("preset %s: invalid %s %q: %w", preset, field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("preset %s: %s must be >= 0", preset, field)
	}
	return d, nil
}
