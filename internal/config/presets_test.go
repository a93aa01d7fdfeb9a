package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPresets(t *testing.T) {
	store, err := NewPresetStore("", zerolog.Nop())
	require.NoError(t, err)

	for _, name := range []string{PresetConservative, PresetNormal, PresetAggressive} {
		p, ok := store.Get(name)
		require.True(t, ok, name)
		assert.Greater(t, p.BatchSize, 0)
		assert.Greater(t, p.MessageDelay, time.Duration(0))
	}

	// Lookup is case-insensitive.
	_, ok := store.Get("NORMAL")
	assert.True(t, ok)

	_, ok = store.Get("warp-speed")
	assert.False(t, ok)
}

func TestRecommendByRecipientCount(t *testing.T) {
	store, err := NewPresetStore("", zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		count int
		want  string
	}{
		{1, PresetConservative},
		{50, PresetConservative},
		{51, PresetNormal},
		{500, PresetNormal},
		{501, PresetAggressive},
		{100000, PresetAggressive},
	}
	for _, tt := range tests {
		name, pacing := store.Recommend(tt.count)
		assert.Equal(t, tt.want, name, "count %d", tt.count)
		assert.Greater(t, pacing.BatchSize, 0)
	}
}

func TestPresetFileOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	content := `presets:
  normal:
    batch_size: 42
    message_delay: 250ms
    max_attempts: 5
    backoff_base: 3s
    backoff_cap: 45s
  vip:
    batch_size: 2
    message_delay: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store, err := NewPresetStore(path, zerolog.Nop())
	require.NoError(t, err)

	normal, ok := store.Get("normal")
	require.True(t, ok)
	assert.Equal(t, 42, normal.BatchSize)
	assert.Equal(t, 250*time.Millisecond, normal.MessageDelay)
	assert.Equal(t, 5, normal.MaxAttempts)

	// New names from the file are served alongside the builtins.
	vip, ok := store.Get("vip")
	require.True(t, ok)
	assert.Equal(t, 2, vip.BatchSize)
	assert.Equal(t, 5*time.Second, vip.MessageDelay)

	// Builtins not mentioned in the file stay intact.
	conservative, ok := store.Get(PresetConservative)
	require.True(t, ok)
	assert.Equal(t, 5, conservative.BatchSize)
}

func TestPresetFileInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  bad:\n    message_delay: nope\n"), 0o644))

	_, err := NewPresetStore(path, zerolog.Nop())
	require.Error(t, err)
}

func TestPresetFileMissing(t *testing.T) {
	_, err := NewPresetStore(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	require.Error(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  normal:\n    batch_size: 7\n"), 0o644))

	store, err := NewPresetStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Watch())
	defer store.Close()

	normal, _ := store.Get("normal")
	require.Equal(t, 7, normal.BatchSize)

	require.NoError(t, os.WriteFile(path, []byte("presets:\n  normal:\n    batch_size: 99\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p, _ := store.Get("normal"); p.BatchSize == 99 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("presets were not reloaded after file change")
}
