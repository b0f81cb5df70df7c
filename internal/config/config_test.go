package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.ShowHidden)
	assert.InDelta(t, 7.0, cfg.EditTolerancePx, 1e-9)
	assert.InDelta(t, 50.0, cfg.OverlaySizePx, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	cfg.ShowHidden = false
	cfg.EditTolerancePx = 12
	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, loaded.ShowHidden)
	assert.InDelta(t, 12.0, loaded.EditTolerancePx, 1e-9)
	assert.InDelta(t, 50.0, loaded.OverlaySizePx, 1e-9)
}

func TestLoadMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte("show_hidden = [nope"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "geocat")
	cfg := Default()
	cfg.SetPath(dir)

	require.NoError(t, cfg.Save())
	_, err := os.Stat(filepath.Join(dir, SettingsFile))
	assert.NoError(t, err)
}

func TestSaveWithoutPathFails(t *testing.T) {
	assert.Error(t, Default().Save())
}
