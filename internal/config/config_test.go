package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultStorePath, cfg.Store.Path)
	assert.Equal(t, 7, cfg.Features.LookbackDays)
	assert.Equal(t, "full", cfg.Training.Mode)
	assert.Equal(t, 100, cfg.Training.Epochs)
	assert.Equal(t, 10, cfg.Training.Patience)
	assert.Equal(t, []int{16, 8}, cfg.Training.HiddenUnits)
	assert.Equal(t, "v1.0.0", cfg.Versioning.BaseVersion)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "1h", cfg.Sweep.Interval)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
training:
  mode: fine-tune
  patience: 0
  hidden_units: [4]
sweep:
  enabled: false
  interval: ""
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fine_tune", cfg.Training.Mode)
	assert.Equal(t, 0, cfg.Training.Patience)
	assert.Equal(t, []int{4}, cfg.Training.HiddenUnits)
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, "", cfg.Sweep.Interval)
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "store:\n  path: /tmp/base.db\ntraining:\n  epochs: 20\n")
	path := writeFile(t, dir, "config.yaml", "include:\n  - base.yaml\ntraining:\n  epochs: 40\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/base.db", cfg.Store.Path)
	assert.Equal(t, 40, cfg.Training.Epochs)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"bad mode":       "training:\n  mode: transfer\n",
		"bad activation": "training:\n  activation: softmax\n",
		"bad units":      "training:\n  hidden_units: [8, 0]\n",
		"bad interval":   "sweep:\n  interval: often\n",
		"bad lr":         "training:\n  learning_rate: -1\n",
		"bad log level":  "app:\n  log_level: loud\n",
		"bad log format": "app:\n  log_format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "training:\n  epochs: 20\n")
	t.Setenv("REITLOOP_TRAINING_EPOCHS", "55")
	t.Setenv("REITLOOP_TRAINING_HIDDEN_UNITS", "12,6")
	t.Setenv("REITLOOP_STORE_PATH", "/tmp/env.db")
	t.Setenv("REITLOOP_CONFIG", "ignored.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 55, cfg.Training.Epochs)
	assert.Equal(t, []int{12, 6}, cfg.Training.HiddenUnits)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
}

func TestIncludeList(t *testing.T) {
	got, err := includeList([]any{" a.yaml ", "", "b.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, got)

	got, err = includeList("single.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"single.yaml"}, got)

	_, err = includeList([]any{1})
	assert.Error(t, err)
}
