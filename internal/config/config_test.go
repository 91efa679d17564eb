package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  dir: /data\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.Store.Dir)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Limits.MaxRefineAttempts)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TOOLFORGE_TEST_KEY", "sk-from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  api_key: ${TOOLFORGE_TEST_KEY}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  bogus_field: true\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault_MatchesLoadedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./data", cfg.Store.Dir)
	assert.Equal(t, "json", cfg.Logging.Format)
}
