package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
name: "docs-test"
version: "0.1.0"
docs:
  root: "./docs"
`

func TestLoadAppliesDefaults(t *testing.T) {
	loader := NewLoader()

	cfg, raw, err := loader.LoadFromFile(context.Background(), writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.NotNil(t, raw)

	assert.Equal(t, "docs-test", cfg.Name)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "README.md", cfg.Docs.IndexFile)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.Limits.TTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Watcher.Debounce)
}

func TestLoadOverridesDefaults(t *testing.T) {
	loader := NewLoader()

	path := writeConfig(t, `
name: "docs-test"
version: "0.1.0"
docs:
  root: "/srv/docs"
  index_file: "index.md"
server:
  http:
    port: 9090
cache:
  enabled: true
  limits:
    max_entries: 10
    max_total_bytes: 1024
    ttl: 5m
`)

	cfg, _, err := loader.LoadFromFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, "index.md", cfg.Docs.IndexFile)
	assert.Equal(t, 10, cfg.Cache.Limits.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Cache.Limits.TTL)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	loader := NewLoader()

	path := writeConfig(t, `
name: "docs-test"
version: "0.1.0"
docs:
  root: "./docs"
server:
  http:
    port: 99999
`)

	_, _, err := loader.LoadFromFile(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	loader := NewLoader()

	path := writeConfig(t, "name: [unclosed")

	_, _, err := loader.LoadFromFile(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrConfigParseFailed)
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader()

	_, _, err := loader.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestManagerGetValue(t *testing.T) {
	manager, err := NewConfigurationManager(context.Background(), writeConfig(t, `
name: "docs-test"
version: "0.1.0"
docs:
  root: "./docs"
  theme: "dracula"
`))
	require.NoError(t, err)

	assert.Equal(t, "dracula", manager.GetValue("docs.theme", ""))
	assert.Equal(t, "fallback", manager.GetValue("docs.unknown", "fallback"))
	assert.Equal(t, "docs-test", manager.GetConfig().Name)
}

func TestManagerGetAs(t *testing.T) {
	manager, err := NewConfigurationManager(context.Background(), writeConfig(t, `
name: "docs-test"
version: "0.1.0"
docs:
  root: "./docs"
  extensions: [".md", ".txt"]
`))
	require.NoError(t, err)

	var extensions []string
	require.NoError(t, manager.GetAs("docs.extensions", &extensions))
	assert.Equal(t, []string{".md", ".txt"}, extensions)
}
