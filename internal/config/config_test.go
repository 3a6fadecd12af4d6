package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forgevcs.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "main", cfg.Storage.DefaultBranch)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Journal.Dir)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Setenv(EnvStorageRoot, "")
	path := writeConfig(t, `
[storage]
root = "/srv/repos"

[committer]
name = "Forge Bot"
email = "bot@forge.test"

[journal]
dir = "/srv/journal"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/repos", cfg.Storage.Root)
	assert.Equal(t, "main", cfg.Storage.DefaultBranch, "unset keys keep their defaults")
	assert.Equal(t, "Forge Bot", cfg.Committer.Name)
	assert.Equal(t, "bot@forge.test", cfg.Committer.Email)
	assert.Equal(t, "/srv/journal", cfg.Journal.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvStorageRoot, "/data/override")
	cfg, err := Load(writeConfig(t, "[storage]\nroot = \"/srv/repos\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/override", cfg.Storage.Root)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvStorageRoot, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[storage\nroot = 1"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[storage]\nrut = \"/x\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"empty root":    func(c *Config) { c.Storage.Root = "" },
		"relative root": func(c *Config) { c.Storage.Root = "repos" },
		"bad branch":    func(c *Config) { c.Storage.DefaultBranch = "bad..name" },
		"no committer":  func(c *Config) { c.Committer.Email = "" },
		"bad log level": func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
