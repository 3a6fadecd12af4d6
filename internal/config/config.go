// Package config loads forgevcs settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/odvcencio/forgevcs/pkg/repo"
)

// EnvStorageRoot overrides Storage.Root when set.
const EnvStorageRoot = "FORGEVCS_STORAGE_ROOT"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Storage   Storage   `toml:"storage"`
	Committer Committer `toml:"committer"`
	Journal   Journal   `toml:"journal"`
	Log       Log       `toml:"log"`
}

type Storage struct {
	// Root holds one bare repository per project.
	Root          string `toml:"root"`
	DefaultBranch string `toml:"default_branch"`
}

// Committer is the identity written on merge and snapshot commits.
type Committer struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type Journal struct {
	// Dir is the badger directory. Empty disables the journal.
	Dir string `toml:"dir"`
}

type Log struct {
	Level string `toml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Storage: Storage{
			Root:          "/var/lib/forgevcs/repositories",
			DefaultBranch: repo.DefaultBranchName,
		},
		Committer: Committer{
			Name:  repo.DefaultIdentity.Name,
			Email: repo.DefaultIdentity.Email,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults, applies the environment override and
// validates the result. A missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config %s: %w: unknown keys %s", path, ErrInvalidConfig, strings.Join(keys, ", "))
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if root := strings.TrimSpace(os.Getenv(EnvStorageRoot)); root != "" {
		c.Storage.Root = root
	}
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("%w: storage.root is empty", ErrInvalidConfig)
	}
	if !filepath.IsAbs(c.Storage.Root) {
		return fmt.Errorf("%w: storage.root %q is not absolute", ErrInvalidConfig, c.Storage.Root)
	}
	if err := repo.ValidateBranchName(c.Storage.DefaultBranch); err != nil {
		return fmt.Errorf("%w: storage.default_branch: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.Committer.Name) == "" || strings.TrimSpace(c.Committer.Email) == "" {
		return fmt.Errorf("%w: committer name and email are required", ErrInvalidConfig)
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}
