package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stakepool/crypto"
)

// Config carries the daemon settings loaded from the TOML file.
type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	RPCAuthToken  string   `toml:"RPCAuthToken"`
	PausedModules []string `toml:"PausedModules,omitempty"`
	Pool          Pool     `toml:"Pool"`
}

// Pool describes the genesis parameters used when the pool record does not
// exist yet. The manager identity is immutable after creation.
type Pool struct {
	Manager        string `toml:"Manager"`
	StakeAsset     string `toml:"StakeAsset"`
	StakeEndpoint  string `toml:"StakeEndpoint"`
	RewardAsset    string `toml:"RewardAsset,omitempty"`
	RewardEndpoint string `toml:"RewardEndpoint,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8661",
		DataDir:       "./stakepool-data",
	}
}

// Load reads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %s", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the address fields decode and mandatory settings are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Pool.Manager", c.Pool.Manager},
		{"Pool.StakeAsset", c.Pool.StakeAsset},
		{"Pool.RewardAsset", c.Pool.RewardAsset},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

// IsPaused reports whether a module name appears in PausedModules. It
// implements the pause view consumed by the pool engine.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	for _, paused := range c.PausedModules {
		if strings.EqualFold(strings.TrimSpace(paused), module) {
			return true
		}
	}
	return false
}
