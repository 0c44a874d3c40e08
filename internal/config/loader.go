package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".streampulse"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("STREAMPULSE_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load process env vars from ~/.config/streampulse/env (and fallbacks) first.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("STREAMPULSE_MONITOR", &cfg.Monitor)
	envconfig.Process("STREAMPULSE_CHAT", &cfg.Chat)
	envconfig.Process("STREAMPULSE_TWITCH", &cfg.Platforms.Twitch)
	envconfig.Process("STREAMPULSE_TWITTER", &cfg.Platforms.Twitter)
	envconfig.Process("STREAMPULSE_YOUTUBE", &cfg.Platforms.YouTube)
	envconfig.Process("STREAMPULSE_REDDIT", &cfg.Platforms.Reddit)
	envconfig.Process("STREAMPULSE_FEED", &cfg.Feed)
	envconfig.Process("STREAMPULSE_NOTIFY", &cfg.Notify)

	if cfg.Monitor.DefaultInterval <= 0 {
		cfg.Monitor.DefaultInterval = DefaultConfig().Monitor.DefaultInterval
	}
	if cfg.Monitor.MaxConcurrentCycles <= 0 {
		cfg.Monitor.MaxConcurrentCycles = DefaultConfig().Monitor.MaxConcurrentCycles
	}
	if cfg.Chat.Server == "" {
		cfg.Chat.Server = DefaultConfig().Chat.Server
	}
	if cfg.Chat.CollectDuration <= 0 {
		cfg.Chat.CollectDuration = DefaultConfig().Chat.CollectDuration
	}
	return cfg, nil
}

// Save writes the configuration to the config file, creating the
// directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
