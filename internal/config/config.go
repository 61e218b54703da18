// Package config loads the archiver's configuration: an optional TOML
// file supplies defaults, then environment variables (the surface
// spec.md §6 names explicitly) override any field they set. This
// reorders the teacher's own TOML-then-env layering (env wins) rather
// than changing the mechanism.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config is the archiver's full runtime configuration.
type Config struct {
	DiscordToken       string `toml:"discord_token" envconfig:"DISCORD_TOKEN"`
	DefaultGuildID     uint64 `toml:"default_guild_id" envconfig:"DEFAULT_GUILD_ID"`
	PrimaryStoreURL    string `toml:"primary_store_url" envconfig:"PRIMARY_STORE_URL"`
	SecondaryStoreURL  string `toml:"secondary_store_url" envconfig:"SECONDARY_STORE_URL"`
	BindAddress        string `toml:"bind_address" envconfig:"BIND_ADDRESS"`
	BindPort           int    `toml:"bind_port" envconfig:"BIND_PORT"`
	ScrapeBatchSize    int    `toml:"scrape_batch_size" envconfig:"SCRAPE_BATCH_SIZE"`
	RequestDelayMillis int    `toml:"request_delay_millis" envconfig:"REQUEST_DELAY_MILLIS"`
	AutoDownload       bool   `toml:"auto_download" envconfig:"AUTO_DOWNLOAD"`
	AttachmentsPath    string `toml:"attachments_path" envconfig:"ATTACHMENTS_PATH"`
	LogLevel           string `toml:"log_level" envconfig:"LOG_LEVEL"`
}

// envPrefix names the WUMPUS_* environment variable namespace
// envconfig reads (e.g. WUMPUS_DISCORD_TOKEN).
const envPrefix = "wumpus"

// Default returns the archiver's baked-in defaults, applied before any
// TOML file or environment override.
func Default() Config {
	return Config{
		PrimaryStoreURL:    "file:wumpus.db",
		BindAddress:        "0.0.0.0",
		BindPort:           8080,
		ScrapeBatchSize:    1000,
		RequestDelayMillis: 500,
		AutoDownload:       false,
		AttachmentsPath:    "./attachments",
		LogLevel:           "info",
	}
}

// HasSecondarySource reports whether dual-source mode is enabled.
func (c Config) HasSecondarySource() bool {
	return strings.TrimSpace(c.SecondaryStoreURL) != ""
}

// Load builds a Config: Default(), overlaid by path's TOML contents if
// it exists, overlaid by any WUMPUS_* environment variable that is set.
// A missing path is not an error — the defaults (and any env overrides)
// still apply, matching the teacher's "run on defaults if config
// doesn't exist" tolerance.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: apply environment overrides: %w", err)
	}

	return cfg, nil
}

// ParseLogLevel resolves cfg.LogLevel via logrus.ParseLevel, falling
// back to logrus.InfoLevel on an empty or unrecognized value.
func ParseLogLevel(cfg Config) logrus.Level {
	if strings.TrimSpace(cfg.LogLevel) == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
