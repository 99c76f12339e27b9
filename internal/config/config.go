package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/uaproxy/internal/identity"
)

// Identity backing names accepted by identity.backing.
const (
	BackingMemory = "memory"
	BackingFile   = "file"
	BackingSQLite = "sqlite"
)

type Config struct {
	Server   ServerConfig
	Identity IdentityConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port      int
	ProxyPort int
	MCPStdio  bool
	APIToken  string
}

type IdentityConfig struct {
	Backing   string
	StateFile string
	DBFile    string
	Default   string
	PoolFile  string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      9999,
			ProxyPort: 8080,
		},
		Identity: IdentityConfig{
			Backing: BackingFile,
			Default: identity.DefaultUserAgent,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// StateFilePath returns the file used by the file backing. Unless set
// explicitly it lives in the data directory.
func (c Config) StateFilePath() string {
	if c.Identity.StateFile != "" {
		return c.Identity.StateFile
	}
	return filepath.Join(c.Storage.DataDir, "ua_state.json")
}

// DBFilePath returns the database used by the sqlite backing. Unless set
// explicitly it lives in the data directory.
func (c Config) DBFilePath() string {
	if c.Identity.DBFile != "" {
		return c.Identity.DBFile
	}
	return filepath.Join(c.Storage.DataDir, "uaproxy.db")
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	switch c.Identity.Backing {
	case BackingMemory, BackingFile, BackingSQLite:
	default:
		return fmt.Errorf("invalid identity.backing %q: want one of %s, %s, %s",
			c.Identity.Backing, BackingMemory, BackingFile, BackingSQLite)
	}
	for name, port := range map[string]int{"server.port": c.Server.Port, "server.proxy_port": c.Server.ProxyPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s %d: must be between 1 and 65535", name, port)
		}
	}
	if c.Server.Port == c.Server.ProxyPort {
		return fmt.Errorf("server.port and server.proxy_port must differ (both %d)", c.Server.Port)
	}
	if err := identity.Validate(c.Identity.Default); err != nil {
		return fmt.Errorf("invalid identity.default: %w", err)
	}
	return nil
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/uaproxy/config.toml and environment variables.
//
// Environment variables (UAPROXY_*) override file values. The control API
// token is only read from UAPROXY_API_TOKEN.
func Load() (Config, error) {
	return loadFromPath(configFilePath())
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.Identity.Backing = strings.ToLower(strings.TrimSpace(cfg.Identity.Backing))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "uaproxy-data"
		}
	}
	return filepath.Join(dir, "uaproxy")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "uaproxy", "config.toml")
}
