package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "UAPROXY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.proxy_port", typ: kInt, env: "UAPROXY_SERVER_PROXY_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.ProxyPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.ProxyPort },
	},
	{
		key: "server.mcp_stdio", typ: kBool, env: "UAPROXY_SERVER_MCP_STDIO",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPStdio = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPStdio },
	},
	{
		key: "server.api_token", typ: kString, env: "UAPROXY_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "identity.backing", typ: kString, env: "UAPROXY_IDENTITY_BACKING",
		apply:   func(cfg *Config, v any) { cfg.Identity.Backing = v.(string) },
		extract: func(cfg Config) any { return cfg.Identity.Backing },
	},
	{
		key: "identity.state_file", typ: kString, env: "UAPROXY_IDENTITY_STATE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Identity.StateFile = v.(string) },
		extract: func(cfg Config) any { return cfg.StateFilePath() },
	},
	{
		key: "identity.db_file", typ: kString, env: "UAPROXY_IDENTITY_DB_FILE",
		apply:   func(cfg *Config, v any) { cfg.Identity.DBFile = v.(string) },
		extract: func(cfg Config) any { return cfg.DBFilePath() },
	},
	{
		key: "identity.default", typ: kString, env: "UAPROXY_IDENTITY_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Identity.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Identity.Default },
	},
	{
		key: "identity.pool_file", typ: kString, env: "UAPROXY_IDENTITY_POOL_FILE",
		apply:   func(cfg *Config, v any) { cfg.Identity.PoolFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Identity.PoolFile },
	},
	{
		key: "storage.data_dir", typ: kString, env: "UAPROXY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "UAPROXY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "UAPROXY_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
