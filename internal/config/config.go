package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Overrides api.base_url when set
const BaseURLEnvVar = "FLEETDESK_API_BASE_URL"

const DefaultBaseURL = "http://localhost:8080/transport"

type Config struct {
	ListenPort int    `toml:"port"`
	ListenHost string `toml:"host"`

	API struct {
		BaseURL string `toml:"base_url"`
		// Seconds before an outbound call fails as a transport error
		Timeout int `toml:"timeout"`
	} `toml:"api"`

	Session struct {
		// Optional. When set, token signatures are checked against this key set
		// before the claims are trusted for display.
		JWKSURL string `toml:"jwks_url"`
	} `toml:"session"`

	Storage struct {
		// One of "file", "redis" or "memory"
		Type string `toml:"type"`
		Path string `toml:"path"`

		Redis struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			DB       int    `toml:"db"`
			Prefix   string `toml:"prefix"`
		} `toml:"redis"`
	} `toml:"storage"`

	Log struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
	} `toml:"log"`

	Telemetry struct {
		// Off by default: spans are only exported when a collector is configured
		Enabled       bool   `toml:"enabled"`
		ServiceName   string `toml:"service_name"`
		Environment   string `toml:"environment"`
		CollectorAddr string `toml:"collector_addr"`
	} `toml:"telemetry"`

	AccessControl struct {
		// Whether to disable ACLs all togther (any logged in user can reach any route)
		DisableACLRules bool `toml:"disable_acl_rules"`

		// Required role, blank = disabled, will still take effect even if rules are disabled
		MandatoryRole string `toml:"mandatory_role"`

		// name => path patterns, a trailing * matches as a prefix
		RouteGroups map[string][]string `toml:"route_groups"`

		// role name => allowed route groups
		ACLs map[string][]string `toml:"acls"`

		flattenedACLs map[string][]string
	} `toml:"access_control"`
}

// TOML marshaller doesn't override fields that weren't set in the TOML, so we can apply defaults here
func (c *Config) setDefaults() {
	c.ListenPort = 8090
	c.ListenHost = "127.0.0.1"

	c.API.BaseURL = DefaultBaseURL
	c.API.Timeout = 15

	c.Storage.Type = "file"
	c.Storage.Redis.Addr = "localhost:6379"
	c.Storage.Redis.Prefix = "fleetdesk:"

	c.Log.Level = "info"

	c.Telemetry.ServiceName = "fleetdesk-console"
	c.Telemetry.CollectorAddr = "localhost:4317"

	c.AccessControl.DisableACLRules = false
}

// Flattens out route groups into a role => []pattern map
func (c *Config) flattenACLs() {
	flattened := make(map[string][]string)

	for roleName, allowedGroups := range c.AccessControl.ACLs {
		allowedForThisRole := make([]string, 0)

		// Dirty way to prevent dupes: assign them as a map key instead, then get them out later
		seen := make(map[string]struct{})

		for _, groupName := range allowedGroups {
			patterns, ok := c.AccessControl.RouteGroups[groupName]
			if !ok {
				continue
			}

			for _, pattern := range patterns {
				if _, dupe := seen[pattern]; dupe {
					continue
				}
				seen[pattern] = struct{}{}
				allowedForThisRole = append(allowedForThisRole, pattern)
			}
		}

		flattened[roleName] = allowedForThisRole
	}

	c.AccessControl.flattenedACLs = flattened
}

// Returns a flat role => []pattern map
func (c *Config) GetFlatACLs() map[string][]string {
	return c.AccessControl.flattenedACLs
}

// Every pattern that appears in any route group. Paths matching none of these are open to any logged in user.
func (c *Config) GuardedPatterns() []string {
	var out []string
	for _, patterns := range c.AccessControl.RouteGroups {
		out = append(out, patterns...)
	}
	return out
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// Default returns a config with defaults and the environment applied, as if loaded from an empty file.
func Default() *Config {
	conf := new(Config)
	conf.setDefaults()
	conf.applyEnv()
	conf.flattenACLs()
	return conf
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(BaseURLEnvVar)); v != "" {
		c.API.BaseURL = v
	}
}

// LoadFromTomlFileAndValidate reads the config at path. A missing file is not an error, defaults are used instead.
func LoadFromTomlFileAndValidate(path string) (*Config, error) {
	conf := new(Config)
	conf.setDefaults()

	file, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err == nil {
		if err := toml.Unmarshal(file, conf); err != nil {
			return nil, fmt.Errorf("couldn't parse %s: %w", path, err)
		}
	}

	conf.applyEnv()

	if err := conf.validate(); err != nil {
		return nil, err
	}

	conf.flattenACLs()

	return conf, nil
}

func (c *Config) validate() error {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %d", c.API.Timeout)
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ListenPort)
	}

	switch c.Storage.Type {
	case "memory", "redis":
	case "file":
		if c.Storage.Path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("no storage.path given and no user config dir available: %w", err)
			}
			c.Storage.Path = filepath.Join(dir, "fleetdesk", "session.json")
		}
	default:
		return fmt.Errorf("invalid storage type supplied (%s), valid types are \"file\", \"redis\" and \"memory\"", c.Storage.Type)
	}

	if c.Storage.Type == "redis" && c.Storage.Redis.Addr == "" {
		return errors.New("storage.redis.addr is required for the redis storage type")
	}

	if c.Session.JWKSURL != "" {
		if u, err := url.Parse(c.Session.JWKSURL); err != nil || u.Scheme == "" {
			return fmt.Errorf("session.jwks_url must be an absolute URL, got %q", c.Session.JWKSURL)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.CollectorAddr == "" {
		return errors.New("telemetry.collector_addr is required when telemetry is enabled")
	}

	return nil
}
