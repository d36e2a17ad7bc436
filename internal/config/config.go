// Package config loads and validates the server's runtime configuration
// from defaults, an optional YAML file, and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opsrcon/rcond/internal/auth"
)

// Config is the validated, immutable-after-construction set of runtime
// parameters listed in the server's external interface table. Zero values
// are never used directly — always obtain a Config through Load, which
// applies defaults and validates, or Default, whose values pass Validate.
type Config struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	MaxConnections  int    `mapstructure:"max_connections" yaml:"max_connections"`
	MaxFrameSize    int    `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	ReadTimeoutMs   int    `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
	AcceptTimeoutMs int    `mapstructure:"accept_timeout_ms" yaml:"accept_timeout_ms"`

	// Credential is the on-disk form base64(salt):base64(digest), or
	// "none"/empty to run in insecure mode.
	Credential string `mapstructure:"credential" yaml:"credential"`
}

// envPrefix is the prefix for environment-variable overrides, e.g.
// RCON_PORT, RCON_MAX_CONNECTIONS.
const envPrefix = "RCON"

// Default returns the configuration with every field at its documented
// default value and no credential configured (insecure mode).
func Default() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            25575,
		MaxConnections:  10,
		MaxFrameSize:    4096,
		ReadTimeoutMs:   30000,
		AcceptTimeoutMs: 5000,
		Credential:      "",
	}
}

// Load builds a Config by layering, lowest precedence first: the
// defaults, an optional YAML file at path (skipped when path is empty; a
// non-empty path that cannot be read is an error), and RCON_-prefixed
// environment variables. The
// result is validated before being returned; an invalid configuration is
// a fatal-to-server error and the caller must not start the listener.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("max_connections", def.MaxConnections)
	v.SetDefault("max_frame_size", def.MaxFrameSize)
	v.SetDefault("read_timeout_ms", def.ReadTimeoutMs)
	v.SetDefault("accept_timeout_ms", def.AcceptTimeoutMs)
	v.SetDefault("credential", def.Credential)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: file not found: %s", path)
			}
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against the bounds implied by the external
// interface table, rejecting malformed configuration at construction time
// rather than at first use.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range [1, 65535]", c.Port)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("config: max_frame_size must be positive, got %d", c.MaxFrameSize)
	}
	if c.ReadTimeoutMs <= 0 {
		return fmt.Errorf("config: read_timeout_ms must be positive, got %d", c.ReadTimeoutMs)
	}
	if c.AcceptTimeoutMs <= 0 {
		return fmt.Errorf("config: accept_timeout_ms must be positive, got %d", c.AcceptTimeoutMs)
	}
	if _, _, err := c.CredentialRecord(); err != nil {
		return fmt.Errorf("config: credential: %w", err)
	}
	return nil
}

// Save writes cfg to path as YAML, using the same `yaml` tags Load's
// counterpart file reader keys off of, so a saved file round-trips
// through Load unchanged. Intended for `rcond config init`-style
// scaffolding, not for the hot path.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// CredentialRecord decodes Credential into an auth.Record. The second
// return value is false when the server should run in insecure mode
// (Credential is empty or the literal "none"), in which case the Record
// is the zero value and must not be used for verification.
func (c Config) CredentialRecord() (auth.Record, bool, error) {
	if c.Credential == "" || strings.EqualFold(c.Credential, "none") {
		return auth.Record{}, false, nil
	}
	record, err := auth.ParseRecord(c.Credential)
	if err != nil {
		return auth.Record{}, false, err
	}
	return record, true, nil
}
