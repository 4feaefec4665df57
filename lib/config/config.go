// Package config loads process configuration from defaults, an optional
// file and SNAPOFF_* environment variables, and validates the result
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SNAPOFF"

//go:embed schema.cue
var schemaSource string

// ErrNoComponents is returned when neither a directory nor a bucket is set.
var ErrNoComponents = errors.New("config: one of components_path or s3.bucket must be set")

// Config is the full process configuration.
type Config struct {
	Addr           string        `mapstructure:"addr" json:"addr"`
	ComponentsPath string        `mapstructure:"components_path" json:"components_path"`
	EventPath      string        `mapstructure:"event_path" json:"event_path"`
	WSPath         string        `mapstructure:"ws_path" json:"ws_path"`
	RequireHTMX    bool          `mapstructure:"require_htmx" json:"require_htmx"`
	Session        SessionConfig `mapstructure:"session" json:"session"`
	Log            LogConfig     `mapstructure:"log" json:"log"`
	S3             S3Config      `mapstructure:"s3" json:"s3"`
	Dev            DevConfig     `mapstructure:"dev" json:"dev"`
	Metrics        MetricsConfig `mapstructure:"metrics" json:"metrics"`
	Script         ScriptConfig  `mapstructure:"script" json:"script"`
}

// SessionConfig configures the cookie session manager.
type SessionConfig struct {
	Secret string        `mapstructure:"secret" json:"secret"`
	TTL    time.Duration `mapstructure:"ttl" json:"ttl"`
	Cookie string        `mapstructure:"cookie" json:"cookie"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	File   string `mapstructure:"file" json:"file"`
}

// S3Config points the loader at a bucket instead of a directory.
type S3Config struct {
	Bucket   string `mapstructure:"bucket" json:"bucket"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
	Region   string `mapstructure:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
}

// DevConfig holds development-only switches.
type DevConfig struct {
	Watch   bool   `mapstructure:"watch" json:"watch"`
	LabAddr string `mapstructure:"lab_addr" json:"lab_addr"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// ScriptConfig bounds handler.star execution.
type ScriptConfig struct {
	MaxSteps int `mapstructure:"max_steps" json:"max_steps"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:           ":3000",
		ComponentsPath: "components",
		EventPath:      "/_snap/event",
		WSPath:         "/_snap/ws",
		Session: SessionConfig{
			TTL:    24 * time.Hour,
			Cookie: "snapoff_session",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Dev: DevConfig{
			LabAddr: ":6006",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Script: ScriptConfig{
			MaxSteps: 1_000_000,
		},
	}
}

// Load reads configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("components_path", d.ComponentsPath)
	v.SetDefault("event_path", d.EventPath)
	v.SetDefault("ws_path", d.WSPath)
	v.SetDefault("require_htmx", d.RequireHTMX)
	v.SetDefault("session.secret", d.Session.Secret)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.cookie", d.Session.Cookie)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("dev.watch", d.Dev.Watch)
	v.SetDefault("dev.lab_addr", d.Dev.LabAddr)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("script.max_steps", d.Script.MaxSteps)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against the schema and the rules CUE cannot express.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal error: compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.ComponentsPath == "" && c.S3.Bucket == "" {
		return ErrNoComponents
	}
	return nil
}
