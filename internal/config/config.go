// Package config provides configuration management for tagfill using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration lives in .tagfill.yml by default. Every key can be
// overridden from the environment with the TAGFILL_ prefix, for example
// TAGFILL_SERVER_PORT or TAGFILL_RENDER_MAX_DEPTH. Load applies defaults for
// unset keys and validates the result before returning it.
package config

import (
	"github.com/spf13/viper"

	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/errors"
)

type Config struct {
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type TemplatesConfig struct {
	ScanPaths       []string `mapstructure:"scan_paths" yaml:"scan_paths"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	Extensions      []string `mapstructure:"extensions" yaml:"extensions"`
}

type RenderConfig struct {
	MaxDepth          int  `mapstructure:"max_depth" yaml:"max_depth"`
	FalsyPlaceholders bool `mapstructure:"falsy_placeholders" yaml:"falsy_placeholders"`
}

type DataConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	Table       string `mapstructure:"table" yaml:"table"`
}

type NotifyConfig struct {
	AmqpURL  string `mapstructure:"amqp_url" yaml:"amqp_url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EngineOptions translates the render section into engine options.
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{engine.WithMaxDepth(c.Render.MaxDepth)}
	if c.Render.FalsyPlaceholders {
		opts = append(opts, engine.WithFalsyPlaceholders())
	}
	return opts
}

// StoreEnabled reports whether templates are also loaded from Postgres.
func (c *Config) StoreEnabled() bool {
	return c.Store.DatabaseURL != ""
}

// NotifyEnabled reports whether registry changes are published to AMQP.
func (c *Config) NotifyEnabled() bool {
	return c.Notify.AmqpURL != ""
}

// SetDefaults registers the default value of every key on v. Keys with a
// default are also the ones AutomaticEnv can override during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("templates.scan_paths", []string{"./templates"})
	v.SetDefault("templates.exclude_patterns", []string{"*.bak", "node_modules"})
	v.SetDefault("templates.extensions", []string{".html", ".htm"})
	v.SetDefault("render.max_depth", engine.DefaultMaxDepth)
	v.SetDefault("render.falsy_placeholders", false)
	v.SetDefault("data.file", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.table", "templates")
	v.SetDefault("notify.amqp_url", "")
	v.SetDefault("notify.exchange", "tagfill.templates")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "invalid configuration")
	}

	if result := ValidateConfigWithDetails(&config); result.HasErrors() {
		first := result.Errors[0]
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+first.Error()).
			WithContext("report", result.String())
	}

	return &config, nil
}
