package config

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration read from "90s"-style text in every format.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the kernel configuration
type Config struct {
	// Server identity
	Server struct {
		Name    string `yaml:"name" toml:"name" json:"name" env:"IRCD_SERVER_NAME" validate:"required"`
		Network string `yaml:"network" toml:"network" json:"network" env:"IRCD_NETWORK"`
		// bcrypt hash; empty disables PASS
		PasswordHash string `yaml:"password_hash" toml:"password_hash" json:"password_hash" env:"IRCD_PASSWORD_HASH"`
	} `yaml:"server" toml:"server" json:"server"`

	// Shared store
	Store struct {
		Addr     string `yaml:"addr" toml:"addr" json:"addr" env:"IRCD_STORE_ADDR" validate:"required,hostname_port"`
		Password string `yaml:"password" toml:"password" json:"password" env:"IRCD_STORE_PASSWORD"`
		DB       int    `yaml:"db" toml:"db" json:"db" env:"IRCD_STORE_DB" validate:"min=0"`
	} `yaml:"store" toml:"store" json:"store"`

	// Kernel loop
	Kernel struct {
		Queue          string   `yaml:"queue" toml:"queue" json:"queue" env:"IRCD_QUEUE" validate:"required"`
		OutboundPrefix string   `yaml:"outbound_prefix" toml:"outbound_prefix" json:"outbound_prefix" env:"IRCD_OUTBOUND_PREFIX" validate:"required"`
		PingTimeout    Duration `yaml:"ping_timeout" toml:"ping_timeout" json:"ping_timeout" env:"IRCD_PING_TIMEOUT"`
		PopTimeout     Duration `yaml:"pop_timeout" toml:"pop_timeout" json:"pop_timeout" env:"IRCD_POP_TIMEOUT"`
	} `yaml:"kernel" toml:"kernel" json:"kernel"`

	// Admin HTTP server
	Admin struct {
		Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_ADMIN_ENABLED"`
		Host    string `yaml:"host" toml:"host" json:"host" env:"IRCD_ADMIN_HOST"`
		Port    int    `yaml:"port" toml:"port" json:"port" env:"IRCD_ADMIN_PORT" validate:"min=0,max=65535"`
	} `yaml:"admin" toml:"admin" json:"admin"`

	Log struct {
		Level  string `yaml:"level" toml:"level" json:"level" env:"IRCD_LOG_LEVEL" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" toml:"format" json:"format" env:"IRCD_LOG_FORMAT" validate:"oneof=text json"`
	} `yaml:"log" toml:"log" json:"log"`

	// Configuration source for reloading
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Name = "irc.localhost"
	cfg.Server.Network = "ircq"
	cfg.Store.Addr = "localhost:6379"
	cfg.Kernel.Queue = "mq:kernel"
	cfg.Kernel.OutboundPrefix = "mq:"
	cfg.Kernel.PingTimeout = Duration{2 * time.Minute}
	cfg.Kernel.PopTimeout = Duration{time.Second}
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 8080
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load loads configuration from a file or URL. An empty source yields the
// defaults plus environment overrides.
func Load(source string) (*Config, error) {
	cfg := Default()
	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload reloads the configuration from the current source or a new source
func (c *Config) Reload(newSource string) error {
	if newSource != "" {
		c.Source = newSource
	}

	newCfg, err := Load(c.Source)
	if err != nil {
		return err
	}
	*c = *newCfg
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Kernel.PingTimeout.Duration <= 0 || c.Kernel.PopTimeout.Duration <= 0 {
		return fmt.Errorf("%w: kernel timeouts must be positive", ErrInvalid)
	}
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("load config from URL: status %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// Determine the format based on file extension
	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	c.Source = source
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem())
}

func applyEnvOverridesRecursive(v reflect.Value) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if field.PkgPath != "" {
			continue
		}

		if envTag := field.Tag.Get("env"); envTag != "" {
			if envValue, exists := os.LookupEnv(envTag); exists {
				setFieldFromEnv(fieldValue, envValue)
			}
		} else if field.Type.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(fieldValue)
		}
	}
}

// setFieldFromEnv sets a field's value from an environment variable.
// Unparsable values leave the field unchanged.
func setFieldFromEnv(field reflect.Value, envValue string) {
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		_ = u.UnmarshalText([]byte(envValue))
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := parseInt(envValue); err == nil {
			field.SetInt(v)
		}
	case reflect.Bool:
		field.SetBool(parseBool(envValue))
	}
}

func parseInt(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "y"
}

// AdminAddress returns the listen address of the admin server
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// LogLevel maps log.level to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(c.LogLevel())
	return c.NewLoggerWithLevel(w, level)
}

// NewLoggerWithLevel is NewLogger with a level that can change after a
// reload.
func (c *Config) NewLoggerWithLevel(w io.Writer, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
