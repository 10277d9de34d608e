// Package config loads splitqr settings: built-in defaults, then an optional YAML file, then
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/splitqr/internal/models"
)

// DefaultPath is the file read when no path is given.
const DefaultPath = "splitqr.yaml"

// DevJWTSecret is the signing secret used when none is configured. Servers log a warning
// when they run with it.
const DevJWTSecret = "splitqr-development-secret"

// Config is the full configuration of the server and the CLI.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	StaticPath      string        `yaml:"static_path"`
	SeedSample      bool          `yaml:"seed_sample"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	// Backend is memory, sqlite or postgres.
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ClientConfig holds CLI defaults.
type ClientConfig struct {
	Server  string        `yaml:"server" validate:"required,url"`
	BillID  string        `yaml:"bill"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// TokenFile keeps the guest sign-in between runs. Empty disables it.
	TokenFile string `yaml:"token_file"`
}

// DefaultTokenFile is where guest tokens are kept unless configured otherwise, or empty
// when the user config directory is unknown.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "splitqr", "token")
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			StaticPath:      "./static",
			SeedSample:      true,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "./data/splitqr.db",
		},
		Auth: AuthConfig{
			JWTSecret: DevJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Client: ClientConfig{
			Server:  "http://localhost:8080",
			BillID:    models.DefaultBillID,
			Timeout:   10 * time.Second,
			TokenFile: DefaultTokenFile(),
		},
	}
}

var validate = validator.New()

// Validate checks every setting.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads path over the defaults and applies environment overrides. A missing file keeps
// the defaults; an empty path means DefaultPath.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SPLITQR_ADDR", &cfg.Server.Addr)
	str("SPLITQR_STATIC_PATH", &cfg.Server.StaticPath)
	str("SPLITQR_STORE", &cfg.Store.Backend)
	str("SPLITQR_SQLITE_PATH", &cfg.Store.SQLitePath)
	str("SPLITQR_POSTGRES_DSN", &cfg.Store.PostgresDSN)
	str("SPLITQR_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("SPLITQR_LOG_FORMAT", &cfg.Log.Format)
	str("SPLITQR_SERVER", &cfg.Client.Server)
	str("SPLITQR_BILL", &cfg.Client.BillID)
	str("SPLITQR_NAME", &cfg.Client.Name)
	str("SPLITQR_TOKEN_FILE", &cfg.Client.TokenFile)

	if v, ok := lookup("SPLITQR_SEED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPLITQR_SEED: %w", err)
		}
		cfg.Server.SeedSample = b
	}
	if v, ok := lookup("SPLITQR_TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPLITQR_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the built-in secret.
func (c Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == DevJWTSecret
}
