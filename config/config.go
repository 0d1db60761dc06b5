// Package config loads settings for the example servers and clients.
//
// Values are layered: defaults, then a YAML file, then a .env file, then
// RPCSERVE_* environment variables. A .env file never overrides variables
// already present in the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete example configuration.
type Config struct {
	LogLevel string       `yaml:"logLevel"`
	TCP      TCPConfig    `yaml:"tcp"`
	HTTP     HTTPConfig   `yaml:"http"`
	Auth     AuthConfig   `yaml:"auth"`
	Client   ClientConfig `yaml:"client"`
}

type TCPConfig struct {
	Addr         string        `yaml:"addr"`
	MaxLength    int           `yaml:"maxLength"`
	MaxInFlight  int           `yaml:"maxInFlight"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type HTTPConfig struct {
	Addr         string  `yaml:"addr"`
	Path         string  `yaml:"path"`
	MaxBodyBytes int64   `yaml:"maxBodyBytes"`
	RateLimit    float64 `yaml:"rateLimit"`
	RateBurst    int     `yaml:"rateBurst"`
	MetricsPath  string  `yaml:"metricsPath"`
}

type AuthConfig struct {
	Realm string `yaml:"realm"`
	// Users maps user names to bcrypt hashes.
	Users        map[string]string `yaml:"users"`
	JWTSecret    string            `yaml:"jwtSecret"`
	JWTIssuer    string            `yaml:"jwtIssuer"`
	OIDCIssuer   string            `yaml:"oidcIssuer"`
	OIDCClientID string            `yaml:"oidcClientID"`
	// SessionKey is a base64 key for session cookies; empty disables sessions.
	SessionKey string        `yaml:"sessionKey"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

type ClientConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Version  string `yaml:"version"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		TCP: TCPConfig{
			Addr:         "127.0.0.1:7080",
			MaxLength:    1 << 20,
			MaxInFlight:  64,
			WriteTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:7081",
			Path:         "/rpc",
			MaxBodyBytes: 1 << 20,
			RateLimit:    50,
			RateBurst:    100,
			MetricsPath:  "/metrics",
		},
		Auth: AuthConfig{
			Realm:      "rpcserve",
			JWTIssuer:  "rpcserve",
			SessionTTL: 12 * time.Hour,
		},
		Client: ClientConfig{
			URL:     "http://127.0.0.1:7081/rpc",
			Addr:    "127.0.0.1:7080",
			Version: "2.0",
		},
	}
}

// defaultPaths are tried when Load is given no path.
var defaultPaths = []string{"rpcserve.yaml", "configs/rpcserve.yaml"}

// Load builds a Config. An explicit path must exist; otherwise the default
// paths are tried and skipped when missing. envFiles defaults to ".env";
// missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	candidates := defaultPaths
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", p, err)
		}
		break
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("env file %s: %w", f, err)
		}
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnvOverrides copies RPCSERVE_* variables into cfg.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	num := func(name string, parse func(string) error) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return
		}
		if err := parse(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	str("RPCSERVE_LOG_LEVEL", &cfg.LogLevel)
	str("RPCSERVE_TCP_ADDR", &cfg.TCP.Addr)
	num("RPCSERVE_TCP_MAX_LENGTH", func(v string) (err error) {
		cfg.TCP.MaxLength, err = strconv.Atoi(v)
		return err
	})
	num("RPCSERVE_TCP_MAX_IN_FLIGHT", func(v string) (err error) {
		cfg.TCP.MaxInFlight, err = strconv.Atoi(v)
		return err
	})
	str("RPCSERVE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("RPCSERVE_HTTP_PATH", &cfg.HTTP.Path)
	num("RPCSERVE_RATE_LIMIT", func(v string) (err error) {
		cfg.HTTP.RateLimit, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("RPCSERVE_RATE_BURST", func(v string) (err error) {
		cfg.HTTP.RateBurst, err = strconv.Atoi(v)
		return err
	})
	str("RPCSERVE_AUTH_REALM", &cfg.Auth.Realm)
	str("RPCSERVE_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("RPCSERVE_JWT_ISSUER", &cfg.Auth.JWTIssuer)
	str("RPCSERVE_OIDC_ISSUER", &cfg.Auth.OIDCIssuer)
	str("RPCSERVE_OIDC_CLIENT_ID", &cfg.Auth.OIDCClientID)
	str("RPCSERVE_SESSION_KEY", &cfg.Auth.SessionKey)
	num("RPCSERVE_SESSION_TTL", func(v string) (err error) {
		cfg.Auth.SessionTTL, err = time.ParseDuration(v)
		return err
	})
	str("RPCSERVE_URL", &cfg.Client.URL)
	str("RPCSERVE_ADDR", &cfg.Client.Addr)
	str("RPCSERVE_VERSION", &cfg.Client.Version)
	str("RPCSERVE_USER", &cfg.Client.User)
	str("RPCSERVE_PASSWORD", &cfg.Client.Password)
	str("RPCSERVE_TOKEN", &cfg.Client.Token)
	return errors.Join(errs...)
}

// SessionKeyBytes decodes Auth.SessionKey. It returns nil when sessions are
// disabled.
func (c Config) SessionKeyBytes() ([]byte, error) {
	if c.Auth.SessionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Auth.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	return key, nil
}

// Logger returns a text logger on stderr at LogLevel.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
