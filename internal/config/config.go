package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the settings file read when no -config flag is given
const DefaultPath = "settings.yaml"

// EnvDev is the development environment name; it turns on console logging and route listing
const EnvDev = "DEV"

type Config interface {
	EnvConfig
	ServerConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type ServerConfig interface {
	GetListenAddr() string
}

// Settings is the process configuration. It is built once at startup by Load
// and handed to the components that need it.
type Settings struct {
	AppName  string          `yaml:"app_name"`
	Env      string          `yaml:"env"`
	LogLevel string          `yaml:"log_level"`
	IP       string          `yaml:"ip"`
	Port     int             `yaml:"port"`
	Session  SessionSettings `yaml:"session"`
}

var _ Config = (*Settings)(nil)

// Default returns the built-in settings used whenever a source is missing or malformed.
func Default() *Settings {
	return &Settings{
		AppName:  "Session Login",
		Env:      EnvDev,
		LogLevel: "debug",
		IP:       "127.0.0.1",
		Port:     3000,
		Session: SessionSettings{
			CookieName:    "session_id",
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			Store:         StoreMemory,
			Redis: RedisSettings{
				Addr:   "localhost:6379",
				Prefix: "session:",
			},
			SQLite: SQLiteSettings{
				Path: "sessions.db",
			},
		},
	}
}

// Load builds the settings from the defaults, the YAML file at path, the given
// .env files and finally the process environment. Every source that cannot be
// used is skipped; the returned settings are always usable and the error, if
// any, lists what was skipped so the caller can surface a warning.
func Load(path string, envFiles ...string) (*Settings, error) {
	settings := Default()
	var errs []error

	if path != "" {
		fromFile, err := loadFile(path)
		if err != nil {
			errs = append(errs, err)
		} else {
			settings = fromFile
		}
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("loading %s: %w", envFile, err))
		}
	}

	errs = append(errs, applyEnv(settings)...)

	if len(errs) > 0 {
		return settings, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return settings, nil
}

func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("decoding settings file %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}
	return settings, nil
}

// Validate reports the first setting that cannot be used as is.
func (s *Settings) Validate() error {
	if net.ParseIP(s.IP) == nil && s.IP != "localhost" {
		return fmt.Errorf("ip %q is not a valid address", s.IP)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	return s.Session.Validate()
}

func (s *Settings) GetAppName() string {
	return s.AppName
}

func (s *Settings) GetEnv() string {
	if s.Env == "" {
		return EnvDev
	}
	return s.Env
}

func (s *Settings) GetLogLevel() string {
	return s.LogLevel
}

// GetListenAddr joins the ip and port settings into a dialable address
func (s *Settings) GetListenAddr() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}
