package config

import (
	"fmt"
	"time"
)

// Session storage backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type SessionConfig interface {
	GetSessionCookieName() string
	GetSessionCookieSecure() bool
	GetSessionIdleTimeout() time.Duration
	GetSessionSweepInterval() time.Duration
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
	GetSQLitePath() string
}

type SessionSettings struct {
	CookieName   string `yaml:"cookie_name"`
	CookieSecure bool   `yaml:"cookie_secure"`

	// IdleTimeout is the sliding inactivity window. Zero disables expiry.
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Store  string         `yaml:"store"`
	Redis  RedisSettings  `yaml:"redis"`
	SQLite SQLiteSettings `yaml:"sqlite"`
}

type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SQLiteSettings struct {
	Path string `yaml:"path"`
}

func (s SessionSettings) Validate() error {
	if s.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("session idle timeout must not be negative: %s", s.IdleTimeout)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be positive: %s", s.SweepInterval)
	}
	switch s.Store {
	case StoreMemory:
	case StoreRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis session store")
		}
	case StoreSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for the sqlite session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", s.Store)
	}
	return nil
}

func (s *Settings) GetSessionCookieName() string {
	return s.Session.CookieName
}

func (s *Settings) GetSessionCookieSecure() bool {
	return s.Session.CookieSecure
}

func (s *Settings) GetSessionIdleTimeout() time.Duration {
	return s.Session.IdleTimeout
}

func (s *Settings) GetSessionSweepInterval() time.Duration {
	return s.Session.SweepInterval
}

func (s *Settings) GetSessionStore() string {
	return s.Session.Store
}

func (s *Settings) GetRedisAddr() string {
	return s.Session.Redis.Addr
}

func (s *Settings) GetRedisPassword() string {
	return s.Session.Redis.Password
}

func (s *Settings) GetRedisDB() int {
	return s.Session.Redis.DB
}

func (s *Settings) GetRedisPrefix() string {
	return s.Session.Redis.Prefix
}

func (s *Settings) GetSQLitePath() string {
	return s.Session.SQLite.Path
}
