package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ipEnvVar         = "APP_IP"
	portEnvVar       = "APP_PORT"
	appNameVar       = "APP_NAME"
	envVar           = "ENV"
	logLevelVar      = "LOG_LEVEL"
	idleTimeoutVar   = "SESSION_IDLE_TIMEOUT"
	sessionStoreVar  = "SESSION_STORE"
	cookieSecureVar  = "SESSION_COOKIE_SECURE"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	sqlitePathVar    = "SQLITE_PATH"
)

// applyEnv overrides settings from the environment. A value that does not
// parse, or that would leave the settings invalid, is ignored and reported.
func applyEnv(s *Settings) []error {
	var errs []error

	candidate := *s
	candidate.AppName = GetEnv(appNameVar, candidate.AppName)
	candidate.Env = GetEnv(envVar, candidate.Env)
	candidate.LogLevel = GetEnv(logLevelVar, candidate.LogLevel)
	candidate.IP = GetEnv(ipEnvVar, candidate.IP)
	candidate.Session.Store = GetEnv(sessionStoreVar, candidate.Session.Store)
	candidate.Session.Redis.Addr = GetEnv(redisAddrVar, candidate.Session.Redis.Addr)
	candidate.Session.Redis.Password = GetEnv(redisPasswordVar, candidate.Session.Redis.Password)
	candidate.Session.SQLite.Path = GetEnv(sqlitePathVar, candidate.Session.SQLite.Path)

	if v := os.Getenv(portEnvVar); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", portEnvVar, err))
		} else {
			candidate.Port = port
		}
	}

	if v := os.Getenv(idleTimeoutVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", idleTimeoutVar, err))
		} else {
			candidate.Session.IdleTimeout = d
		}
	}

	if v := os.Getenv(cookieSecureVar); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cookieSecureVar, err))
		} else {
			candidate.Session.CookieSecure = secure
		}
	}

	if err := candidate.Validate(); err != nil {
		return append(errs, fmt.Errorf("environment overrides ignored: %w", err))
	}

	*s = candidate
	return errs
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
