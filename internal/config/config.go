package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all controller configuration from environment variables.
type Config struct {
	// Scheduling
	Crontab  string // cron expression for the periodic check/update run
	Timezone string // IANA timezone name for the cron schedule

	// Storage
	DBPath    string
	HostsFile string // optional YAML seed of host definitions

	// Notifications
	NotificationURLs          string // newline-separated provider URLs
	NotificationTitleTemplate string // empty means built-in default
	NotificationBodyTemplate  string // empty means built-in default

	// Engine behaviour
	ProtectLabel string // container label that excludes it from any lifecycle action
	SelfID       string // explicit identity of the controller's own container

	// Operator API
	WebPort string

	// Logging
	LogJSON bool
}

// Load reads all controller configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Crontab:                   envStr("TUGTAINER_CRONTAB", "0 4 * * *"),
		Timezone:                  envStr("TUGTAINER_TIMEZONE", "UTC"),
		DBPath:                    envStr("TUGTAINER_DB_PATH", "/data/tugtainer.db"),
		HostsFile:                 envStr("TUGTAINER_HOSTS_FILE", ""),
		NotificationURLs:          envStr("TUGTAINER_NOTIFICATION_URLS", ""),
		NotificationTitleTemplate: envStr("TUGTAINER_NOTIFICATION_TITLE_TEMPLATE", ""),
		NotificationBodyTemplate:  envStr("TUGTAINER_NOTIFICATION_BODY_TEMPLATE", ""),
		ProtectLabel:              envStr("TUGTAINER_PROTECT_LABEL", "tugtainer.protected"),
		SelfID:                    envStr("TUGTAINER_SELF_ID", ""),
		WebPort:                   envStr("TUGTAINER_WEB_PORT", "8400"),
		LogJSON:                   envBool("TUGTAINER_LOG_JSON", true),
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.Crontab); err != nil {
		errs = append(errs, fmt.Errorf("TUGTAINER_CRONTAB is not a valid cron expression: %w", err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TUGTAINER_TIMEZONE is not a valid IANA timezone: %w", err))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("TUGTAINER_DB_PATH must not be empty"))
	}
	if c.ProtectLabel == "" {
		errs = append(errs, errors.New("TUGTAINER_PROTECT_LABEL must not be empty"))
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
