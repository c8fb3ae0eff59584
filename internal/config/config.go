// Package config loads the cargobot configuration: the reusable core
// sections plus database, sessions, notifications, events and the admin API.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/cargobot/core/config"
	"github.com/m3rciful/cargobot/core/database"
	"github.com/m3rciful/cargobot/internal/events"
)

// Session drivers.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// SessionConfig controls where conversation sessions live.
type SessionConfig struct {
	Driver     string `yaml:"driver" envconfig:"SESSION_DRIVER"`
	TTLMinutes int    `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	RedisURL   string `yaml:"redis_url" envconfig:"SESSION_REDIS_URL"`
	RedisKey   string `yaml:"redis_prefix"`
	// SweepSpec is the cron schedule of the in-memory expiry sweep.
	SweepSpec string `yaml:"sweep_spec"`
}

// TTL is the idle lifetime of a session.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// NotifyConfig controls outbound notifications.
type NotifyConfig struct {
	// OpsChatID mirrors every shipment event; zero disables it.
	OpsChatID     int64 `yaml:"ops_chat_id" envconfig:"NOTIFY_OPS_CHAT_ID"`
	MaxAttempts   int   `yaml:"max_attempts"`
	BaseDelayMS   int   `yaml:"base_delay_ms"`
	MaxDurationMS int   `yaml:"max_duration_ms"`
	Workers       int   `yaml:"workers"`
	QueueSize     int   `yaml:"queue_size"`
}

// AdminAPIConfig controls the HTTP admin API.
type AdminAPIConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ADMIN_API_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"ADMIN_API_LISTEN"`
	Token   string `yaml:"token" envconfig:"ADMIN_API_TOKEN"`
}

// MediaConfig says where uploaded photos are stored.
type MediaConfig struct {
	Dir string `yaml:"dir" envconfig:"MEDIA_DIR"`
	// MaxPhotoMB rejects larger uploads.
	MaxPhotoMB int `yaml:"max_photo_mb"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
	Session  SessionConfig   `yaml:"session"`
	Notify   NotifyConfig    `yaml:"notify"`
	Events   events.Config   `yaml:"events"`
	AdminAPI AdminAPIConfig  `yaml:"admin_api"`
	Media    MediaConfig     `yaml:"media"`
	// Cities are the preset buttons of the city step.
	Cities []string `yaml:"cities"`
	// Timezone is used for date search; defaults to UTC.
	Timezone string `yaml:"timezone" envconfig:"TZ_NAME"`
}

// DefaultCities are offered when none are configured.
var DefaultCities = []string{"Moscow", "Saint Petersburg", "Novosibirsk", "Yekaterinburg"}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Location resolves Timezone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.Events.Normalize(); err != nil {
		return err
	}

	c.Session.Driver = strings.ToLower(strings.TrimSpace(c.Session.Driver))
	switch c.Session.Driver {
	case "":
		c.Session.Driver = SessionMemory
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, redis", c.Session.Driver)
	}
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = 30
	}
	if c.Session.SweepSpec == "" {
		c.Session.SweepSpec = "@every 1m"
	}
	if c.Session.RedisKey == "" {
		c.Session.RedisKey = "cargobot:session:"
	}

	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 3
	}
	if c.Notify.BaseDelayMS <= 0 {
		c.Notify.BaseDelayMS = 1000
	}
	if c.Notify.MaxDurationMS <= 0 {
		c.Notify.MaxDurationMS = 30000
	}

	if c.AdminAPI.Enabled {
		if c.AdminAPI.Listen == "" {
			c.AdminAPI.Listen = ":8081"
		}
		if strings.TrimSpace(c.AdminAPI.Token) == "" {
			return fmt.Errorf("admin_api.token is required when the admin API is enabled")
		}
	}

	if c.Media.Dir == "" {
		c.Media.Dir = "media"
	}
	if c.Media.MaxPhotoMB <= 0 {
		c.Media.MaxPhotoMB = 5
	}

	cities := c.Cities[:0]
	for _, city := range c.Cities {
		if city = strings.TrimSpace(city); city != "" {
			cities = append(cities, city)
		}
	}
	c.Cities = cities
	if len(c.Cities) == 0 {
		c.Cities = append([]string(nil), DefaultCities...)
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}
