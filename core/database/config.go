package database

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DriverSQLite selects the single-file SQLite store.
	DriverSQLite = "sqlite3"
	// DriverPostgres selects PostgreSQL.
	DriverPostgres = "postgres"
)

// Config holds database connection settings.
type Config struct {
	Driver string `yaml:"driver" envconfig:"DB_DRIVER"`
	// Path is the SQLite database file.
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Normalize fills defaults and validates the driver choice.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "", "sqlite":
		c.Driver = DriverSQLite
	case "postgresql", "pg":
		c.Driver = DriverPostgres
	}
	switch c.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			c.Path = "data/cargobot.db"
		}
		// SQLite allows a single writer; one connection keeps writes serialized.
		c.MaxConnections = 1
	case DriverPostgres:
		if c.Host == "" || c.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
		if c.MaxConnections <= 0 {
			c.MaxConnections = 10
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: sqlite3, postgres", c.Driver)
	}
	return nil
}

// DSN renders the driver specific data source name.
func (c Config) DSN() string {
	if c.Driver == DriverPostgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     c.Host + ":" + c.Port,
			Path:     c.Name,
			RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
		}
		return u.String()
	}
	return "file:" + c.Path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

// Target is a log friendly description without credentials.
func (c Config) Target() string {
	if c.Driver == DriverPostgres {
		return c.Host + ":" + c.Port + "/" + c.Name
	}
	return c.Path
}
