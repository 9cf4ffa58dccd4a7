package server

import "time"

// DBConfig holds database configuration for the API server. An empty DSN
// serves the site from an in-memory store.
type DBConfig struct {
	Driver      string
	DSN         string
	TablePrefix string
}

// Config is the full server configuration.
type Config struct {
	DB DBConfig

	// SiteFile is the YAML site definition (models and admins).
	SiteFile string
	// WidgetDir holds widget alias files; empty disables aliases.
	WidgetDir string
	// ReservedFile lists extra reserved table patterns.
	ReservedFile string
	// CreateTables creates missing model tables at startup.
	CreateTables bool

	// RedisURL moves background actions onto a Redis list consumed by
	// in-process workers; empty keeps them on a local queue.
	RedisURL  string
	QueueKey  string
	Workers   int
	QueueSize int

	// EventsConfig is the events sink YAML file.
	EventsConfig string
	// AccessPerm, when set, is required for every authenticated operation.
	AccessPerm string
	TokenTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DB.TablePrefix == "" {
		c.DB.TablePrefix = "gcadmin_"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
	return c
}
