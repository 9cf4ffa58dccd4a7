package sdk

import (
	"database/sql"

	"go.uber.org/zap"
)

// DBConfig specifies database connection parameters.
type DBConfig struct {
	Driver      string // mysql|postgres
	DSN         string
	TablePrefix string
}

// ServiceConfig holds optional configuration for Service.
//
// DB and Driver are only needed by the operations that touch a database.
// Site checks work offline.
type ServiceConfig struct {
	Logger *zap.SugaredLogger

	DB          *sql.DB
	Driver      string
	TablePrefix string

	// WidgetDir holds widget alias files registered before admins are
	// checked.
	WidgetDir string
	// ReservedFile lists extra reserved table patterns.
	ReservedFile string
}
