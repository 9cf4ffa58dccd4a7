// Package config holds the global settings of the admin engine and loads
// the declarative site definition.
package config

import (
	"context"
	"database/sql"
	"fmt"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
)

// DefaultTablePrefix prefixes the engine's own tables (audit, dead letters,
// role grants).
const DefaultTablePrefix = "gcadmin_"

// Config holds global configuration values.
type Config struct {
	TablePrefix string `env:"TABLE_PREFIX,default=gcadmin_"`
}

// T prefixes the given table name with the configured prefix.
func (c *Config) T(name string) string {
	if c == nil || c.TablePrefix == "" {
		return DefaultTablePrefix + name
	}
	return c.TablePrefix + name
}

// CheckPrefix verifies that tables with the configured prefix exist in the
// connected database. It returns an error if none are found.
func CheckPrefix(ctx context.Context, db *sql.DB, dialect ormdriver.Dialect, prefix string) error {
	q := query.New(db, "information_schema.tables", dialect).
		SelectRaw("COUNT(*) AS cnt").
		WhereRaw("table_name LIKE :p", map[string]any{"p": prefix + "%"}).
		WithContext(ctx)

	var res struct{ Cnt int }
	if err := q.First(&res); err != nil {
		return err
	}
	if res.Cnt == 0 {
		return fmt.Errorf("no tables with prefix %q found; create them or set TABLE_PREFIX correctly", prefix)
	}
	return nil
}

// CheckTables returns the tables from want that do not exist.
func CheckTables(ctx context.Context, db *sql.DB, dialect ormdriver.Dialect, want []string) ([]string, error) {
	if len(want) == 0 {
		return nil, nil
	}
	q := query.New(db, "information_schema.tables", dialect).
		Select("table_name").
		WhereIn("table_name", want).
		WithContext(ctx)
	sqlStr, args, err := q.Build()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[string]bool, len(want))
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		found[n] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, t := range want {
		if !found[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}
