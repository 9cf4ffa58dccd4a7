// Package migrator creates and upgrades the engine's own tables: action runs,
// audit logs, failed events and role grants. Model tables are not managed
// here.
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/lib/pq"
)

// Migration holds migration data for one version.
type Migration struct {
	Version int
	SemVer  string
	UpSQL   string
	DownSQL string
}

// Migrator applies embedded migrations for one driver and table prefix.
type Migrator struct {
	migrations  []Migration
	TablePrefix string
	Driver      string
}

// DefaultPrefix is the table prefix the embedded SQL is written with.
const DefaultPrefix = "gcadmin_"

func (m *Migrator) versionTable() string {
	return m.TablePrefix + "schema_version"
}

// New returns a Migrator for the driver with table prefix. An empty prefix
// keeps DefaultPrefix.
func New(driver, prefix string) *Migrator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	migs := defaultMigrations
	if driver == "postgres" {
		migs = postgresMigrations
	}
	return &Migrator{migrations: withPrefix(migs, prefix), TablePrefix: prefix, Driver: driver}
}

func withPrefix(migs []Migration, prefix string) []Migration {
	res := make([]Migration, len(migs))
	for i, m := range migs {
		m.UpSQL = strings.ReplaceAll(m.UpSQL, DefaultPrefix, prefix)
		m.DownSQL = strings.ReplaceAll(m.DownSQL, DefaultPrefix, prefix)
		res[i] = m
	}
	return res
}

// Latest returns the highest known version.
func (m *Migrator) Latest() int { return len(m.migrations) }

// ErrUnknownVersion is returned for a semantic version no migration carries.
var ErrUnknownVersion = errors.New("unknown schema version")

// Resolve maps a semantic version ("0.2", "v0.2.0") to its integer version.
// "latest" and "" resolve to Latest.
func (m *Migrator) Resolve(v string) (int, error) {
	if v == "" || v == "latest" {
		return m.Latest(), nil
	}
	want, err := semver.NewVersion(v)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrUnknownVersion, v, err)
	}
	if want.Equal(semver.MustParse("0.0.0")) {
		return 0, nil
	}
	for _, mig := range m.migrations {
		have, err := semver.NewVersion(mig.SemVer)
		if err == nil && have.Equal(want) {
			return mig.Version, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownVersion, v)
}

// Current returns the applied version, creating the version table when
// missing.
func (m *Migrator) Current(ctx context.Context, db *sql.DB) (int, error) {
	if err := m.ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	var query string
	if m.Driver == "postgres" {
		query = fmt.Sprintf("SELECT MAX(version) FROM %s", pq.QuoteIdentifier(m.versionTable()))
	} else {
		query = fmt.Sprintf("SELECT MAX(version) FROM `%s`", m.versionTable())
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, query).Scan(&v); err != nil { // #nosec G201 -- table name derived from trusted prefix
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        version INT PRIMARY KEY,
        semver VARCHAR(32),
        applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    )`, m.versionTable()))
	return err
}

func (m *Migrator) mark(ctx context.Context, tx *sql.Tx, mig Migration) error {
	stmt := fmt.Sprintf("INSERT INTO %s(version, semver) VALUES (?, ?)", m.versionTable())
	if m.Driver == "postgres" {
		stmt = fmt.Sprintf("INSERT INTO %s(version, semver) VALUES ($1, $2)", m.versionTable())
	}
	_, err := tx.ExecContext(ctx, stmt, mig.Version, mig.SemVer)
	return err
}

func (m *Migrator) unmark(ctx context.Context, tx *sql.Tx, mig Migration) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.versionTable())
	if m.Driver == "postgres" {
		stmt = fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.versionTable())
	}
	_, err := tx.ExecContext(ctx, stmt, mig.Version)
	return err
}

// Up migrates the schema up to target. target=0 means latest.
func (m *Migrator) Up(ctx context.Context, db *sql.DB, target int) error {
	if target == 0 {
		target = m.Latest()
	}
	if target > m.Latest() {
		return fmt.Errorf("%w %d", ErrUnknownVersion, target)
	}
	cur, err := m.Current(ctx, db)
	if err != nil {
		return err
	}
	if cur >= target {
		return nil
	}
	return m.inTx(ctx, db, func(tx *sql.Tx) error {
		for i := cur; i < target; i++ {
			if err := execAll(ctx, tx, m.migrations[i].UpSQL); err != nil {
				return err
			}
			if err := m.mark(ctx, tx, m.migrations[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Down migrates schema down to target version.
func (m *Migrator) Down(ctx context.Context, db *sql.DB, target int) error {
	cur, err := m.Current(ctx, db)
	if err != nil {
		return err
	}
	if target >= cur {
		return nil
	}
	return m.inTx(ctx, db, func(tx *sql.Tx) error {
		for i := cur - 1; i >= target; i-- {
			if err := execAll(ctx, tx, m.migrations[i].DownSQL); err != nil {
				return err
			}
			if err := m.unmark(ctx, tx, m.migrations[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Migrator) inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// SemVer returns the semantic version of migration v; 0 is "0.0.0".
func (m *Migrator) SemVer(v int) string {
	if v == 0 {
		return "0.0.0"
	}
	for _, mig := range m.migrations {
		if mig.Version == v {
			return mig.SemVer
		}
	}
	return ""
}

// SQLForRange returns SQL statements needed to migrate from->to.
func (m *Migrator) SQLForRange(from, to int) []string {
	var res []string
	if to > from {
		for i := from; i < to; i++ {
			res = append(res, splitSQL(m.migrations[i].UpSQL)...)
		}
	} else if to < from {
		for i := from - 1; i >= to; i-- {
			res = append(res, splitSQL(m.migrations[i].DownSQL)...)
		}
	}
	return res
}

func execAll(ctx context.Context, tx *sql.Tx, src string) error {
	for _, stmt := range splitSQL(src) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// splitSQL splits src on semicolons outside quotes and dollar-quoted bodies.
func splitSQL(src string) []string {
	var (
		res       []string
		buf       strings.Builder
		inSingle  bool
		inDouble  bool
		dollarTag string
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if dollarTag != "" {
			if strings.HasPrefix(src[i:], dollarTag) {
				buf.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
			buf.WriteByte(c)
			continue
		}
		switch c {
		case '\'':
			inSingle = !inSingle
		case '"':
			inDouble = !inDouble
		case '$':
			if !inSingle && !inDouble {
				j := i + 1
				for j < len(src) && isTagByte(src[j]) {
					j++
				}
				if j < len(src) && src[j] == '$' {
					dollarTag = src[i : j+1]
					buf.WriteString(dollarTag)
					i = j
					continue
				}
			}
		case ';':
			if !inSingle && !inDouble {
				if s := strings.TrimSpace(buf.String()); s != "" {
					res = append(res, s)
				}
				buf.Reset()
				continue
			}
		}
		buf.WriteByte(c)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		res = append(res, s)
	}
	return res
}

func isTagByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}
