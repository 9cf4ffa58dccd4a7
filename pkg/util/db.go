package util

import (
	"fmt"
	"net/url"
	"strings"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/go-sql-driver/mysql"
)

// UnsupportedDialect is returned when a driver has no corresponding goquent dialect.
type UnsupportedDialect struct{ Driver string }

func (UnsupportedDialect) Placeholder(int) string { return "?" }

func (UnsupportedDialect) QuoteIdent(ident string) string { return ident }

// DetectDriver names the database/sql driver for dsn. URL forms
// (postgres://, postgresql://, mysql://), libpq key=value strings and
// go-sql-driver DSNs such as user:pw@tcp(host:3306)/db are recognized.
func DetectDriver(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		switch strings.ToLower(scheme) {
		case "postgres", "postgresql":
			return "postgres", nil
		case "mysql":
			return "mysql", nil
		}
		return "", fmt.Errorf("unknown scheme: %s", scheme)
	}
	if strings.Contains(dsn, "@tcp(") || strings.Contains(dsn, "@unix(") {
		return "mysql", nil
	}
	for _, kv := range strings.Fields(dsn) {
		if k, _, ok := strings.Cut(kv, "="); ok && (k == "host" || k == "dbname" || k == "user") {
			return "postgres", nil
		}
	}
	return "", fmt.Errorf("cannot detect driver from dsn")
}

// ResolveDriver reconciles an explicit driver with the one the DSN implies.
// An empty DSN keeps explicit as given.
func ResolveDriver(explicit, dsn string) (string, error) {
	if dsn == "" {
		return explicit, nil
	}
	detected, err := DetectDriver(dsn)
	switch {
	case err != nil && explicit == "":
		return "", err
	case err != nil:
		return explicit, nil
	case explicit == "":
		return detected, nil
	case explicit != detected:
		return "", fmt.Errorf("driver %s does not match dsn (%s)", explicit, detected)
	}
	return explicit, nil
}

// DriverDSN rewrites a mysql:// URL into the form go-sql-driver/mysql
// accepts. Other DSNs are returned unchanged; lib/pq reads URLs directly.
func DriverDSN(driver, dsn string) (string, error) {
	if driver != "mysql" || !strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if u.RawQuery != "" {
		// Round trip the parameters through the driver's own parser.
		parsed, err := mysql.ParseDSN(cfg.FormatDSN() + "?" + u.RawQuery)
		if err != nil {
			return "", fmt.Errorf("mysql dsn: %w", err)
		}
		cfg = parsed
	}
	return cfg.FormatDSN(), nil
}

// DialectFromDriver returns the goquent dialect corresponding to a driver.
func DialectFromDriver(d string) ormdriver.Dialect {
	switch d {
	case "postgres":
		return ormdriver.PostgresDialect{}
	case "mysql":
		return ormdriver.MySQLDialect{}
	default:
		return UnsupportedDialect{Driver: d}
	}
}
