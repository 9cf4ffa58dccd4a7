// Package reserved matches table names no admin model may be mapped onto:
// the engine's own tables and the database catalogs.
package reserved

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is a list of table name patterns.
type Set struct {
	patterns []*regexp.Regexp
}

// Defaults reserves tables starting with prefix plus the catalog schemas.
func Defaults(prefix string) *Set {
	s := &Set{}
	list := []string{`^information_schema\.`, `^pg_`, `^mysql\.`, `^performance_schema\.`}
	if prefix != "" {
		list = append(list, "^"+regexp.QuoteMeta(prefix))
	}
	for _, p := range list {
		s.patterns = append(s.patterns, regexp.MustCompile(p))
	}
	return s
}

// Load extends Defaults(prefix) with the reserved_tables list from the YAML
// file at path. A non-empty ADMIN_RESERVED_TABLES (comma separated patterns)
// replaces the file list.
func Load(path, prefix string) (*Set, error) {
	s := Defaults(prefix)
	var list []string
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- configuration path provided by operator
		if err != nil {
			return nil, err
		}
		var cfg struct {
			Reserved []string `yaml:"reserved_tables"`
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		list = cfg.Reserved
	}
	if env := os.Getenv("ADMIN_RESERVED_TABLES"); env != "" {
		list = nil
		for _, t := range strings.Split(env, ",") {
			if t = strings.TrimSpace(t); t != "" {
				list = append(list, t)
			}
		}
	}
	for _, p := range list {
		r, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("reserved table pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, r)
	}
	return s, nil
}

// Is returns true if the table is reserved.
func (s *Set) Is(table string) bool {
	for _, r := range s.patterns {
		if r.MatchString(table) {
			return true
		}
	}
	return false
}

// Check fails on the first reserved table in tables.
func (s *Set) Check(tables []string) error {
	for _, t := range tables {
		if s.Is(t) {
			return fmt.Errorf("table %q is reserved", t)
		}
	}
	return nil
}

// Patterns returns the reserved table regex patterns as strings.
func (s *Set) Patterns() []string {
	out := make([]string, len(s.patterns))
	for i, r := range s.patterns {
		out[i] = r.String()
	}
	return out
}
