package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

func (s *Store) columnType(f descriptor.Field) string {
	pg := s.isPostgres()
	switch f.Kind {
	case descriptor.KindString:
		n := f.MaxLength
		if n <= 0 {
			n = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	case descriptor.KindText:
		return "TEXT"
	case descriptor.KindInteger:
		return "BIGINT"
	case descriptor.KindNumber:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case descriptor.KindBoolean:
		return "BOOLEAN"
	case descriptor.KindDate:
		return "DATE"
	case descriptor.KindDateTime:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "DATETIME"
	case descriptor.KindTime:
		return "TIME"
	case descriptor.KindBinary:
		if pg {
			return "BYTEA"
		}
		return "BLOB"
	}
	return "TEXT"
}

// DDL returns the CREATE TABLE statements for m and its join tables.
func (s *Store) DDL(m *descriptor.Model) ([]string, error) {
	pk := m.PKField()
	var cols []string
	for _, f := range m.Fields() {
		if !f.HasColumn() {
			continue
		}
		def := s.quote(f.ColumnName()) + " " + s.columnType(f)
		switch {
		case f.Name == pk.Name && f.Kind == descriptor.KindInteger && s.isPostgres():
			def = s.quote(f.ColumnName()) + " BIGSERIAL PRIMARY KEY"
		case f.Name == pk.Name && f.Kind == descriptor.KindInteger:
			def += " AUTO_INCREMENT PRIMARY KEY"
		case f.Name == pk.Name:
			def += " PRIMARY KEY"
		default:
			if f.Required {
				def += " NOT NULL"
			}
			if u, _ := f.Meta["unique"].(bool); u {
				def += " UNIQUE"
			}
		}
		cols = append(cols, def)
	}
	out := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.quote(m.Table()), strings.Join(cols, ", "))}
	for _, f := range m.Fields() {
		if !f.IsMultiValued() {
			continue
		}
		target, err := s.ModelDescriptor(f.Relation.Target)
		if err != nil {
			return nil, err
		}
		j := s.through(m, f, target)
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL, %s %s NOT NULL, PRIMARY KEY (%s, %s))",
			s.quote(j.table),
			s.quote(j.source), s.columnType(descriptor.Field{Kind: pk.Kind}),
			s.quote(j.target), s.columnType(descriptor.Field{Kind: target.PKField().Kind}),
			s.quote(j.source), s.quote(j.target)))
	}
	return out, nil
}

// CreateTables creates the tables of every model in ids when missing.
func (s *Store) CreateTables(ctx context.Context, ids ...descriptor.ModelID) error {
	for _, id := range ids {
		m, err := s.ModelDescriptor(id)
		if err != nil {
			return err
		}
		stmts, err := s.DDL(m)
		if err != nil {
			return err
		}
		for _, st := range stmts {
			if _, err := s.db.ExecContext(ctx, st); err != nil {
				return fmt.Errorf("create %s: %w", id, err)
			}
		}
	}
	return nil
}
