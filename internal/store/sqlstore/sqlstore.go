// Package sqlstore implements the storage adapter contract on PostgreSQL and
// MySQL. Queries are built with goquent; m2m relations live in join tables.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
	"github.com/faciam-dev/gcadmin/pkg/util"
)

// Store executes store.Query values against a SQL database.
type Store struct {
	descriptor.Source

	db      *sql.DB
	driver  string
	dialect ormdriver.Dialect
}

// New returns a Store for driver ("postgres" or "mysql") serving descriptors
// from src.
func New(db *sql.DB, driver string, src descriptor.Source) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	d := util.DialectFromDriver(driver)
	if _, ok := d.(util.UnsupportedDialect); ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	return &Store{Source: src, db: db, driver: driver, dialect: d}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) isPostgres() bool {
	_, ok := s.dialect.(ormdriver.PostgresDialect)
	return ok
}

func (s *Store) quote(ident string) string { return s.dialect.QuoteIdent(ident) }

func (s *Store) table(m *descriptor.Model) *query.Query { return s.queryTable(m.Table()) }

func (s *Store) queryTable(name string) *query.Query {
	return query.New(s.db, name, s.dialect)
}

// columns returns the column-backed fields of m restricted to only when set.
func columns(m *descriptor.Model, only []string) []descriptor.Field {
	var out []descriptor.Field
	for _, f := range m.Fields() {
		if !f.HasColumn() {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, f.Name) && f.Name != m.PKAttr() {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Store) FetchAll(ctx context.Context, q store.Query) ([]store.Row, error) {
	m, err := s.ModelDescriptor(q.Model)
	if err != nil {
		return nil, err
	}
	cols := columns(m, q.Fields)
	b, err := s.selectQuery(m, q, cols)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, b, m, cols)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}
	for _, f := range m.Fields() {
		if !f.IsMultiValued() || (len(q.Fields) > 0 && !slices.Contains(q.Fields, f.Name)) {
			continue
		}
		if err := s.loadM2M(ctx, m, f, rows); err != nil {
			return nil, err
		}
	}
	if len(q.Fields) > 0 && !slices.Contains(q.Fields, m.PKAttr()) {
		for _, r := range rows {
			delete(r, m.PKAttr())
		}
	}
	return rows, nil
}

func (s *Store) FetchValues(ctx context.Context, q store.Query, field string) ([]any, error) {
	m, err := s.ModelDescriptor(q.Model)
	if err != nil {
		return nil, err
	}
	f, ok := m.Field(field)
	if !ok || !f.HasColumn() {
		return nil, fmt.Errorf("sqlstore: %s has no column %q", m.ID(), field)
	}
	b, err := s.selectQuery(m, q, []descriptor.Field{f})
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, b, m, []descriptor.Field{f})
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[field]
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	m, err := s.ModelDescriptor(q.Model)
	if err != nil {
		return 0, err
	}
	b := s.table(m)
	if err := s.apply(b, m, q.Unpaged()); err != nil {
		return 0, err
	}
	n, err := b.WithContext(ctx).Count("*")
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.ID(), err)
	}
	return int(n), nil
}

func (s *Store) Exists(ctx context.Context, q store.Query) (bool, error) {
	n, err := s.Count(ctx, q)
	return n > 0, err
}

func (s *Store) selectQuery(m *descriptor.Model, q store.Query, cols []descriptor.Field) (*query.Query, error) {
	b := s.table(m)
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.ColumnName()
	}
	b.Select(names...)
	if err := s.apply(b, m, q); err != nil {
		return nil, err
	}
	for _, o := range q.Orders {
		f, ok := m.Field(o.Field)
		if !ok || !f.HasColumn() {
			return nil, fmt.Errorf("sqlstore: cannot order %s by %q", m.ID(), o.Field)
		}
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		b.OrderBy(f.ColumnName(), dir)
	}
	if q.Lim > 0 {
		b.Limit(q.Lim)
	}
	if q.Off > 0 {
		b.Offset(q.Off)
	}
	return b, nil
}

// query runs b and converts every column back to its field's domain type.
func (s *Store) query(ctx context.Context, b *query.Query, m *descriptor.Model, cols []descriptor.Field) ([]store.Row, error) {
	sqlStr, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	rs, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.ID(), err)
	}
	defer rs.Close()

	out := []store.Row{}
	for rs.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.ID(), err)
		}
		row := make(store.Row, len(cols))
		for i, f := range cols {
			row[f.Name] = fromDB(f, raw[i])
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

func fromDB(f descriptor.Field, v any) any {
	if b, ok := v.([]byte); ok && f.Kind != descriptor.KindBinary {
		v = string(b)
	}
	out, err := f.Kind.Coerce(v)
	if err != nil {
		return v
	}
	return out
}
