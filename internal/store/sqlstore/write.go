package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// data maps field values to columns, skipping m2m and unknown fields.
func data(m *descriptor.Model, values store.Row) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		f, ok := m.Field(name)
		if !ok {
			return nil, fmt.Errorf("sqlstore: %s has no field %q", m.ID(), name)
		}
		if !f.HasColumn() {
			continue
		}
		out[f.ColumnName()] = v
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, id descriptor.ModelID, values store.Row) (store.Row, error) {
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return nil, err
	}
	d, err := data(m, values)
	if err != nil {
		return nil, err
	}
	pk := m.PKField()
	key, given := values[pk.Name]
	if given && key != nil {
		if err := s.insert(ctx, m, d); err != nil {
			return nil, s.mapErr(id, err)
		}
	} else {
		if pk.Kind != descriptor.KindInteger {
			return nil, &store.IntegrityViolation{Model: id, Constraint: pk.Name, Err: errors.New("primary key is required")}
		}
		delete(d, pk.ColumnName())
		n, err := s.table(m).WithContext(ctx).InsertGetId(d)
		if err != nil {
			return nil, s.mapErr(id, err)
		}
		key = n
	}
	return store.Get(ctx, s, id, key)
}

// insert writes a row whose primary key is supplied by the caller.
func (s *Store) insert(ctx context.Context, m *descriptor.Model, d map[string]any) error {
	cols := make([]string, 0, len(d))
	for c := range d {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = s.quote(c)
		marks[i] = s.dialect.Placeholder(i + 1)
		args[i] = d[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.quote(m.Table()), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	_, err := s.db.ExecContext(ctx, stmt, args...)
	return err
}

func (s *Store) Save(ctx context.Context, id descriptor.ModelID, pk any, values store.Row) error {
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return err
	}
	if err := s.mustExist(ctx, m, pk); err != nil {
		return err
	}
	d, err := data(m, values)
	if err != nil {
		return err
	}
	delete(d, m.PKField().ColumnName())
	if len(d) == 0 {
		return nil
	}
	_, err = s.table(m).Where(m.PKField().ColumnName(), pk).WithContext(ctx).Update(d)
	return s.mapErr(id, err)
}

func (s *Store) Delete(ctx context.Context, id descriptor.ModelID, pk any) error {
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return err
	}
	if err := s.mustExist(ctx, m, pk); err != nil {
		return err
	}
	for _, f := range m.Fields() {
		if f.IsMultiValued() {
			if err := s.M2MClear(ctx, id, pk, f.Name); err != nil {
				return err
			}
		}
	}
	_, err = s.table(m).Where(m.PKField().ColumnName(), pk).WithContext(ctx).Delete()
	return s.mapErr(id, err)
}

func (s *Store) mustExist(ctx context.Context, m *descriptor.Model, pk any) error {
	ok, err := s.Exists(ctx, store.NewQuery(m.ID()).Filter(m.PKAttr(), pk))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFoundInStore
	}
	return nil
}

// mapErr turns constraint failures reported by the drivers into
// *store.IntegrityViolation.
func (s *Store) mapErr(id descriptor.ModelID, err error) error {
	if err == nil {
		return nil
	}
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code.Class() == "23" {
		c := pe.Constraint
		if c == "" {
			c = pe.Column
		}
		return &store.IntegrityViolation{Model: id, Constraint: c, Err: err}
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1048, 1062, 1364, 1451, 1452:
			return &store.IntegrityViolation{Model: id, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", id, err)
}
