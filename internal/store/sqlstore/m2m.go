package sqlstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// joinTable names the table backing one m2m field. Field meta "through",
// "through_source" and "through_target" override the defaults
// <table>_<field>, <model>_id and <target>_id.
type joinTable struct {
	table, source, target string
}

func (s *Store) through(m *descriptor.Model, f descriptor.Field, target *descriptor.Model) joinTable {
	j := joinTable{
		table:  m.Table() + "_" + f.Name,
		source: m.ID().Model + "_id",
		target: target.ID().Model + "_id",
	}
	if v := f.MetaString("through"); v != "" {
		j.table = v
	}
	if v := f.MetaString("through_source"); v != "" {
		j.source = v
	}
	if v := f.MetaString("through_target"); v != "" {
		j.target = v
	}
	if j.source == j.target {
		j.source, j.target = "from_"+j.source, "to_"+j.target
	}
	return j
}

func (s *Store) m2mField(id descriptor.ModelID, field string) (*descriptor.Model, descriptor.Field, joinTable, error) {
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return nil, descriptor.Field{}, joinTable{}, err
	}
	f, ok := m.Field(field)
	if !ok || !f.IsMultiValued() {
		return nil, descriptor.Field{}, joinTable{}, fmt.Errorf("sqlstore: %s.%s is not an m2m field", id, field)
	}
	target, err := s.ModelDescriptor(f.Relation.Target)
	if err != nil {
		return nil, descriptor.Field{}, joinTable{}, err
	}
	return m, f, s.through(m, f, target), nil
}

// loadM2M attaches the sorted target keys of field f to every row.
func (s *Store) loadM2M(ctx context.Context, m *descriptor.Model, f descriptor.Field, rows []store.Row) error {
	target, err := s.ModelDescriptor(f.Relation.Target)
	if err != nil {
		return err
	}
	j := s.through(m, f, target)
	keys := make([]any, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r[m.PKAttr()])
	}
	b := s.queryTable(j.table).Select(j.source, j.target).OrderBy(j.target, "asc")
	if s.isPostgres() {
		b.WhereRaw(s.quote(j.source)+" = ANY(:keys)", map[string]any{"keys": pgArray(keys)})
	} else {
		b.WhereIn(j.source, keys)
	}
	sqlStr, args, err := b.Build()
	if err != nil {
		return err
	}
	rs, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("load %s.%s: %w", m.ID(), f.Name, err)
	}
	defer rs.Close()
	pkKind, tKind := m.PKField().Kind, target.PKField().Kind
	byKey := map[string][]any{}
	for rs.Next() {
		var src, dst any
		if err := rs.Scan(&src, &dst); err != nil {
			return err
		}
		k := fmt.Sprint(fromDB(descriptor.Field{Kind: pkKind}, src))
		byKey[k] = append(byKey[k], fromDB(descriptor.Field{Kind: tKind}, dst))
	}
	if err := rs.Err(); err != nil {
		return err
	}
	for _, r := range rows {
		ids := byKey[fmt.Sprint(r[m.PKAttr()])]
		if ids == nil {
			ids = []any{}
		}
		r[f.Name] = ids
	}
	return nil
}

func (s *Store) M2MClear(ctx context.Context, id descriptor.ModelID, pk any, field string) error {
	_, _, j, err := s.m2mField(id, field)
	if err != nil {
		return err
	}
	_, err = s.queryTable(j.table).Where(j.source, pk).WithContext(ctx).Delete()
	return s.mapErr(id, err)
}

// M2MAdd links ids to pk, skipping links that already exist.
func (s *Store) M2MAdd(ctx context.Context, id descriptor.ModelID, pk any, field string, ids []any) error {
	m, f, j, err := s.m2mField(id, field)
	if err != nil {
		return err
	}
	existing, err := s.FetchAll(ctx, store.NewQuery(id).Filter(m.PKAttr(), pk).Only(m.PKAttr(), f.Name))
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return store.ErrNotFoundInStore
	}
	have, _ := existing[0][f.Name].([]any)
	for _, target := range ids {
		if slices.ContainsFunc(have, func(v any) bool { return fmt.Sprint(v) == fmt.Sprint(target) }) {
			continue
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			s.quote(j.table), s.quote(j.source), s.quote(j.target),
			s.dialect.Placeholder(1), s.dialect.Placeholder(2))
		if _, err := s.db.ExecContext(ctx, stmt, pk, target); err != nil {
			return s.mapErr(id, err)
		}
		have = append(have, target)
	}
	return nil
}
