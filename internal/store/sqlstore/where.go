package sqlstore

import (
	"fmt"
	"strings"

	"github.com/faciam-dev/goquent/orm/query"
	"github.com/lib/pq"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var comparisons = map[store.Op]string{
	store.OpEq:  "=",
	store.OpGT:  ">",
	store.OpGTE: ">=",
	store.OpLT:  "<",
	store.OpLTE: "<=",
}

// params hands out unique named parameters for raw fragments.
type params struct{ n int }

func (p *params) next() string {
	p.n++
	return fmt.Sprintf("p%d", p.n)
}

// apply adds the filters and search of q to b.
func (s *Store) apply(b *query.Query, m *descriptor.Model, q store.Query) error {
	var ps params
	for _, f := range q.Filters {
		if err := s.where(b, m, f, &ps); err != nil {
			return err
		}
	}
	if q.Search == nil || q.Search.Term == "" || len(q.Search.Fields) == 0 {
		return nil
	}
	frags := make([]string, 0, len(q.Search.Fields))
	args := make([]map[string]any, 0, len(q.Search.Fields))
	for _, path := range q.Search.Fields {
		frag, a, err := s.fragment(m, store.FilterSpec{Path: path, Op: store.OpIContains, Value: q.Search.Term}, &ps)
		if err != nil {
			return err
		}
		frags = append(frags, frag)
		args = append(args, a)
	}
	b.WhereGroup(func(g *query.Query) {
		for i, frag := range frags {
			if i == 0 {
				g.WhereRaw(frag, args[i])
				continue
			}
			g.OrWhereRaw(frag, args[i])
		}
	})
	return nil
}

// where adds one filter. Plain comparisons and mysql in-lists go through the
// builder; everything else is a raw fragment.
func (s *Store) where(b *query.Query, m *descriptor.Model, f store.FilterSpec, ps *params) error {
	if !strings.Contains(f.Path, ".") {
		fd, ok := m.Field(f.Path)
		if !ok {
			return fmt.Errorf("sqlstore: %s has no field %q", m.ID(), f.Path)
		}
		if fd.HasColumn() {
			if op, ok := comparisons[f.Op]; ok {
				b.Where(fd.ColumnName(), op, f.Value)
				return nil
			}
			if ids, ok := f.Value.([]any); ok && f.Op == store.OpIn && len(ids) > 0 && !s.isPostgres() {
				b.WhereIn(fd.ColumnName(), ids)
				return nil
			}
		}
	}
	frag, args, err := s.fragment(m, f, ps)
	if err != nil {
		return err
	}
	b.WhereRaw(frag, args)
	return nil
}

// fragment renders f as a raw condition with named parameters. A path
// crossing a foreign key becomes a subquery on the target table; an m2m
// field is matched through its join table.
func (s *Store) fragment(m *descriptor.Model, f store.FilterSpec, ps *params) (string, map[string]any, error) {
	head, rest, nested := strings.Cut(f.Path, ".")
	fd, ok := m.Field(head)
	if !ok {
		return "", nil, fmt.Errorf("sqlstore: %s has no field %q", m.ID(), head)
	}
	if !nested && !fd.IsMultiValued() {
		return s.condition(s.quote(fd.ColumnName()), f.Op, f.Value, ps)
	}
	if fd.Relation == nil {
		return "", nil, fmt.Errorf("sqlstore: %s is not a relation of %s", head, m.ID())
	}
	target, err := s.ModelDescriptor(fd.Relation.Target)
	if err != nil {
		return "", nil, err
	}
	pk := m.PKField()
	tpk := target.PKField()
	if !nested {
		j := s.through(m, fd, target)
		cond, args, err := s.condition(s.quote(j.target), f.Op, f.Value, ps)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
			s.quote(pk.ColumnName()), s.quote(j.source), s.quote(j.table), cond), args, nil
	}
	tf, ok := target.Field(rest)
	if !ok || !tf.HasColumn() {
		return "", nil, fmt.Errorf("sqlstore: %s has no field %q", target.ID(), rest)
	}
	cond, args, err := s.condition(s.quote(tf.ColumnName()), f.Op, f.Value, ps)
	if err != nil {
		return "", nil, err
	}
	if fd.IsMultiValued() {
		j := s.through(m, fd, target)
		return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s))",
			s.quote(pk.ColumnName()), s.quote(j.source), s.quote(j.table),
			s.quote(j.target), s.quote(tpk.ColumnName()), s.quote(target.Table()), cond), args, nil
	}
	return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
		s.quote(fd.ColumnName()), s.quote(tpk.ColumnName()), s.quote(target.Table()), cond), args, nil
}

func (s *Store) condition(col string, op store.Op, v any, ps *params) (string, map[string]any, error) {
	if cmp, ok := comparisons[op]; ok {
		p := ps.next()
		return fmt.Sprintf("%s %s :%s", col, cmp, p), map[string]any{p: v}, nil
	}
	switch op {
	case store.OpIsNull:
		return col + " IS NULL", nil, nil
	case store.OpIContains:
		p := ps.next()
		like := "%" + escapeLike(strings.ToLower(fmt.Sprint(v))) + "%"
		return fmt.Sprintf("LOWER(%s) LIKE :%s", col, p), map[string]any{p: like}, nil
	case store.OpIn:
		ids, ok := v.([]any)
		if !ok {
			return "", nil, fmt.Errorf("sqlstore: in filter on %s needs a list, got %T", col, v)
		}
		if len(ids) == 0 {
			return "1 = 0", nil, nil
		}
		if s.isPostgres() {
			p := ps.next()
			return fmt.Sprintf("%s = ANY(:%s)", col, p), map[string]any{p: pgArray(ids)}, nil
		}
		names := make([]string, len(ids))
		args := make(map[string]any, len(ids))
		for i, id := range ids {
			p := ps.next()
			names[i] = ":" + p
			args[p] = id
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(names, ", ")), args, nil
	}
	return "", nil, fmt.Errorf("sqlstore: unsupported operator %q", op)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// pgArray wraps ids for "= ANY" using the narrowest array type.
func pgArray(ids []any) any {
	ints := make([]int64, 0, len(ids))
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		switch v := id.(type) {
		case int64:
			ints = append(ints, v)
		case string:
			strs = append(strs, v)
		}
	}
	switch len(ids) {
	case len(ints):
		return pq.Array(ints)
	case len(strs):
		return pq.Array(strs)
	}
	return pq.Array(ids)
}
