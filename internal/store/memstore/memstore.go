// Package memstore is an in-memory implementation of the storage adapter
// contract. It backs tests and the demo site.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

type table struct {
	model *descriptor.Model
	rows  map[string]store.Row
	order []string
	seq   int64
}

// Store keeps rows per model in maps guarded by a RWMutex.
type Store struct {
	descriptor.Source

	mu     sync.RWMutex
	tables map[descriptor.ModelID]*table
}

// New returns an empty store serving descriptors from src.
func New(src descriptor.Source) *Store {
	return &Store{Source: src, tables: make(map[descriptor.ModelID]*table)}
}

func key(v any) string { return fmt.Sprint(v) }

func (s *Store) table(id descriptor.ModelID) (*table, error) {
	if t, ok := s.tables[id]; ok {
		return t, nil
	}
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return nil, err
	}
	t := &table{model: m, rows: make(map[string]store.Row)}
	s.tables[id] = t
	return t, nil
}

// Seed inserts rows without uniqueness checks beyond the primary key.
func (s *Store) Seed(ctx context.Context, id descriptor.ModelID, rows ...store.Row) error {
	for _, r := range rows {
		if _, err := s.Create(ctx, id, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, q store.Query) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.match(q)
	if err != nil {
		return nil, err
	}
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		cp := maps.Clone(r)
		if len(q.Fields) > 0 {
			for k := range cp {
				if !slices.Contains(q.Fields, k) {
					delete(cp, k)
				}
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) FetchValues(ctx context.Context, q store.Query, field string) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.match(q)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[field])
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, q store.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.match(q.Unpaged())
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) Exists(ctx context.Context, q store.Query) (bool, error) {
	n, err := s.Count(ctx, q.Limit(1))
	return n > 0, err
}

func (s *Store) Create(ctx context.Context, id descriptor.ModelID, values store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(id)
	if err != nil {
		return nil, err
	}
	row := maps.Clone(values)
	if row == nil {
		row = store.Row{}
	}
	pk := t.model.PKAttr()
	if row[pk] == nil {
		if t.model.PKField().Kind != descriptor.KindInteger {
			return nil, &store.IntegrityViolation{Model: id, Constraint: pk, Err: fmt.Errorf("primary key required")}
		}
		t.seq++
		row[pk] = t.seq
	} else if n, ok := asFloat(row[pk]); ok && int64(n) > t.seq {
		t.seq = int64(n)
	}
	k := key(row[pk])
	if _, dup := t.rows[k]; dup {
		return nil, &store.IntegrityViolation{Model: id, Constraint: pk, Err: fmt.Errorf("duplicate primary key %v", row[pk])}
	}
	if err := s.checkRow(t, k, row); err != nil {
		return nil, err
	}
	t.rows[k] = row
	t.order = append(t.order, k)
	return maps.Clone(row), nil
}

func (s *Store) Save(ctx context.Context, id descriptor.ModelID, pk any, values store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(id)
	if err != nil {
		return err
	}
	k := key(pk)
	cur, ok := t.rows[k]
	if !ok {
		return store.ErrNotFoundInStore
	}
	next := maps.Clone(cur)
	for f, v := range values {
		if f == t.model.PKAttr() {
			continue
		}
		next[f] = v
	}
	if err := s.checkRow(t, k, next); err != nil {
		return err
	}
	t.rows[k] = next
	return nil
}

func (s *Store) Delete(ctx context.Context, id descriptor.ModelID, pk any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(id)
	if err != nil {
		return err
	}
	k := key(pk)
	if _, ok := t.rows[k]; !ok {
		return store.ErrNotFoundInStore
	}
	delete(t.rows, k)
	t.order = slices.DeleteFunc(t.order, func(x string) bool { return x == k })
	return nil
}

func (s *Store) M2MClear(ctx context.Context, id descriptor.ModelID, pk any, field string) error {
	return s.Save(ctx, id, pk, store.Row{field: []any{}})
}

func (s *Store) M2MAdd(ctx context.Context, id descriptor.ModelID, pk any, field string, ids []any) error {
	s.mu.Lock()
	t, err := s.table(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	cur, ok := t.rows[key(pk)]
	s.mu.Unlock()
	if !ok {
		return store.ErrNotFoundInStore
	}
	existing, _ := cur[field].([]any)
	merged := slices.Clone(existing)
	for _, v := range ids {
		if !slices.ContainsFunc(merged, func(x any) bool { return key(x) == key(v) }) {
			merged = append(merged, v)
		}
	}
	return s.Save(ctx, id, pk, store.Row{field: merged})
}

// checkRow enforces required fields and fields whose meta declares unique: true.
func (s *Store) checkRow(t *table, self string, row store.Row) error {
	for _, f := range t.model.Fields() {
		v, present := row[f.Name]
		if f.Required && !f.Nullable && !f.IsMultiValued() && (!present || v == nil) {
			if _, ok := f.Default.Resolve(); !ok && !f.AutoPopulated {
				return &store.IntegrityViolation{Model: t.model.ID(), Constraint: f.Name, Err: fmt.Errorf("%s may not be null", f.Name)}
			}
		}
		if unique, _ := f.Meta["unique"].(bool); unique && v != nil {
			for k, other := range t.rows {
				if k != self && key(other[f.Name]) == key(v) {
					return &store.IntegrityViolation{Model: t.model.ID(), Constraint: f.Name, Err: fmt.Errorf("duplicate %s %v", f.Name, v)}
				}
			}
		}
	}
	return nil
}

func (s *Store) match(q store.Query) ([]store.Row, error) {
	t, ok := s.tables[q.Model]
	if !ok {
		if _, err := s.ModelDescriptor(q.Model); err != nil {
			return nil, err
		}
		return nil, nil
	}
	var out []store.Row
	for _, k := range t.order {
		r := t.rows[k]
		ok, err := s.matches(t.model, r, q)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	if len(q.Orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Orders {
				c, _ := compare(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Off > 0 {
		if q.Off >= len(out) {
			return nil, nil
		}
		out = out[q.Off:]
	}
	if q.Lim > 0 && q.Lim < len(out) {
		out = out[:q.Lim]
	}
	return out, nil
}

func (s *Store) matches(m *descriptor.Model, r store.Row, q store.Query) (bool, error) {
	for _, f := range q.Filters {
		v, err := s.resolvePath(m, r, f.Path)
		if err != nil {
			return false, err
		}
		if !evaluate(f.Op, v, f.Value) {
			return false, nil
		}
	}
	if q.Search != nil && q.Search.Term != "" {
		hit := false
		for _, name := range q.Search.Fields {
			v, err := s.resolvePath(m, r, name)
			if err != nil {
				return false, err
			}
			if evaluate(store.OpIContains, v, q.Search.Term) {
				hit = true
				break
			}
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) resolvePath(m *descriptor.Model, r store.Row, path string) (any, error) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return r[head], nil
	}
	f, ok := m.Field(head)
	if !ok || f.Relation == nil {
		return nil, fmt.Errorf("memstore: %s is not a relation of %s", head, m.ID())
	}
	t, ok := s.tables[f.Relation.Target]
	if !ok {
		return nil, nil
	}
	target, ok := t.rows[key(r[head])]
	if !ok {
		return nil, nil
	}
	return target[rest], nil
}
