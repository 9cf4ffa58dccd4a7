package filter

import (
	"errors"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Config is the filter part of an admin definition.
type Config struct {
	// Filters is the declared filter set; paths may cross one relation
	// ("author.username"). Empty means every filterable field.
	Filters []string
	// Search lists the free-text search fields.
	Search []string
	// Ordering is the orderable allow-list. Empty means every field backed
	// by a real column.
	Ordering []string
	// DefaultOrder applies when a query names no order.
	DefaultOrder []string
}

type target struct {
	path   string
	field  descriptor.Field
	class  Class
	pkKind descriptor.Kind // relation targets only
}

// Scope describes the rows an action targets: an explicit id list or a
// query made of filters, search and ordering.
type Scope struct {
	IDs     []any          `json:"ids,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
	Search  string         `json:"search,omitempty"`
	Order   []string       `json:"order,omitempty"`
}

// IsIDs reports an id-list scope.
func (s Scope) IsIDs() bool { return len(s.IDs) > 0 }

// Descriptor describes one declared filter for clients.
type Descriptor struct {
	Path      string              `json:"path"`
	Label     string              `json:"label"`
	Kind      string              `json:"kind"`
	Class     string              `json:"class"`
	Operators []store.Op          `json:"operators"`
	Choices   []descriptor.Choice `json:"choices,omitempty"`
}

// Engine parses and validates filters for one model.
type Engine struct {
	model     *descriptor.Model
	targets   []target
	byPath    map[string]target
	search    []string
	orderable []string
	order     []string
}

// NewEngine validates cfg against m. Relation paths resolve their target
// through src.
func NewEngine(src descriptor.Source, m *descriptor.Model, cfg Config) (*Engine, error) {
	e := &Engine{model: m, byPath: make(map[string]target)}
	id := m.ID().String()
	paths := cfg.Filters
	if len(paths) == 0 {
		for _, f := range m.Fields() {
			if ClassOf(f) != ClassNone {
				paths = append(paths, f.Name)
			}
		}
	}
	for _, p := range paths {
		t, err := resolve(src, m, p)
		if err != nil {
			return nil, err
		}
		if t.class == ClassNone {
			return nil, adminerr.Configf(id, p, "field is not filterable")
		}
		if _, dup := e.byPath[p]; dup {
			continue
		}
		e.byPath[p] = t
		e.targets = append(e.targets, t)
	}
	for _, p := range cfg.Search {
		t, err := resolve(src, m, p)
		if err != nil {
			return nil, err
		}
		if !t.field.Kind.IsTextual() {
			return nil, adminerr.Configf(id, p, "search fields must be text")
		}
		e.search = append(e.search, p)
	}
	if len(cfg.Ordering) == 0 {
		for _, f := range m.Fields() {
			if f.HasColumn() {
				e.orderable = append(e.orderable, f.Name)
			}
		}
	} else {
		for _, name := range cfg.Ordering {
			f, ok := m.Field(name)
			if !ok || !f.HasColumn() {
				return nil, adminerr.Configf(id, name, "field is not orderable")
			}
			e.orderable = append(e.orderable, name)
		}
	}
	for _, o := range cfg.DefaultOrder {
		if !slices.Contains(e.orderable, strings.TrimPrefix(o, "-")) {
			return nil, adminerr.Configf(id, o, "default order field is not orderable")
		}
	}
	e.order = slices.Clone(cfg.DefaultOrder)
	return e, nil
}

func resolve(src descriptor.Source, m *descriptor.Model, path string) (target, error) {
	head, rest, nested := strings.Cut(path, ".")
	f, ok := m.Field(head)
	if !ok {
		return target{}, adminerr.Configf(m.ID().String(), path, "unknown filter field")
	}
	if !nested {
		t := target{path: path, field: f, class: ClassOf(f)}
		if t.class == ClassRelation {
			tm, err := src.ModelDescriptor(f.Relation.Target)
			if err != nil {
				return target{}, adminerr.Configf(m.ID().String(), path, "relation target %s: %v", f.Relation.Target, err)
			}
			t.pkKind = tm.PKField().Kind
		}
		return t, nil
	}
	if f.Relation == nil || f.IsMultiValued() || strings.Contains(rest, ".") {
		return target{}, adminerr.Configf(m.ID().String(), path, "paths may cross one single-valued relation")
	}
	tm, err := src.ModelDescriptor(f.Relation.Target)
	if err != nil {
		return target{}, adminerr.Configf(m.ID().String(), path, "relation target %s: %v", f.Relation.Target, err)
	}
	tf, ok := tm.Field(rest)
	if !ok || tf.IsRelation() {
		return target{}, adminerr.Configf(m.ID().String(), path, "unknown field %s on %s", rest, tm.ID())
	}
	return target{path: path, field: tf, class: ClassOf(tf)}, nil
}

// Model returns the filtered model.
func (e *Engine) Model() *descriptor.Model { return e.model }

// SearchFields returns the configured search fields.
func (e *Engine) SearchFields() []string { return slices.Clone(e.search) }

// Orderable returns the orderable allow-list.
func (e *Engine) Orderable() []string { return slices.Clone(e.orderable) }

// DefaultOrder returns the ordering used when a query names none.
func (e *Engine) DefaultOrder() []string { return slices.Clone(e.order) }

// Describe lists the declared filters in declaration order.
func (e *Engine) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(e.targets))
	for _, t := range e.targets {
		label := t.field.Label()
		if head, _, nested := strings.Cut(t.path, "."); nested {
			if f, ok := e.model.Field(head); ok {
				label = f.Label() + " " + strings.ToLower(label)
			}
		}
		out = append(out, Descriptor{
			Path:      t.path,
			Label:     label,
			Kind:      t.field.Kind.String(),
			Class:     t.class.String(),
			Operators: t.class.Operators(),
			Choices:   t.field.Choices,
		})
	}
	return out
}

// splitKey maps "path" or "path.op" to a declared target and operator.
func (e *Engine) splitKey(key string) (target, store.Op, error) {
	if t, ok := e.byPath[key]; ok {
		return t, store.OpEq, nil
	}
	path, opName, ok := cutLast(key, ".")
	if !ok {
		return target{}, "", adminerr.Invalidf(key, "", "not a declared filter")
	}
	t, known := e.byPath[path]
	if !known {
		return target{}, "", adminerr.Invalidf(path, opName, "not a declared filter")
	}
	op, ok := store.ParseOp(opName)
	if !ok {
		return target{}, "", adminerr.Invalidf(path, opName, "unknown operator")
	}
	return t, op, nil
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// parse validates one key/value pair.
func (e *Engine) parse(key, raw string) (store.FilterSpec, error) {
	t, op, err := e.splitKey(key)
	if err != nil {
		return store.FilterSpec{}, err
	}
	if !t.class.Allows(op) {
		return store.FilterSpec{}, adminerr.Invalidf(t.path, string(op), "operator not allowed for %s fields", t.class)
	}
	spec, err := t.coerce(op, raw)
	if err != nil {
		return store.FilterSpec{}, adminerr.Invalidf(t.path, string(op), "%v", err)
	}
	return spec, nil
}

// ParseListFilters reads prefix+path[.op] keys from values. Unknown
// fields, illegal operators and unparsable values are dropped; the literal
// "null" under eq becomes an is-null test. Output is ordered by key.
func (e *Engine) ParseListFilters(values url.Values, prefix string) []store.FilterSpec {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []store.FilterSpec
	for _, k := range keys {
		spec, err := e.parse(strings.TrimPrefix(k, prefix), values.Get(k))
		if err != nil {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// ParseOrder keeps the order terms that are orderable and drops the rest.
func (e *Engine) ParseOrder(terms []string) []string {
	var out []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" && slices.Contains(e.orderable, strings.TrimPrefix(t, "-")) {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks a query scope strictly: any undeclared filter, illegal
// operator or unparsable value, unconfigured search or non-orderable order
// field rejects the whole scope.
func (e *Engine) Validate(s Scope) ([]store.FilterSpec, error) {
	keys := make([]string, 0, len(s.Filters))
	for k := range s.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	specs := make([]store.FilterSpec, 0, len(keys))
	for _, k := range keys {
		spec, err := e.parse(k, rawString(s.Filters[k]))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if s.Search != "" && len(e.search) == 0 {
		return nil, adminerr.Invalidf("search", "", "search is not enabled for %s", e.model.ID())
	}
	for _, o := range s.Order {
		name := strings.TrimPrefix(o, "-")
		if !slices.Contains(e.orderable, name) {
			return nil, adminerr.Invalidf(name, "order", "field is not orderable")
		}
	}
	return specs, nil
}

// CoerceIDs converts an explicit id list to the primary key kind.
func (e *Engine) CoerceIDs(ids []any) ([]any, error) {
	kind := e.model.PKField().Kind
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		v, err := kind.Coerce(id)
		if err != nil || v == nil {
			if err == nil {
				err = errors.New("null id")
			}
			return nil, adminerr.Invalidf("ids", "", "%v", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Compile validates s and returns the query selecting its rows.
func (e *Engine) Compile(s Scope) (store.Query, error) {
	q := store.NewQuery(e.model.ID())
	if s.IsIDs() {
		if len(s.Filters) > 0 || s.Search != "" {
			return q, adminerr.Invalidf("scope", "", "ids cannot be combined with filters or search")
		}
		ids, err := e.CoerceIDs(s.IDs)
		if err != nil {
			return q, err
		}
		return q.PKIn(e.model.PKAttr(), ids), nil
	}
	specs, err := e.Validate(s)
	if err != nil {
		return q, err
	}
	q = q.ApplyFilterSpecs(specs...)
	if s.Search != "" {
		q = q.WithSearch(s.Search, e.search)
	}
	order := s.Order
	if len(order) == 0 {
		order = e.order
	}
	return q.OrderBy(order...), nil
}
