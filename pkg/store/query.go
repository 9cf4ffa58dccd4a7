package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// Op is a filter operator.
type Op string

const (
	OpEq        Op = "eq"
	OpIContains Op = "icontains"
	OpGTE       Op = "gte"
	OpLTE       Op = "lte"
	OpGT        Op = "gt"
	OpLT        Op = "lt"
	OpIn        Op = "in"
	// OpIsNull is produced by the literal "null" under eq; it is never
	// accepted as an operator name in query keys.
	OpIsNull Op = "isnull"
)

// Operators lists the operators a query key may name, in canonical order.
var Operators = []Op{OpEq, OpIContains, OpGTE, OpLTE, OpGT, OpLT, OpIn}

// ParseOp maps a query-key suffix to an operator.
func ParseOp(s string) (Op, bool) {
	op := Op(strings.ToLower(s))
	if slices.Contains(Operators, op) {
		return op, true
	}
	return "", false
}

// FilterSpec is a single (path, operator, value) constraint. Path may cross
// one relation ("author.name"). Value is already coerced to the field kind;
// for OpIn it is a []any and for OpIsNull it is nil.
type FilterSpec struct {
	Path  string
	Op    Op
	Value any
}

func (f FilterSpec) String() string { return fmt.Sprintf("%s__%s=%v", f.Path, f.Op, f.Value) }

// Order is one ordering term.
type Order struct {
	Field string
	Desc  bool
}

// Search is a free-text search over a set of fields.
type Search struct {
	Term   string
	Fields []string
}

// Query is an immutable query description. Builder methods return modified
// copies; adapters execute it.
type Query struct {
	Model   descriptor.ModelID
	Filters []FilterSpec
	Search  *Search
	Orders  []Order
	Lim     int
	Off     int
	Related []string
	Fields  []string
}

// NewQuery starts a query over model.
func NewQuery(model descriptor.ModelID) Query { return Query{Model: model} }

func (q Query) clone() Query {
	q.Filters = slices.Clone(q.Filters)
	q.Orders = slices.Clone(q.Orders)
	q.Related = slices.Clone(q.Related)
	q.Fields = slices.Clone(q.Fields)
	if q.Search != nil {
		s := *q.Search
		s.Fields = slices.Clone(s.Fields)
		q.Search = &s
	}
	return q
}

// Filter adds an equality constraint.
func (q Query) Filter(path string, value any) Query {
	return q.ApplyFilterSpecs(FilterSpec{Path: path, Op: OpEq, Value: value})
}

// Where adds a constraint with an explicit operator.
func (q Query) Where(path string, op Op, value any) Query {
	return q.ApplyFilterSpecs(FilterSpec{Path: path, Op: op, Value: value})
}

// PKIn restricts the query to the given primary keys.
func (q Query) PKIn(pk string, ids []any) Query {
	return q.ApplyFilterSpecs(FilterSpec{Path: pk, Op: OpIn, Value: slices.Clone(ids)})
}

// ApplyFilterSpecs appends constraints; all constraints are ANDed.
func (q Query) ApplyFilterSpecs(specs ...FilterSpec) Query {
	out := q.clone()
	out.Filters = append(out.Filters, specs...)
	return out
}

// WithSearch sets a free-text search.
func (q Query) WithSearch(term string, fields []string) Query {
	out := q.clone()
	out.Search = &Search{Term: term, Fields: slices.Clone(fields)}
	return out
}

// OrderBy appends ordering terms; a leading "-" means descending.
func (q Query) OrderBy(fields ...string) Query {
	out := q.clone()
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			out.Orders = append(out.Orders, Order{Field: name, Desc: true})
			continue
		}
		out.Orders = append(out.Orders, Order{Field: f})
	}
	return out
}

// Limit caps the number of rows; 0 means no cap.
func (q Query) Limit(n int) Query {
	out := q.clone()
	out.Lim = n
	return out
}

// Offset skips n rows.
func (q Query) Offset(n int) Query {
	out := q.clone()
	out.Off = n
	return out
}

// SelectRelated asks the adapter to load fk targets alongside rows.
func (q Query) SelectRelated(fields ...string) Query {
	out := q.clone()
	out.Related = append(out.Related, fields...)
	return out
}

// Only restricts the loaded columns.
func (q Query) Only(fields ...string) Query {
	out := q.clone()
	out.Fields = append(out.Fields, fields...)
	return out
}

// Unpaged drops limit, offset and ordering, as used for counting.
func (q Query) Unpaged() Query {
	out := q.clone()
	out.Lim, out.Off, out.Orders = 0, 0, nil
	return out
}
