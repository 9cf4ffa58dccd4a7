package admin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/util"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Query parameters understood by List.
const (
	FilterPrefix = "f_"
	SearchParam  = "q"
	OrderParam   = "o"
	LimitParam   = "limit"
	OffsetParam  = "offset"
)

// Page is one page of a list view.
type Page struct {
	Items   []store.Row        `json:"items"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	Filters []store.FilterSpec `json:"-"`
	Order   []string           `json:"order,omitempty"`
}

// List runs a list-view query. Filters are parsed leniently: undeclared
// fields, illegal operators and unparsable values are ignored.
func (s *Site) List(ctx context.Context, id descriptor.ModelID, values url.Values) (*Page, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	specs := e.filters.ParseListFilters(values, FilterPrefix)
	q := store.NewQuery(id).ApplyFilterSpecs(specs...)
	if term := strings.TrimSpace(values.Get(SearchParam)); term != "" {
		if fields := e.filters.SearchFields(); len(fields) > 0 {
			q = q.WithSearch(term, fields)
		}
	}
	var terms []string
	for _, v := range values[OrderParam] {
		terms = append(terms, strings.Split(v, ",")...)
	}
	order := e.filters.ParseOrder(terms)
	if len(order) == 0 {
		order = e.filters.DefaultOrder()
	}
	if len(order) == 0 {
		order = []string{e.model.PKAttr()}
	}
	q = q.OrderBy(order...)

	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", id, err)
	}
	limit, _ := strconv.Atoi(values.Get(LimitParam))
	if limit <= 0 && e.def.ListPerPage > 0 {
		limit = e.def.ListPerPage
	}
	limit = util.SanitizeLimit(limit)
	offset, _ := strconv.Atoi(values.Get(OffsetParam))
	offset = max(offset, 0)
	rows, err := s.store.FetchAll(ctx, q.Limit(limit).Offset(offset))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", id, err)
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return &Page{Items: rows, Total: total, Limit: limit, Offset: offset, Filters: specs, Order: order}, nil
}

// GetObject loads one row by its primary key in text form.
func (s *Site) GetObject(ctx context.Context, id descriptor.ModelID, pk string) (store.Row, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	key, err := e.model.PKField().Kind.Parse(pk)
	if err != nil {
		return nil, adminerr.Invalidf(e.model.PKAttr(), "", "%v", err)
	}
	row, err := store.Get(ctx, s.store, id, key)
	if errors.Is(err, store.ErrNotFoundInStore) {
		return nil, adminerr.NotFoundf(id.String(), pk)
	}
	return row, err
}

// AddPerm is required to create rows of id through SaveObject.
func AddPerm(id descriptor.ModelID) string { return id.App + ".add_" + id.Model }

// ChangePerm is required to update rows of id.
func ChangePerm(id descriptor.ModelID) string { return id.App + ".change_" + id.Model }

// SaveObject converts a form submission through the bound widgets and
// creates (pk == "") or updates the row. Read-only fields are ignored.
// Grouped submissions are normalized first. Store integrity violations are
// returned as *adminerr.IntegrityError carrying the admin's message.
func (s *Site) SaveObject(ctx context.Context, id descriptor.ModelID, pk string, submission map[string]any, u rbac.User) (store.Row, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	mode := widgets.ModeAdd
	perm := AddPerm(id)
	if pk != "" {
		mode, perm = widgets.ModeEdit, ChangePerm(id)
	}
	if !s.pipeline.Authz.HasPerm(u, perm) {
		return nil, &adminerr.PermissionDenied{User: u.ID, Perm: perm}
	}
	var instance store.Row
	var key any
	if pk != "" {
		if instance, err = s.GetObject(ctx, id, pk); err != nil {
			return nil, err
		}
		key = instance[e.model.PKAttr()]
	}
	if g := e.form.Grouping(); g != nil {
		submission = g.Normalize(submission)
	}
	ws, err := e.form.Bind(mode, instance)
	if err != nil {
		return nil, err
	}
	values := store.Row{}
	m2m := map[string][]any{}
	for i, name := range e.form.Fields() {
		raw, ok := submission[name]
		if !ok || e.form.IsReadOnly(name, mode) {
			continue
		}
		v, err := ws[i].ToDomain(raw)
		if err != nil {
			return nil, adminerr.Invalidf(name, "", "%v", err)
		}
		v, err = ws[i].ToStorage(v)
		if err != nil {
			return nil, adminerr.Invalidf(name, "", "%v", err)
		}
		fd, _ := e.model.Field(name)
		if fd.IsMultiValued() {
			ids, _ := v.([]any)
			m2m[name] = ids
			continue
		}
		values[name] = v
	}
	if mode == widgets.ModeAdd {
		for _, f := range e.model.Fields() {
			if _, set := values[f.Name]; set || f.IsMultiValued() {
				continue
			}
			if v, ok := f.Default.Resolve(); ok {
				values[f.Name] = v
			}
		}
		row, err := s.store.Create(ctx, id, values)
		if err != nil {
			return nil, e.wrapWrite(err)
		}
		key = row[e.model.PKAttr()]
	} else if err := s.store.Save(ctx, id, key, values); err != nil {
		return nil, e.wrapWrite(err)
	}
	for name, ids := range m2m {
		if err := s.store.M2MClear(ctx, id, key, name); err != nil {
			return nil, e.wrapWrite(err)
		}
		if len(ids) == 0 {
			continue
		}
		if err := s.store.M2MAdd(ctx, id, key, name, ids); err != nil {
			return nil, e.wrapWrite(err)
		}
	}
	saved, err := store.Get(ctx, s.store, id, key)
	if err != nil {
		return nil, err
	}
	if s.changes != nil {
		c := audit.Change{Actor: u.ID, Model: id, PK: key, Before: instance, After: saved}
		if err := s.changes.RecordChange(ctx, c); err != nil {
			logger.L.Error("audit change", "model", id.String(), "pk", key, "err", err)
		}
	}
	return saved, nil
}

func (e *entry) wrapWrite(err error) error {
	var iv *store.IntegrityViolation
	if errors.As(err, &iv) {
		return &adminerr.IntegrityError{Message: e.def.integrity(err), Err: err}
	}
	if errors.Is(err, store.ErrNotFoundInStore) {
		return adminerr.NotFoundf(e.model.ID().String(), "row")
	}
	return fmt.Errorf("save %s: %w", e.model.ID(), err)
}
