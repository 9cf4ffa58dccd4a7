package admin

import (
	"context"
	"errors"
	"time"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/schema"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/metrics"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("admin site is frozen")

// Options configures a Site.
type Options struct {
	Store   store.Store
	Widgets *widgets.Registry
	Authz   rbac.Authorizer
	// Tokens signs scope tokens; without it SignScope, VerifyScope and
	// background dispatch are unavailable.
	Tokens     *scopetoken.Service
	Dispatcher action.Dispatcher
	Observers  []action.Observer
	// Changes records object saves made through SaveObject.
	Changes ChangeRecorder
}

// ChangeRecorder persists object changes.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, c audit.Change) error
}

// Site holds the registered admins. Register and Freeze run during
// single-threaded startup; afterwards the site is read-only.
type Site struct {
	store    store.Store
	cache    *descriptor.Cache
	widgets  *widgets.Registry
	builder  *schema.Builder
	pipeline *action.Pipeline
	tokens   *scopetoken.Service
	changes  ChangeRecorder

	entries map[key]*entry
	order   []key
	frozen  bool
}

// NewSite returns an empty site.
func NewSite(opts Options) (*Site, error) {
	if opts.Store == nil {
		return nil, errors.New("admin site requires a store")
	}
	reg := opts.Widgets
	if reg == nil {
		reg = widgets.NewRegistry()
	}
	cache := descriptor.NewCache(opts.Store)
	p := action.NewPipeline(opts.Store, opts.Authz)
	p.Tokens = opts.Tokens
	p.Dispatcher = opts.Dispatcher
	p.Observers = opts.Observers
	return &Site{
		store:    opts.Store,
		cache:    cache,
		widgets:  reg,
		builder:  &schema.Builder{Source: cache, Registry: reg, Loader: schema.StoreChoices{Reader: opts.Store}},
		pipeline: p,
		tokens:   opts.Tokens,
		changes:  opts.Changes,
		entries:  make(map[key]*entry),
	}, nil
}

// Register compiles def. Registering the same (model, settings) pair twice
// is a no-op.
func (s *Site) Register(def ModelAdmin) error {
	if s.frozen {
		return ErrFrozen
	}
	k := key{model: def.Model, settings: def.Settings}
	if _, ok := s.entries[k]; ok {
		return nil
	}
	if err := s.cache.Warm(def.Model); err != nil {
		return err
	}
	m, err := s.cache.ModelDescriptor(def.Model)
	if err != nil {
		return err
	}
	form, err := s.builder.Compile(m, def.schemaOptions())
	if err != nil {
		return err
	}
	if err := form.Check(); err != nil {
		return err
	}
	filters, err := filter.NewEngine(s.cache, m, def.filterConfig())
	if err != nil {
		return err
	}
	actions, err := compileActions(m, def)
	if err != nil {
		return err
	}
	s.entries[k] = &entry{def: def, model: m, form: form, filters: filters, actions: actions}
	s.order = append(s.order, k)
	logger.L.Debug("admin registered", "model", def.Model.String(), "settings", def.Settings, "fields", len(form.Fields()))
	return nil
}

// Freeze ends registration and freezes the descriptor cache and the widget
// registry.
func (s *Site) Freeze() {
	s.frozen = true
	s.cache.Freeze()
	s.widgets.Freeze()
	metrics.Models.Set(float64(len(s.Models())))
}

// Frozen reports whether Freeze was called.
func (s *Site) Frozen() bool { return s.frozen }

// Models returns the registered model ids in registration order, once each.
func (s *Site) Models() []descriptor.ModelID {
	var out []descriptor.ModelID
	seen := make(map[descriptor.ModelID]bool)
	for _, k := range s.order {
		if !seen[k.model] {
			seen[k.model] = true
			out = append(out, k.model)
		}
	}
	return out
}

// Widgets returns the site's widget registry.
func (s *Site) Widgets() *widgets.Registry { return s.widgets }

// Store returns the storage adapter.
func (s *Site) Store() store.Store { return s.store }

// lookup returns the first admin registered for id.
func (s *Site) lookup(id descriptor.ModelID) (*entry, error) {
	for _, k := range s.order {
		if k.model == id {
			return s.entries[k], nil
		}
	}
	return nil, adminerr.NotFoundf("model", id.String())
}

// Describe returns the model descriptor behind a registered admin.
func (s *Site) Describe(id descriptor.ModelID) (*descriptor.Model, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.model, nil
}

// GetSchema builds the form schema for model in mode. instance is the row
// being edited, nil when adding.
func (s *Site) GetSchema(ctx context.Context, id descriptor.ModelID, mode widgets.Mode, instance store.Row) (*schema.Result, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := e.form.Build(ctx, mode, instance)
	metrics.Since(metrics.SchemaBuilds.WithLabelValues(id.String(), string(mode), metrics.Status(err)), start)
	return res, err
}

// GetListFilters describes the declared filters of model.
func (s *Site) GetListFilters(id descriptor.ModelID) ([]filter.Descriptor, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.filters.Describe(), nil
}

// ListOptions returns the search fields and the orderable allow-list of
// model.
func (s *Site) ListOptions(id descriptor.ModelID) (search, orderable []string, err error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return e.filters.SearchFields(), e.filters.Orderable(), nil
}

// GetActionSpecs lists the actions of model that u may run.
func (s *Site) GetActionSpecs(ctx context.Context, id descriptor.ModelID, u rbac.User) ([]action.Spec, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out := []action.Spec{}
	for _, a := range e.actions {
		if a.RequiredPerm == "" || s.pipeline.Authz.HasPerm(u, a.RequiredPerm) {
			out = append(out, a.Spec)
		}
	}
	return out, nil
}

// ActionRequest addresses the rows of an action by exactly one of IDs,
// Scope or ScopeToken.
type ActionRequest struct {
	IDs        []any          `json:"ids,omitempty"`
	Scope      *filter.Scope  `json:"scope,omitempty"`
	ScopeToken string         `json:"scopeToken,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

func (r ActionRequest) scope(s *Site, id descriptor.ModelID) (filter.Scope, error) {
	n := 0
	if len(r.IDs) > 0 {
		n++
	}
	if r.Scope != nil {
		n++
	}
	if r.ScopeToken != "" {
		n++
	}
	if n != 1 {
		return filter.Scope{}, adminerr.Invalidf("scope", "", "exactly one of ids, scope or scopeToken is required")
	}
	switch {
	case len(r.IDs) > 0:
		return filter.Scope{IDs: r.IDs}, nil
	case r.Scope != nil:
		return *r.Scope, nil
	}
	model, sc, err := s.VerifyScope(r.ScopeToken)
	if err != nil {
		return filter.Scope{}, err
	}
	if model != id {
		return filter.Scope{}, adminerr.Invalidf("scopeToken", "", "token was issued for %s", model)
	}
	return sc, nil
}

// PerformAction runs the named action of model for u.
func (s *Site) PerformAction(ctx context.Context, id descriptor.ModelID, name string, req ActionRequest, u rbac.User) (*action.Outcome, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	a, ok := e.action(name)
	if !ok {
		return nil, adminerr.NotFoundf("action", name)
	}
	sc, err := req.scope(s, id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Perform(ctx, e.target(), a, sc, req.Params, u)
}

// Execute runs a dispatched job. It implements action.Executor.
func (s *Site) Execute(ctx context.Context, job action.Job) (*action.Result, error) {
	id, err := descriptor.ParseModelID(job.Model)
	if err != nil {
		return nil, adminerr.Invalidf("model", "", "%v", err)
	}
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	a, ok := e.action(job.Action)
	if !ok {
		return nil, adminerr.NotFoundf("action", job.Action)
	}
	return s.pipeline.RunJob(ctx, e.target(), a, job)
}

// SignScope validates scope against model and signs it.
func (s *Site) SignScope(id descriptor.ModelID, sc filter.Scope, ttl time.Duration) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, errors.New("scope tokens are not configured")
	}
	e, err := s.lookup(id)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := e.filters.Compile(sc); err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Sign(id, sc, ttl)
}

// VerifyScope returns the model and scope carried by tok. Every failure is
// scopetoken.ErrInvalidToken.
func (s *Site) VerifyScope(tok string) (descriptor.ModelID, filter.Scope, error) {
	if s.tokens == nil {
		return descriptor.ModelID{}, filter.Scope{}, scopetoken.ErrInvalidToken
	}
	return s.tokens.Verify(tok)
}
