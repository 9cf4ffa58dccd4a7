package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// DefaultBatchSize applies when neither the action nor the admin sets one.
const DefaultBatchSize = 100

// JobTokenTTL bounds how long a queued job may wait before its scope token expires.
const JobTokenTTL = time.Hour

// Target is the admin-level context an action runs in.
type Target struct {
	Model   *descriptor.Model
	Filters *filter.Engine
	// BatchSize is the admin default; zero means DefaultBatchSize.
	BatchSize int
	// BackgroundThreshold hands runs over more rows than this to the
	// dispatcher; zero keeps every run synchronous.
	BackgroundThreshold int
	// Integrity maps store integrity violations to a row message.
	Integrity func(error) string
}

func (t Target) batchSize(a Action) int {
	switch {
	case a.BatchSize > 0:
		return a.BatchSize
	case t.BatchSize > 0:
		return t.BatchSize
	}
	return DefaultBatchSize
}

func (t Target) message(err error) string {
	var iv *store.IntegrityViolation
	if errors.As(err, &iv) {
		if t.Integrity != nil {
			if msg := t.Integrity(err); msg != "" {
				return msg
			}
		}
		return adminerr.DefaultIntegrityMessage
	}
	return err.Error()
}

// Pipeline executes actions against a store.
type Pipeline struct {
	Store      store.Store
	Authz      rbac.Authorizer
	Tokens     *scopetoken.Service
	Dispatcher Dispatcher
	Observers  []Observer

	now func() time.Time
}

// NewPipeline returns a pipeline over s that checks permissions with authz.
func NewPipeline(s store.Store, authz rbac.Authorizer) *Pipeline {
	if authz == nil {
		authz = rbac.AllowAll{}
	}
	return &Pipeline{Store: s, Authz: authz, now: time.Now}
}

func (p *Pipeline) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Pipeline) authorize(a Action, u rbac.User) error {
	if a.RequiredPerm == "" || p.Authz.HasPerm(u, a.RequiredPerm) {
		return nil
	}
	return &adminerr.PermissionDenied{User: u.ID, Perm: a.RequiredPerm}
}

// prepare runs every check that must pass before any row is touched.
func (p *Pipeline) prepare(t Target, a Action, scope filter.Scope, params map[string]any, u rbac.User) (store.Query, map[string]any, error) {
	if err := p.authorize(a, u); err != nil {
		return store.Query{}, nil, err
	}
	kind := ScopeQuery
	if scope.IsIDs() {
		kind = ScopeIDs
	}
	if !a.Accepts(kind) {
		return store.Query{}, nil, adminerr.Invalidf("scope", string(kind), "action %s does not accept %s scopes", a.Name, kind)
	}
	q, err := t.Filters.Compile(scope)
	if err != nil {
		return store.Query{}, nil, err
	}
	clean, err := a.ValidateParams(params)
	if err != nil {
		return store.Query{}, nil, err
	}
	return q, clean, nil
}

// Perform checks permission, scope and params, counts the matching rows and
// either runs the action synchronously or hands it to the dispatcher.
func (p *Pipeline) Perform(ctx context.Context, t Target, a Action, scope filter.Scope, params map[string]any, u rbac.User) (*Outcome, error) {
	q, clean, err := p.prepare(t, a, scope, params, u)
	if err != nil {
		return nil, err
	}
	total, err := p.Store.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", t.Model.ID(), err)
	}
	if t.BackgroundThreshold > 0 && total > t.BackgroundThreshold && p.Dispatcher != nil && p.Tokens != nil {
		job, err := p.dispatch(ctx, t, a, scope, clean, u, total)
		if err != nil {
			return nil, err
		}
		return &Outcome{Background: true, JobID: job.ID, Total: total}, nil
	}
	res, err := p.run(ctx, uuid.NewString(), false, t, a, q, clean, u, total)
	if err != nil {
		return nil, err
	}
	return &Outcome{Total: total, Result: res}, nil
}

func (p *Pipeline) dispatch(ctx context.Context, t Target, a Action, scope filter.Scope, params map[string]any, u rbac.User, total int) (Job, error) {
	tok, _, err := p.Tokens.Sign(t.Model.ID(), scope, JobTokenTTL)
	if err != nil {
		return Job{}, fmt.Errorf("sign job scope: %w", err)
	}
	job := Job{
		ID:         uuid.NewString(),
		Model:      t.Model.ID().String(),
		Action:     a.Name,
		ScopeToken: tok,
		Params:     params,
		User:       u,
		Total:      total,
		EnqueuedAt: p.clock().UTC(),
	}
	if err := p.Dispatcher.Dispatch(ctx, job); err != nil {
		return Job{}, fmt.Errorf("dispatch %s: %w", a.Name, err)
	}
	logger.L.Info("action dispatched", "model", job.Model, "action", a.Name, "job", job.ID, "total", total)
	p.observe(ctx, Record{
		Kind: KindDispatched, RunID: job.ID, Model: t.Model.ID(), Action: a.Name,
		User: u.ID, Background: true, Total: total, Started: job.EnqueuedAt,
	})
	return job, nil
}

// RunJob executes a dispatched job. The scope is taken from the job's token
// and every check runs again.
func (p *Pipeline) RunJob(ctx context.Context, t Target, a Action, job Job) (*Result, error) {
	if p.Tokens == nil {
		return nil, errors.New("scope token service not configured")
	}
	model, scope, err := p.Tokens.Verify(job.ScopeToken)
	if err != nil {
		return nil, err
	}
	if model != t.Model.ID() {
		return nil, scopetoken.ErrInvalidToken
	}
	q, clean, err := p.prepare(t, a, scope, job.Params, job.User)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, job.ID, true, t, a, q, clean, job.User, job.Total)
}

// run walks the scope in keyset batches over the primary key. Rows fail
// softly; store errors while fetching a batch abort the run.
func (p *Pipeline) run(ctx context.Context, runID string, background bool, t Target, a Action, q store.Query, params map[string]any, u rbac.User, total int) (*Result, error) {
	started := p.clock()
	rec := Record{
		RunID: runID, Model: t.Model.ID(), Action: a.Name, User: u.ID,
		Background: background, Total: total, Started: started,
	}
	res, err := p.batches(ctx, t, a, q, params, u)
	rec.Duration = p.clock().Sub(started)
	if err != nil {
		rec.Kind, rec.Err = KindFailed, err.Error()
		p.observe(ctx, rec)
		return nil, err
	}
	rec.Kind, rec.Result = KindCompleted, res
	p.observe(ctx, rec)
	logger.L.Info("action completed", "model", t.Model.ID().String(), "action", a.Name,
		"affected", res.Affected, "skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

func (p *Pipeline) batches(ctx context.Context, t Target, a Action, q store.Query, params map[string]any, u rbac.User) (*Result, error) {
	res := &Result{Errors: []RowError{}}
	rc := &RunContext{Model: t.Model, Store: p.Store, Params: params, User: u}
	pk := t.Model.PKAttr()
	size := t.batchSize(a)
	base := q.Unpaged()
	var last any
	for {
		bq := base
		if last != nil {
			bq = bq.Where(pk, store.OpGT, last)
		}
		ids, err := p.Store.FetchValues(ctx, bq.OrderBy(pk).Limit(size), pk)
		if err != nil {
			return nil, fmt.Errorf("fetch batch keys: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		rows, err := p.Store.FetchAll(ctx, store.NewQuery(t.Model.ID()).PKIn(pk, ids).OrderBy(pk))
		if err != nil {
			return nil, fmt.Errorf("fetch batch rows: %w", err)
		}
		// Keys deleted between the two fetches count as skipped.
		if gone := len(ids) - len(rows); gone > 0 {
			res.Skipped += gone
		}
		for _, row := range rows {
			switch err := handle(ctx, a, rc, row, pk); {
			case err == nil:
				res.Affected++
			case errors.Is(err, ErrSkip):
				res.Skipped++
			default:
				res.Skipped++
				res.Errors = append(res.Errors, RowError{PK: row[pk], Message: t.message(err)})
			}
		}
		if len(ids) < size {
			break
		}
		last = ids[len(ids)-1]
	}
	res.OK = len(res.Errors) == 0
	rc.finish(res)
	return res, nil
}

// handle runs the row handler, turning a panic into a row error.
func handle(ctx context.Context, a Action, rc *RunContext, row store.Row, pk string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Error("action handler panic", "action", a.Name, "pk", row[pk], "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Handler(ctx, rc, row)
}
