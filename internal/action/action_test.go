package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcadmin/internal/filter"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/internal/store/memstore"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

var itemID = descriptor.ModelID{App: "shop", Model: "item"}

type fixture struct {
	store  *memstore.Store
	target Target
}

func newFixture(t *testing.T, rows int) fixture {
	t.Helper()
	m := descriptor.MustModel(itemID, "id", descriptor.ModelOptions{},
		descriptor.Field{Name: "id", Kind: descriptor.KindInteger},
		descriptor.Field{Name: "name", Kind: descriptor.KindString, Required: true},
		descriptor.Field{Name: "qty", Kind: descriptor.KindInteger},
	)
	src, err := descriptor.NewStaticSource(m)
	if err != nil {
		t.Fatal(err)
	}
	s := memstore.New(src)
	for i := 1; i <= rows; i++ {
		if _, err := s.Create(context.Background(), itemID, store.Row{"name": fmt.Sprintf("item-%03d", i), "qty": int64(i % 10)}); err != nil {
			t.Fatal(err)
		}
	}
	eng, err := filter.NewEngine(src, m, filter.Config{Search: []string{"name"}})
	if err != nil {
		t.Fatal(err)
	}
	return fixture{store: s, target: Target{Model: m, Filters: eng}}
}

type captureDispatcher struct{ jobs []Job }

func (c *captureDispatcher) Dispatch(_ context.Context, job Job) error {
	c.jobs = append(c.jobs, job)
	return nil
}

func tokens(t *testing.T) *scopetoken.Service {
	t.Helper()
	svc, err := scopetoken.New([]byte("action-test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func count(t *testing.T, s *memstore.Store) int {
	t.Helper()
	n, err := s.Count(context.Background(), store.NewQuery(itemID))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestPerformBackgroundThreshold(t *testing.T) {
	f := newFixture(t, 250)
	disp := &captureDispatcher{}
	p := NewPipeline(f.store, nil)
	p.Tokens = tokens(t)
	p.Dispatcher = disp
	del := DeleteSelected(f.target.Model)

	tg := f.target
	tg.BatchSize = 100
	tg.BackgroundThreshold = 200
	out, err := p.Perform(context.Background(), tg, del, filter.Scope{}, nil, rbac.User{ID: "u1"})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if !out.Background || out.Result != nil || out.JobID == "" || out.Total != 250 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(disp.jobs) != 1 || disp.jobs[0].ID != out.JobID || disp.jobs[0].Action != DeleteSelectedName {
		t.Fatalf("unexpected jobs %+v", disp.jobs)
	}
	if n := count(t, f.store); n != 250 {
		t.Fatalf("rows touched before dispatch: %d left", n)
	}

	tg.BackgroundThreshold = 500
	out, err = p.Perform(context.Background(), tg, del, filter.Scope{}, nil, rbac.User{ID: "u1"})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if out.Background || out.Result == nil {
		t.Fatalf("expected synchronous run, got %+v", out)
	}
	if out.Result.Affected != 250 || !out.Result.OK || out.Result.Skipped != 0 {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	if n := count(t, f.store); n != 0 {
		t.Fatalf("%d rows left", n)
	}
}

func TestPerformWithoutDispatcherRunsInline(t *testing.T) {
	f := newFixture(t, 30)
	p := NewPipeline(f.store, nil)
	tg := f.target
	tg.BackgroundThreshold = 10
	out, err := p.Perform(context.Background(), tg, DeleteSelected(tg.Model), filter.Scope{}, nil, rbac.User{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Background || out.Result.Affected != 30 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestPerformRejectsParamsBeforeAnyRow(t *testing.T) {
	f := newFixture(t, 5)
	calls := 0
	bump := Action{
		Spec: Spec{Name: "bump", Scopes: []ScopeKind{ScopeQuery}, Params: map[string]ParamType{"days": ParamInteger}},
		Handler: func(context.Context, *RunContext, store.Row) error {
			calls++
			return nil
		},
	}
	p := NewPipeline(f.store, nil)
	_, err := p.Perform(context.Background(), f.target, bump, filter.Scope{}, map[string]any{"days": "5"}, rbac.User{})
	if !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ve *adminerr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "days" {
		t.Fatalf("error does not name the parameter: %v", err)
	}
	if calls != 0 {
		t.Fatalf("handler ran %d times", calls)
	}

	out, err := p.Perform(context.Background(), f.target, bump, filter.Scope{}, map[string]any{"days": float64(5)}, rbac.User{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Affected != 5 || calls != 5 {
		t.Fatalf("affected %d calls %d", out.Result.Affected, calls)
	}
}

func TestValidateParams(t *testing.T) {
	spec := Spec{Name: "x", Params: map[string]ParamType{
		"days": ParamInteger, "ratio": ParamNumber, "note": ParamString, "force": ParamBoolean,
	}}
	ok := map[string]any{"days": json.Number("3"), "ratio": 2, "note": "hi", "force": true}
	got, err := spec.ValidateParams(ok)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"days": int64(3), "ratio": float64(2), "note": "hi", "force": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}

	bad := []map[string]any{
		{"days": 1.5, "ratio": 1.0, "note": "", "force": false},
		{"days": 1, "ratio": "1", "note": "", "force": false},
		{"days": 1, "ratio": 1.0, "note": 3, "force": false},
		{"days": 1, "ratio": 1.0, "note": "", "force": "true"},
		{"days": 1, "ratio": 1.0, "note": ""},
		{"days": 1, "ratio": 1.0, "note": "", "force": false, "extra": 1},
	}
	for i, in := range bad {
		if _, err := spec.ValidateParams(in); !errors.Is(err, adminerr.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestPerformPermissionAndScopeKind(t *testing.T) {
	f := newFixture(t, 3)
	enf, err := rbac.NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}
	if err := enf.Grant("editor", DeletePerm(itemID)); err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(f.store, enf)
	del := DeleteSelected(f.target.Model)

	_, err = p.Perform(context.Background(), f.target, del, filter.Scope{IDs: []any{1}}, nil, rbac.User{ID: "u1", Roles: []string{"viewer"}})
	if !errors.Is(err, adminerr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	idsOnly := del
	idsOnly.Scopes = []ScopeKind{ScopeIDs}
	_, err = p.Perform(context.Background(), f.target, idsOnly, filter.Scope{Search: "item"}, nil, rbac.User{ID: "u1", Roles: []string{"editor"}})
	if !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error for query scope, got %v", err)
	}

	out, err := p.Perform(context.Background(), f.target, idsOnly, filter.Scope{IDs: []any{"1", float64(3)}}, nil, rbac.User{ID: "u1", Roles: []string{"editor"}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Affected != 2 || count(t, f.store) != 1 {
		t.Fatalf("unexpected result %+v", out.Result)
	}
}

func TestPerformRowFailuresAreSoft(t *testing.T) {
	f := newFixture(t, 6)
	act := Action{
		Spec: Spec{Name: "touch", Scopes: []ScopeKind{ScopeQuery}, BatchSize: 4},
		Handler: func(ctx context.Context, rc *RunContext, row store.Row) error {
			switch row["id"].(int64) {
			case 2:
				return ErrSkip
			case 3:
				return &store.IntegrityViolation{Model: itemID, Constraint: "qty", Err: errors.New("check failed")}
			case 5:
				return errors.New("boom")
			}
			rc.Report("last", row["id"])
			return nil
		},
	}
	p := NewPipeline(f.store, nil)
	tg := f.target
	tg.Integrity = func(error) string { return "quantity out of range" }
	out, err := p.Perform(context.Background(), tg, act, filter.Scope{}, nil, rbac.User{})
	if err != nil {
		t.Fatal(err)
	}
	want := &Result{
		OK:       false,
		Affected: 3,
		Skipped:  3,
		Errors: []RowError{
			{PK: int64(3), Message: "quantity out of range"},
			{PK: int64(5), Message: "boom"},
		},
		Report: map[string]any{"last": int64(6)},
	}
	if diff := cmp.Diff(want, out.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	tg.Integrity = nil
	out, err = p.Perform(context.Background(), tg, act, filter.Scope{IDs: []any{3}}, nil, rbac.User{})
	if !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("ids scope is not declared, got %v %+v", err, out)
	}
}

func TestPerformRecoversHandlerPanic(t *testing.T) {
	f := newFixture(t, 3)
	act := Action{
		Spec: Spec{Name: "tally", Scopes: []ScopeKind{ScopeIDs}},
		Handler: func(ctx context.Context, rc *RunContext, row store.Row) error {
			if row["id"].(int64) == 2 {
				var m map[string]int
				m["x"]++
			}
			return nil
		},
	}
	p := NewPipeline(f.store, nil)
	out, err := p.Perform(context.Background(), f.target, act, filter.Scope{IDs: []any{1, 2, 3}}, nil, rbac.User{})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	res := out.Result
	if res.OK || res.Affected != 2 || res.Skipped != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].PK != int64(2) || !strings.HasPrefix(res.Errors[0].Message, "panic: ") {
		t.Fatalf("unexpected row error %+v", res.Errors[0])
	}
}

// vanishingStore deletes one row right after its key has been fetched.
type vanishingStore struct {
	*memstore.Store
	victim any
}

func (v *vanishingStore) FetchValues(ctx context.Context, q store.Query, field string) ([]any, error) {
	vals, err := v.Store.FetchValues(ctx, q, field)
	if err == nil && v.victim != nil {
		_ = v.Store.Delete(ctx, itemID, v.victim)
		v.victim = nil
	}
	return vals, err
}

func TestPerformCountsVanishedRows(t *testing.T) {
	f := newFixture(t, 5)
	act := Action{
		Spec:    Spec{Name: "touch", Scopes: []ScopeKind{ScopeQuery}},
		Handler: func(context.Context, *RunContext, store.Row) error { return nil },
	}
	p := NewPipeline(&vanishingStore{Store: f.store, victim: int64(3)}, nil)
	out, err := p.Perform(context.Background(), f.target, act, filter.Scope{}, nil, rbac.User{})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if out.Total != 5 || out.Result.Affected != 4 || out.Result.Skipped != 1 {
		t.Fatalf("counters disagree with total: %+v %+v", out, out.Result)
	}
}

func TestPerformFilteredScope(t *testing.T) {
	f := newFixture(t, 40)
	p := NewPipeline(f.store, nil)
	scope := filter.Scope{Filters: map[string]any{"qty.gte": 8}}
	out, err := p.Perform(context.Background(), f.target, DeleteSelected(f.target.Model), scope, nil, rbac.User{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Total != 8 || out.Result.Affected != 8 || count(t, f.store) != 32 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	_, err = p.Perform(context.Background(), f.target, DeleteSelected(f.target.Model), filter.Scope{Filters: map[string]any{"color": "red"}}, nil, rbac.User{})
	if !errors.Is(err, adminerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunJob(t *testing.T) {
	f := newFixture(t, 12)
	disp := &captureDispatcher{}
	p := NewPipeline(f.store, nil)
	p.Tokens = tokens(t)
	p.Dispatcher = disp
	var records []Record
	p.Observers = []Observer{ObserverFunc(func(_ context.Context, r Record) { records = append(records, r) })}
	tg := f.target
	tg.BackgroundThreshold = 5

	out, err := p.Perform(context.Background(), tg, DeleteSelected(tg.Model), filter.Scope{Search: "item-01"}, nil, rbac.User{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Background || out.Total != 3 {
		t.Fatalf("expected inline run under the threshold, got %+v", out)
	}
	records = nil

	out, err = p.Perform(context.Background(), tg, DeleteSelected(tg.Model), filter.Scope{}, nil, rbac.User{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Background || out.Total != 9 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	raw, err := json.Marshal(disp.jobs[0])
	if err != nil {
		t.Fatal(err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatal(err)
	}
	res, err := p.RunJob(context.Background(), tg, DeleteSelected(tg.Model), job)
	if err != nil {
		t.Fatal(err)
	}
	if res.Affected != out.Total {
		t.Fatalf("affected %d want %d", res.Affected, out.Total)
	}
	if len(records) != 2 || records[0].Kind != KindDispatched || records[1].Kind != KindCompleted || records[1].RunID != job.ID || !records[1].Background {
		t.Fatalf("unexpected records %+v", records)
	}

	job.ScopeToken += "x"
	if _, err := p.RunJob(context.Background(), tg, DeleteSelected(tg.Model), job); !errors.Is(err, scopetoken.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
