package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Change is one create, update or delete of a row through the admin.
type Change struct {
	Actor  string
	Model  descriptor.ModelID
	PK     any
	Before store.Row
	After  store.Row
}

// Kind classifies the change.
func (c Change) Kind() string {
	switch {
	case c.Before == nil:
		return "add"
	case c.After == nil:
		return "delete"
	}
	return "update"
}

// Recorder writes audit rows to <prefix>action_runs and <prefix>audit_logs.
type Recorder struct {
	DB          *sql.DB
	Driver      string // mysql or postgres
	TablePrefix string
}

func (r *Recorder) placeholder(i int) string {
	if r.Driver == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (r *Recorder) placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ","
		}
		out += r.placeholder(i)
	}
	return out
}

// WriteRun records a dispatched, completed or failed action run.
func (r *Recorder) WriteRun(ctx context.Context, rec action.Record) error {
	if r == nil || r.DB == nil {
		return nil
	}
	var affected, skipped, failed int
	if rec.Result != nil {
		affected, skipped, failed = rec.Result.Affected, rec.Result.Skipped, len(rec.Result.Errors)
	}
	var errArg any
	if rec.Err != "" {
		errArg = rec.Err
	}
	q := fmt.Sprintf("INSERT INTO %saction_runs(run_id, kind, model, action, actor, background, total, affected, skipped, failed, last_error, duration_ms) VALUES (%s)",
		r.TablePrefix, r.placeholders(12))
	_, err := r.DB.ExecContext(ctx, q, rec.RunID, rec.Kind, rec.Model.String(), rec.Action, rec.User,
		rec.Background, rec.Total, affected, skipped, failed, errArg, rec.Duration.Milliseconds())
	return err
}

// ObserveAction makes a Recorder an action.Observer. Write failures are
// logged and do not affect the run.
func (r *Recorder) ObserveAction(ctx context.Context, rec action.Record) {
	if err := r.WriteRun(ctx, rec); err != nil {
		logger.L.Error("audit action run", "run", rec.RunID, "err", err)
	}
}

// RecordChange writes before/after JSON and the changed key counts.
func (r *Recorder) RecordChange(ctx context.Context, c Change) error {
	if r == nil || r.DB == nil {
		return nil
	}
	_, added, removed := Diff(c.Before, c.After)
	var before, after any
	if c.Before != nil {
		before = Canonical(c.Before)
	}
	if c.After != nil {
		after = Canonical(c.After)
	}
	q := fmt.Sprintf("INSERT INTO %saudit_logs(actor, action, model, object_pk, before_json, after_json, added_count, removed_count) VALUES (%s)",
		r.TablePrefix, r.placeholders(8))
	_, err := r.DB.ExecContext(ctx, q, c.Actor, c.Kind(), c.Model.String(), fmt.Sprint(c.PK), before, after, added, removed)
	return err
}

// PruneRuns deletes action runs created before cutoff and returns the number
// of rows removed.
func (r *Recorder) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.DB == nil {
		return 0, nil
	}
	q := fmt.Sprintf("DELETE FROM %saction_runs WHERE created_at < %s", r.TablePrefix, r.placeholders(1))
	res, err := r.DB.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
