package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// Entry is one stored change.
type Entry struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	PK        string         `json:"pk"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Added     int            `json:"added"`
	Removed   int            `json:"removed"`
	AppliedAt time.Time      `json:"appliedAt"`
}

func (r *Recorder) jsonText(col string) string {
	if r.Driver == "postgres" {
		return fmt.Sprintf("COALESCE(%s::text, '')", col)
	}
	return fmt.Sprintf("COALESCE(CAST(%s AS CHAR), '')", col)
}

// History returns the most recent changes of one object, newest first.
func (r *Recorder) History(ctx context.Context, id descriptor.ModelID, pk any, limit int) ([]Entry, error) {
	if r == nil || r.DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf("SELECT id, actor, action, object_pk, %s, %s, added_count, removed_count, applied_at FROM %saudit_logs WHERE model = %s AND object_pk = %s ORDER BY id DESC LIMIT %d",
		r.jsonText("before_json"), r.jsonText("after_json"), r.TablePrefix, r.placeholder(1), r.placeholder(2), limit)
	rows, err := r.DB.QueryContext(ctx, q, id.String(), fmt.Sprint(pk))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			before, after string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.PK, &before, &after, &e.Added, &e.Removed, &e.AppliedAt); err != nil {
			return nil, err
		}
		e.Before = decodeJSON(before)
		e.After = decodeJSON(after)
		out = append(out, e)
	}
	return out, rows.Err()
}

func decodeJSON(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// Recount recomputes added and removed counts of rows stored without them
// and returns how many rows were updated.
func (r *Recorder) Recount(ctx context.Context) (int, error) {
	if r == nil || r.DB == nil {
		return 0, nil
	}
	sel := fmt.Sprintf("SELECT id, %s, %s FROM %saudit_logs WHERE added_count = 0 AND removed_count = 0",
		r.jsonText("before_json"), r.jsonText("after_json"), r.TablePrefix)
	rows, err := r.DB.QueryContext(ctx, sel)
	if err != nil {
		return 0, err
	}
	type count struct {
		id             int64
		added, removed int
	}
	var pending []count
	for rows.Next() {
		var (
			id            int64
			before, after string
		)
		if err := rows.Scan(&id, &before, &after); err != nil {
			rows.Close()
			return 0, err
		}
		_, add, del := Diff(nilIfEmpty(decodeJSON(before)), nilIfEmpty(decodeJSON(after)))
		if add+del > 0 {
			pending = append(pending, count{id, add, del})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	upd := fmt.Sprintf("UPDATE %saudit_logs SET added_count = %s, removed_count = %s WHERE id = %s",
		r.TablePrefix, r.placeholder(1), r.placeholder(2), r.placeholder(3))
	for _, c := range pending {
		if _, err := r.DB.ExecContext(ctx, upd, c.added, c.removed, c.id); err != nil {
			return 0, fmt.Errorf("update %d: %w", c.id, err)
		}
	}
	return len(pending), nil
}

func nilIfEmpty(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
