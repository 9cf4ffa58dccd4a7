package action

import (
	"context"
	"errors"
	"maps"

	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// ErrSkip tells the pipeline a row was deliberately left untouched.
var ErrSkip = errors.New("row skipped")

// Handler applies an action to one row.
type Handler func(ctx context.Context, rc *RunContext, row store.Row) error

// Action pairs a Spec with its row handler.
type Action struct {
	Spec
	Handler Handler
}

// Validate checks the declaration and the handler.
func (a Action) Validate() error {
	if err := a.Spec.Validate(); err != nil {
		return err
	}
	if a.Handler == nil {
		return adminerr.Configf("", a.Name, "action has no handler")
	}
	return nil
}

// RowError reports a failed row.
type RowError struct {
	PK      any    `json:"pk"`
	Message string `json:"message"`
}

// Result summarizes a finished run. OK is true iff no row failed.
type Result struct {
	OK        bool           `json:"ok"`
	Affected  int            `json:"affected"`
	Skipped   int            `json:"skipped"`
	Errors    []RowError     `json:"errors"`
	Report    map[string]any `json:"report,omitempty"`
	UndoToken string         `json:"undoToken,omitempty"`
}

// Outcome is what Perform returns. Background runs carry a JobID and no Result.
type Outcome struct {
	Background bool    `json:"background"`
	JobID      string  `json:"jobId,omitempty"`
	Total      int     `json:"total"`
	Result     *Result `json:"result,omitempty"`
}

// RunContext is shared by every row of one run.
type RunContext struct {
	Model  *descriptor.Model
	Store  store.Store
	Params map[string]any
	User   rbac.User

	report map[string]any
	undo   string
}

// Report sets a key in the run report.
func (rc *RunContext) Report(key string, v any) {
	if rc.report == nil {
		rc.report = make(map[string]any)
	}
	rc.report[key] = v
}

// SetUndoToken attaches an opaque token the client may use to revert the run.
func (rc *RunContext) SetUndoToken(tok string) { rc.undo = tok }

func (rc *RunContext) finish(res *Result) {
	res.Report = maps.Clone(rc.report)
	res.UndoToken = rc.undo
}

// DeleteSelectedName is the name of the built-in delete action.
const DeleteSelectedName = "delete_selected"

// DeletePerm is the permission required to delete rows of id.
func DeletePerm(id descriptor.ModelID) string { return id.App + ".delete_" + id.Model }

// DeleteSelected deletes every row in scope through Store.Delete. Rows that
// disappeared since the batch was fetched count as skipped.
func DeleteSelected(m *descriptor.Model) Action {
	return Action{
		Spec: Spec{
			Name:         DeleteSelectedName,
			Label:        "Delete selected " + m.VerboseNamePlural(),
			Danger:       true,
			Scopes:       []ScopeKind{ScopeIDs, ScopeQuery},
			RequiredPerm: DeletePerm(m.ID()),
		},
		Handler: func(ctx context.Context, rc *RunContext, row store.Row) error {
			err := rc.Store.Delete(ctx, rc.Model.ID(), row[rc.Model.PKAttr()])
			if errors.Is(err, store.ErrNotFoundInStore) {
				return ErrSkip
			}
			return err
		},
	}
}
