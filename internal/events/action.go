package events

import (
	"context"

	"github.com/faciam-dev/gcadmin/internal/action"
)

// ActionData is the payload of action.* events.
type ActionData struct {
	RunID      string         `json:"runId"`
	Model      string         `json:"model"`
	Action     string         `json:"action"`
	User       string         `json:"user,omitempty"`
	Background bool           `json:"background"`
	Total      int            `json:"total"`
	OK         *bool          `json:"ok,omitempty"`
	Affected   int            `json:"affected"`
	Skipped    int            `json:"skipped"`
	Errors     int            `json:"errors"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"durationMs"`
	Report     map[string]any `json:"report,omitempty"`
}

// ActionEvent converts a pipeline record into an event keyed by model.
func ActionEvent(r action.Record) Event {
	data := ActionData{
		RunID:      r.RunID,
		Model:      r.Model.String(),
		Action:     r.Action,
		User:       r.User,
		Background: r.Background,
		Total:      r.Total,
		Error:      r.Err,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Result != nil {
		ok := r.Result.OK
		data.OK = &ok
		data.Affected = r.Result.Affected
		data.Skipped = r.Result.Skipped
		data.Errors = len(r.Result.Errors)
		data.Report = r.Result.Report
	}
	return NewEvent(r.Kind, r.Model.String(), data)
}

// ObserveAction publishes r. It makes a Dispatcher an action.Observer.
func (d *Dispatcher) ObserveAction(ctx context.Context, r action.Record) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	d.Dispatch(ctx, ActionEvent(r))
}
