// Package events publishes action lifecycle events to webhook, Redis and
// Kafka sinks with retries and a dead-letter store.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faciam-dev/gcadmin/internal/logger"
)

// Event is a notification payload.
type Event struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Key  string    `json:"key,omitempty"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewEvent stamps name and data with a fresh id and the current time.
func NewEvent(name, key string, data any) Event {
	return Event{ID: uuid.NewString(), Name: name, Key: key, Time: time.Now().UTC(), Data: data}
}

// Sink publishes events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// DLQ stores events every attempt failed for.
type DLQ interface {
	Store(ctx context.Context, e Event, attempts int, lastErr string) error
}

// Dispatcher fans events out to sinks, each delivery on its own goroutine
// with exponential backoff.
type Dispatcher struct {
	sinks        []Sink
	maxAttempts  int
	initialDelay time.Duration
	dlq          DLQ
	wg           sync.WaitGroup
}

// NewDispatcher creates a dispatcher from sinks and retry config.
func NewDispatcher(cfg Config, dlq DLQ, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{maxAttempts: 3, initialDelay: time.Second, dlq: dlq}
	if cfg.Retry.MaxAttempts > 0 {
		d.maxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		d.initialDelay = cfg.Retry.InitialDelay
	}
	d.sinks = append(d.sinks, sinks...)
	return d
}

// Len returns the number of sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch sends e to every sink asynchronously. Delivery outlives ctx's
// cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.retrySend(ctx, s, e)
		}()
	}
}

// Wait blocks until every pending delivery finished or went to the DLQ.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) retrySend(ctx context.Context, s Sink, e Event) {
	delay := d.initialDelay
	var err error
	for i := 1; i <= d.maxAttempts; i++ {
		if err = s.Emit(ctx, e); err == nil {
			return
		}
		if i < d.maxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	logger.L.Warn("event delivery failed", "event", e.Name, "id", e.ID, "attempts", d.maxAttempts, "err", err)
	if d.dlq != nil {
		if derr := d.dlq.Store(ctx, e, d.maxAttempts, err.Error()); derr != nil {
			logger.L.Error("store failed event", "id", e.ID, "err", derr)
		}
	}
}

// SQLDLQ stores failed events in <prefix>events_failed.
type SQLDLQ struct {
	DB          *sql.DB
	Driver      string
	TablePrefix string
}

// Store inserts the failed event.
func (q *SQLDLQ) Store(ctx context.Context, e Event, attempts int, lastErr string) error {
	if q == nil || q.DB == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tbl := q.TablePrefix + "events_failed"
	stmt := fmt.Sprintf("INSERT INTO %s(event_id, name, payload, attempts, last_error) VALUES (?, ?, ?, ?, ?)", tbl)
	if q.Driver == "postgres" {
		stmt = fmt.Sprintf("INSERT INTO %s(event_id, name, payload, attempts, last_error) VALUES ($1, $2, $3, $4, $5)", tbl)
	}
	_, err = q.DB.ExecContext(ctx, stmt, e.ID, e.Name, string(data), attempts, lastErr)
	return err
}
