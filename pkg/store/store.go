// Package store declares the contract a storage adapter satisfies for the
// admin engine. The engine builds Query values and never talks to a database
// directly.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

// Row is one record keyed by field name. m2m fields hold []any of target pks.
type Row map[string]any

// ErrNotFoundInStore is returned when a row addressed by pk does not exist.
var ErrNotFoundInStore = errors.New("row not found in store")

// IntegrityViolation is returned when the store rejects a write.
type IntegrityViolation struct {
	Model      descriptor.ModelID
	Constraint string
	Err        error
}

func (e *IntegrityViolation) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: integrity violation on %s: %v", e.Model, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: integrity violation: %v", e.Model, e.Err)
}

func (e *IntegrityViolation) Unwrap() error { return e.Err }

// Reader executes queries.
type Reader interface {
	FetchAll(ctx context.Context, q Query) ([]Row, error)
	// FetchValues returns one field's values for the matching rows, in query order.
	FetchValues(ctx context.Context, q Query, field string) ([]any, error)
	Count(ctx context.Context, q Query) (int, error)
	Exists(ctx context.Context, q Query) (bool, error)
}

// Writer mutates rows.
type Writer interface {
	Create(ctx context.Context, model descriptor.ModelID, values Row) (Row, error)
	Save(ctx context.Context, model descriptor.ModelID, pk any, values Row) error
	Delete(ctx context.Context, model descriptor.ModelID, pk any) error
	M2MClear(ctx context.Context, model descriptor.ModelID, pk any, field string) error
	M2MAdd(ctx context.Context, model descriptor.ModelID, pk any, field string, ids []any) error
}

// Store is the full adapter contract.
type Store interface {
	descriptor.Source
	Reader
	Writer
}

// Get fetches a single row by primary key.
func Get(ctx context.Context, s Store, model descriptor.ModelID, pk any) (Row, error) {
	attr, err := s.PKAttr(model)
	if err != nil {
		return nil, err
	}
	rows, err := s.FetchAll(ctx, NewQuery(model).Filter(attr, pk).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFoundInStore
	}
	return rows[0], nil
}
