// Package adminerr defines the error taxonomy shared by the admin engine.
// Every typed error matches its sentinel through errors.Is.
package adminerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrIntegrity        = errors.New("integrity violation")
)

// DefaultIntegrityMessage is used when an admin does not map store failures.
const DefaultIntegrityMessage = "integrity constraint violated"

// ConfigurationError reports a structural admin-definition bug.
type ConfigurationError struct {
	Model  string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Model != "" {
		b.WriteString(": ")
		b.WriteString(e.Model)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError.
func Configf(model, field, format string, args ...any) error {
	return &ConfigurationError{Model: model, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed filters, scopes or parameters.
type ValidationError struct {
	Field    string
	Operator string
	Reason   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Operator != "":
		return fmt.Sprintf("invalid %s (%s): %s", e.Field, e.Operator, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalidf builds a ValidationError.
func Invalidf(field, op, format string, args ...any) error {
	return &ValidationError{Field: field, Operator: op, Reason: fmt.Sprintf(format, args...)}
}

// PermissionDenied reports a missing permission.
type PermissionDenied struct {
	User string
	Perm string
}

func (e *PermissionDenied) Error() string {
	if e.Perm == "" {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: %s lacks %s", e.User, e.Perm)
}

func (e *PermissionDenied) Is(target error) bool { return target == ErrPermissionDenied }

// NotFound reports an unknown model, action or row.
type NotFound struct {
	What string
	Name string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s %q not found", e.What, e.Name) }

func (e *NotFound) Is(target error) bool { return target == ErrNotFound }

// NotFoundf builds a NotFound error.
func NotFoundf(what, name string) error { return &NotFound{What: what, Name: name} }

// IntegrityError is a store rejection mapped to a domain message.
type IntegrityError struct {
	Message string
	Err     error
}

func (e *IntegrityError) Error() string {
	if e.Message == "" {
		return DefaultIntegrityMessage
	}
	return e.Message
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
