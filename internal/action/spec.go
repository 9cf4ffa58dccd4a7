// Package action runs permission-gated bulk operations over a scope in
// fixed-size batches, synchronously or through a background dispatcher.
package action

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
)

// ParamType is the primitive type of an action parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Valid reports a known parameter type.
func (t ParamType) Valid() bool {
	switch t {
	case ParamString, ParamInteger, ParamNumber, ParamBoolean:
		return true
	}
	return false
}

// ScopeKind is a way of addressing target rows.
type ScopeKind string

const (
	ScopeIDs   ScopeKind = "ids"
	ScopeQuery ScopeKind = "query"
)

// Spec is the public declaration of an action.
type Spec struct {
	Name         string               `json:"name" yaml:"name"`
	Label        string               `json:"label" yaml:"label"`
	Description  string               `json:"description,omitempty" yaml:"description,omitempty"`
	Danger       bool                 `json:"danger" yaml:"danger"`
	Scopes       []ScopeKind          `json:"scopes" yaml:"scopes"`
	Params       map[string]ParamType `json:"params,omitempty" yaml:"params,omitempty"`
	RequiredPerm string               `json:"requiredPerm,omitempty" yaml:"required_perm,omitempty"`
	BatchSize    int                  `json:"batchSize,omitempty" yaml:"batch_size,omitempty"`
}

// Accepts reports whether k is a declared scope kind.
func (s Spec) Accepts(k ScopeKind) bool { return slices.Contains(s.Scopes, k) }

// Validate checks the declaration itself.
func (s Spec) Validate() error {
	if s.Name == "" {
		return adminerr.Configf("", "", "action without name")
	}
	if len(s.Scopes) == 0 {
		return adminerr.Configf("", s.Name, "action declares no scope kinds")
	}
	for _, k := range s.Scopes {
		if k != ScopeIDs && k != ScopeQuery {
			return adminerr.Configf("", s.Name, "unknown scope kind %q", k)
		}
	}
	for name, t := range s.Params {
		if !t.Valid() {
			return adminerr.Configf("", s.Name, "parameter %s has unknown type %q", name, t)
		}
	}
	if s.BatchSize < 0 {
		return adminerr.Configf("", s.Name, "negative batch size")
	}
	return nil
}

// ValidateParams checks params strictly against the declared schema and
// returns them normalized: integers as int64, numbers as float64. JSON
// numbers with an integral value satisfy integer; strings never satisfy a
// numeric type.
func (s Spec) ValidateParams(params map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if _, ok := s.Params[k]; !ok {
			return nil, adminerr.Invalidf(k, "param", "parameter is not declared by %s", s.Name)
		}
	}
	declared := make([]string, 0, len(s.Params))
	for k := range s.Params {
		declared = append(declared, k)
	}
	sort.Strings(declared)
	out := make(map[string]any, len(s.Params))
	for _, k := range declared {
		v, ok := params[k]
		if !ok {
			return nil, adminerr.Invalidf(k, "param", "missing required parameter")
		}
		nv, err := checkParam(s.Params[k], v)
		if err != nil {
			return nil, adminerr.Invalidf(k, "param", "%v", err)
		}
		out[k] = nv
	}
	return out, nil
}

func checkParam(t ParamType, v any) (any, error) {
	switch t {
	case ParamString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ParamBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ParamInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n), nil
			}
		case json.Number:
			if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
				return i, nil
			}
		}
	case ParamNumber:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
