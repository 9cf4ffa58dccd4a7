package memstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/faciam-dev/gcadmin/pkg/store"
)

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare orders two values of compatible types. ok is false when they
// cannot be compared.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), false
}

func evaluate(op store.Op, have, want any) bool {
	switch op {
	case store.OpIsNull:
		return have == nil
	case store.OpEq:
		c, ok := compare(have, want)
		return ok && c == 0
	case store.OpIContains:
		s, ok := have.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(want)))
	case store.OpIn:
		items, _ := want.([]any)
		for _, it := range items {
			if c, ok := compare(have, it); ok && c == 0 {
				return true
			}
		}
		return false
	}
	if have == nil {
		return false
	}
	c, ok := compare(have, want)
	if !ok {
		return false
	}
	switch op {
	case store.OpGT:
		return c > 0
	case store.OpGTE:
		return c >= 0
	case store.OpLT:
		return c < 0
	case store.OpLTE:
		return c <= 0
	}
	return false
}
