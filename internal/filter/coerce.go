package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// nullLiteral under eq becomes an is-null test.
const nullLiteral = "null"

// coerce converts raw to the value a FilterSpec for t and op carries.
func (t target) coerce(op store.Op, raw string) (store.FilterSpec, error) {
	spec := store.FilterSpec{Path: t.path, Op: op}
	if op == store.OpEq && raw == nullLiteral {
		spec.Op = store.OpIsNull
		return spec, nil
	}
	if op == store.OpIn {
		var items []any
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := t.value(part)
			if err != nil {
				return spec, err
			}
			items = append(items, v)
		}
		if len(items) == 0 {
			return spec, fmt.Errorf("%w: empty list", descriptor.ErrUnparsable)
		}
		spec.Value = items
		return spec, nil
	}
	v, err := t.value(raw)
	if err != nil {
		return spec, err
	}
	spec.Value = v
	return spec, nil
}

func (t target) value(raw string) (any, error) {
	switch t.class {
	case ClassChoice:
		for _, c := range t.field.Choices {
			if fmt.Sprint(c.Value) == raw {
				return c.Value, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a declared choice", descriptor.ErrUnparsable, raw)
	case ClassRelation:
		return t.pkKind.Parse(raw)
	case ClassText:
		return raw, nil
	}
	return t.field.Kind.Parse(raw)
}

// rawString renders a decoded scope value in query-string form.
func rawString(v any) string {
	switch x := v.(type) {
	case nil:
		return nullLiteral
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = rawString(p)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}
