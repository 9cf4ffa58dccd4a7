// Package filter parses and validates filter expressions against a model's
// declared filter set and compiles them into storage queries.
package filter

import (
	"slices"

	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// Class groups fields that share an operator set.
type Class uint8

const (
	ClassNone Class = iota // not filterable
	ClassText
	ClassBoolean
	ClassNumeric
	ClassTemporal
	ClassChoice
	ClassRelation
)

var classNames = map[Class]string{
	ClassNone:     "none",
	ClassText:     "text",
	ClassBoolean:  "boolean",
	ClassNumeric:  "numeric",
	ClassTemporal: "temporal",
	ClassChoice:   "choice",
	ClassRelation: "relation",
}

func (c Class) String() string { return classNames[c] }

var allowed = map[Class][]store.Op{
	ClassText:     {store.OpEq, store.OpIContains, store.OpIn},
	ClassBoolean:  {store.OpEq},
	ClassNumeric:  {store.OpEq, store.OpGTE, store.OpLTE, store.OpGT, store.OpLT, store.OpIn},
	ClassTemporal: {store.OpGTE, store.OpLTE, store.OpGT, store.OpLT},
	ClassChoice:   {store.OpEq, store.OpIn},
	ClassRelation: {store.OpEq, store.OpIn},
}

// ClassOf classifies f. Choices take precedence over the kind; m2m and
// binary fields are not filterable.
func ClassOf(f descriptor.Field) Class {
	switch {
	case f.IsMultiValued() || f.Kind == descriptor.KindBinary:
		return ClassNone
	case f.IsRelation():
		return ClassRelation
	case f.HasChoices():
		return ClassChoice
	case f.Kind == descriptor.KindBoolean:
		return ClassBoolean
	case f.Kind.IsNumeric():
		return ClassNumeric
	case f.Kind.IsTemporal():
		return ClassTemporal
	case f.Kind.IsTextual():
		return ClassText
	}
	return ClassNone
}

// Operators returns the operators legal for c.
func (c Class) Operators() []store.Op { return slices.Clone(allowed[c]) }

// Allows reports whether op is legal for c.
func (c Class) Allows(op store.Op) bool { return slices.Contains(allowed[c], op) }
